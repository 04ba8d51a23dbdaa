package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// EventPublisher forwards domain events to Redis on pubsub:<event type>.
// Other instances and external consumers (notifications, analytics) listen
// there; the engine itself never reads these channels back.
type EventPublisher struct {
	cache   *Cache
	timeout time.Duration
}

// NewEventPublisher creates a publisher with a per-event timeout.
func NewEventPublisher(cache *Cache, timeout time.Duration) *EventPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &EventPublisher{cache: cache, timeout: timeout}
}

// Publish implements shared.EventPublisher.
func (p *EventPublisher) Publish(event shared.Event) error {
	data, err := shared.MarshalEvent(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.cache.Publish(ctx, PubSubChannel(string(event.EventType())), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}

var _ shared.EventPublisher = (*EventPublisher)(nil)
