package messaging

import (
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIBERS
// ══════════════════════════════════════════════════════════════════════════════

// ForwardTo returns a handler relaying every event to an external publisher.
// Failures are logged at Warn and swallowed; the local state is already
// committed and the external channel is best-effort.
func ForwardTo(p shared.EventPublisher, log *logger.Logger) shared.EventHandler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("event_forwarder"))

	return func(event shared.Event) error {
		if err := p.Publish(event); err != nil {
			log.Warn("failed to forward event",
				logger.String("event_type", string(event.EventType())),
				logger.UserID(event.AggregateID()),
				logger.Err(err),
			)
		}
		return nil
	}
}

// Wire attaches the standard subscribers to bus. When external is non-nil
// every event is forwarded to it. Cached snapshots are evicted by the
// command runner before it publishes, not here.
func Wire(bus shared.EventSubscriber, external shared.EventPublisher, log *logger.Logger) error {
	if external == nil {
		return nil
	}
	return bus.SubscribeAll(ForwardTo(external, log))
}
