// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are published only after the transaction that
// produced them has committed.
const (
	// Profile events
	EventProfileInitialized EventType = "profile.initialized"

	// Progress events
	EventXPGained          EventType = "progress.xp_gained"
	EventXPSpent           EventType = "progress.xp_spent"
	EventLevelUp           EventType = "progress.level_up"
	EventRankUp            EventType = "progress.rank_up"
	EventStreakUpdated     EventType = "progress.streak_updated"
	EventStreakShieldUsed  EventType = "progress.streak_shield_used"
	EventSessionCompleted  EventType = "session.completed"
	EventAntiCheatDenied   EventType = "session.anti_cheat_denied"
	EventTrickAdded        EventType = "library.trick_added"
	EventTrickMastered     EventType = "library.trick_mastered"
	EventConfidenceRated   EventType = "library.confidence_rated"
	EventAchievementUnlock EventType = "achievement.unlocked"
	EventSkillUnlocked     EventType = "skill.unlocked"
	EventWheelSpun         EventType = "wheel.spun"
	EventSpinGranted       EventType = "wheel.spin_granted"
)

// ChangesState reports whether an event of this type follows a change to the
// user's progression snapshot. A denied session leaves the snapshot as is.
func (t EventType) ChangesState() bool {
	return t != "" && t != EventAntiCheatDenied
}

// ChangedAggregates returns, in first-seen order, the distinct aggregate ids
// whose snapshot the events changed.
func ChangedAggregates(events []Event) []string {
	var ids []string
	seen := make(map[string]bool, 1)
	for _, e := range events {
		id := e.AggregateID()
		if id == "" || seen[id] || !e.EventType().ChangesState() {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ProgressEvent is the single concrete event shape used by the engine.
// Data carries event-specific fields (amount, new_total, level, ...).
type ProgressEvent struct {
	BaseEvent
	Data map[string]interface{} `json:"data,omitempty"`
}

// Payload implements Event interface.
func (e ProgressEvent) Payload() map[string]interface{} {
	return e.Data
}

// NewProgressEvent creates an event for a user aggregate.
func NewProgressEvent(eventType EventType, userID string, data map[string]interface{}) ProgressEvent {
	return ProgressEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		Data:      data,
	}
}

// NewXPGainedEvent creates an XP credit event.
func NewXPGainedEvent(userID string, amount, newTotal int, reason string) ProgressEvent {
	return NewProgressEvent(EventXPGained, userID, map[string]interface{}{
		"amount":    amount,
		"new_total": newTotal,
		"reason":    reason,
	})
}

// NewLevelUpEvent creates a level-up event.
func NewLevelUpEvent(userID string, oldLevel, newLevel int) ProgressEvent {
	return NewProgressEvent(EventLevelUp, userID, map[string]interface{}{
		"old_level": oldLevel,
		"new_level": newLevel,
	})
}

// NewRankUpEvent creates a rank tier change event.
func NewRankUpEvent(userID, oldRank, newRank string) ProgressEvent {
	return NewProgressEvent(EventRankUp, userID, map[string]interface{}{
		"old_rank": oldRank,
		"new_rank": newRank,
	})
}

// EventEnvelope is the serialized form of an event on the wire.
type EventEnvelope struct {
	Type          EventType              `json:"type"`
	AggregateID   string                 `json:"aggregate_id"`
	OccurredAt    time.Time              `json:"occurred_at"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// MarshalEvent serializes any Event into an EventEnvelope.
func MarshalEvent(e Event) ([]byte, error) {
	env := EventEnvelope{
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  e.OccurredAt(),
		Payload:     e.Payload(),
	}
	if pe, ok := e.(ProgressEvent); ok {
		env.CorrelationID = pe.CorrelationID
	}
	return json.Marshal(env)
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// PublishAll publishes events in order and returns the first error.
// A nil publisher is a no-op.
func PublishAll(p EventPublisher, events []Event) error {
	if p == nil {
		return nil
	}
	var first error
	for _, e := range events {
		if err := p.Publish(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Correlate stamps id on every ProgressEvent in events. Other event types
// pass through unchanged.
func Correlate(events []Event, id string) []Event {
	if id == "" {
		return events
	}
	out := make([]Event, len(events))
	for i, e := range events {
		if pe, ok := e.(ProgressEvent); ok {
			pe.BaseEvent = pe.BaseEvent.WithCorrelationID(id)
			e = pe
		}
		out[i] = e
	}
	return out
}
