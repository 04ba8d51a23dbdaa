// Package service contains the engine components that run inside a store
// transaction: the XP ledger, streak tracker, reward wheel, skill tree,
// achievement evaluator and the training session gate.
//
// Components never commit or publish on their own. Command handlers open the
// transaction, call the components, and publish the collected events after
// the commit succeeds.
package service

import "github.com/ledojo/progression-engine/internal/domain/shared"

// Outbox collects events raised inside a transaction.
type Outbox struct {
	events []shared.Event
}

// Add appends an event. A nil outbox drops it.
func (o *Outbox) Add(e shared.Event) {
	if o == nil {
		return
	}
	o.events = append(o.events, e)
}

// Events returns the collected events in order.
func (o *Outbox) Events() []shared.Event {
	if o == nil {
		return nil
	}
	return o.events
}

// Reset drops collected events. Used when a transaction is retried.
func (o *Outbox) Reset() {
	if o != nil {
		o.events = o.events[:0]
	}
}
