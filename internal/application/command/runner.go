// Package command contains write operations (CQRS - Commands).
//
// Every handler runs its work through a Runner: one store transaction, a
// fresh outbox per attempt, and event publication only after commit.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/retry"
)

// TxFunc is the body of a command transaction.
type TxFunc func(ctx context.Context, tx progression.Tx, out *service.Outbox) error

// StateInvalidator drops the cached progression snapshot of a user.
type StateInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// invalidateTimeout bounds the post-commit cache eviction. It is detached
// from the request deadline so an expiring request still evicts.
const invalidateTimeout = 2 * time.Second

// Runner executes command bodies transactionally.
type Runner struct {
	store       progression.Store
	publisher   shared.EventPublisher
	invalidator StateInvalidator
	retrier     *retry.Retrier
	log         *logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStateInvalidator evicts the cached snapshot of every user a command
// changed before Execute returns.
func WithStateInvalidator(inv StateInvalidator) RunnerOption {
	return func(r *Runner) { r.invalidator = inv }
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(store progression.Store, publisher shared.EventPublisher, log *logger.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{store: store, publisher: publisher, log: log.With(logger.Component("command"))}
	for _, opt := range opts {
		opt(r)
	}
	r.retrier = retry.TransactionRetrier(func(err error) bool {
		return errors.Is(err, shared.ErrConcurrentModification)
	})
	return r
}

// Execute runs fn in a transaction, retrying serialization conflicts. Once
// the transaction has committed it evicts the cached snapshots it made stale
// and then publishes the collected events. Events from a rolled-back attempt
// are never published.
func (r *Runner) Execute(ctx context.Context, op, correlationID string, fn TxFunc) error {
	start := time.Now()
	out := &service.Outbox{}

	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		out.Reset()
		return r.store.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
			return fn(ctx, tx, out)
		})
	})
	if err != nil {
		return err
	}

	events := shared.Correlate(out.Events(), correlationID)
	r.invalidate(ctx, events)

	if err := shared.PublishAll(r.publisher, events); err != nil {
		// Committed state is authoritative; subscribers catch up on next read.
		r.log.Warn("event publish failed",
			logger.Operation(op),
			logger.Err(err),
			logger.Int("events", len(events)),
		)
	}

	r.log.Debug("command committed",
		logger.Operation(op),
		logger.Int("events", len(events)),
		logger.Latency(time.Since(start)),
	)
	return nil
}

func (r *Runner) invalidate(ctx context.Context, events []shared.Event) {
	if r.invalidator == nil {
		return
	}
	ids := shared.ChangedAggregates(events)
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	for _, id := range ids {
		r.invalidator.Invalidate(ctx, id)
	}
}
