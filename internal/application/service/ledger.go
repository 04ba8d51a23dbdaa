package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/rank"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION LEDGER
// The only component that mutates total_xp and level. Every change is an
// atomic increment followed by a level write and a history row, all in the
// caller's transaction.
// ══════════════════════════════════════════════════════════════════════════════

// Change describes one applied credit or debit.
type Change struct {
	Delta     int
	Reason    progression.Reason
	Ref       string
	TotalXP   int
	OldLevel  int
	NewLevel  int
	OldRank   rank.Tier
	NewRank   rank.Tier
	LeveledUp bool
	RankedUp  bool
}

// Ledger applies XP credits and debits.
type Ledger struct {
	ranks *rank.Resolver
	clock timeutil.Clock
	log   *logger.Logger
}

// NewLedger creates a ledger.
func NewLedger(ranks *rank.Resolver, clock timeutil.Clock, log *logger.Logger) *Ledger {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{ranks: ranks, clock: clock, log: log.With(logger.Component("ledger"))}
}

// Ranks returns the resolver the ledger derives levels with.
func (l *Ledger) Ranks() *rank.Resolver {
	return l.ranks
}

// ApplyCredit adds amount XP. amount must be positive.
func (l *Ledger) ApplyCredit(ctx context.Context, tx progression.Tx, userID shared.UserID, amount int, reason progression.Reason, ref string, out *Outbox) (*Change, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidCreditAmount
	}
	return l.apply(ctx, tx, userID, amount, reason, ref, out)
}

// ApplyDebit removes amount XP. Returns ErrInsufficientXP if the balance
// would go negative; nothing is written in that case.
func (l *Ledger) ApplyDebit(ctx context.Context, tx progression.Tx, userID shared.UserID, amount int, reason progression.Reason, ref string, out *Outbox) (*Change, error) {
	if amount <= 0 {
		return nil, shared.ErrInvalidDebitAmount
	}
	return l.apply(ctx, tx, userID, -amount, reason, ref, out)
}

func (l *Ledger) apply(ctx context.Context, tx progression.Tx, userID shared.UserID, delta int, reason progression.Reason, ref string, out *Outbox) (*Change, error) {
	total, err := tx.AddXP(ctx, userID, delta)
	if err != nil {
		return nil, shared.StorageError("ledger", "AddXP", err)
	}

	before := total - delta
	c := &Change{
		Delta:    delta,
		Reason:   reason,
		Ref:      ref,
		TotalXP:  total,
		OldLevel: l.ranks.LevelFor(before),
		NewLevel: l.ranks.LevelFor(total),
	}
	c.OldRank = l.ranks.RankFor(c.OldLevel)
	c.NewRank = l.ranks.RankFor(c.NewLevel)
	c.LeveledUp = c.NewLevel > c.OldLevel
	c.RankedUp = c.NewRank.ID != c.OldRank.ID && c.NewLevel > c.OldLevel

	if c.NewLevel != c.OldLevel {
		if err := tx.SetLevel(ctx, userID, c.NewLevel); err != nil {
			return nil, shared.StorageError("ledger", "SetLevel", err)
		}
	}

	entry := &progression.LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		Delta:        delta,
		Reason:       reason,
		Ref:          ref,
		BalanceAfter: total,
		CreatedAt:    l.clock.Now(),
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return nil, shared.StorageError("ledger", "AppendLedger", err)
	}

	uid := userID.String()
	if delta > 0 {
		out.Add(shared.NewXPGainedEvent(uid, delta, total, string(reason)))
	} else {
		out.Add(shared.NewProgressEvent(shared.EventXPSpent, uid, map[string]interface{}{
			"amount":    -delta,
			"new_total": total,
			"reason":    string(reason),
			"ref":       ref,
		}))
	}
	if c.LeveledUp {
		out.Add(shared.NewLevelUpEvent(uid, c.OldLevel, c.NewLevel))
	}
	if c.RankedUp {
		out.Add(shared.NewRankUpEvent(uid, c.OldRank.ID, c.NewRank.ID))
	}

	l.log.Debug("xp applied",
		logger.UserID(uid),
		logger.Int("delta", delta),
		logger.String("reason", string(reason)),
		logger.Int("total_xp", total),
	)
	return c, nil
}

// String implements fmt.Stringer for log lines and test failures.
func (c *Change) String() string {
	return fmt.Sprintf("%+d XP (%s) -> %d, level %d->%d", c.Delta, c.Reason, c.TotalXP, c.OldLevel, c.NewLevel)
}
