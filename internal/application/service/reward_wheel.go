package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// SpinOutcome is the persisted result of a spin.
type SpinOutcome struct {
	SpinID         uuid.UUID
	Reward         wheel.Reward
	WinnerIndex    int
	RemainingSpins int
	TotalXP        int
}

// RewardWheel draws rewards and keeps the spin budget.
type RewardWheel struct {
	wheel     *wheel.Wheel
	source    wheel.Source
	threshold int
	ledger    *Ledger
	streaks   *StreakTracker
	clock     timeutil.Clock
	log       *logger.Logger
}

// NewRewardWheel creates the wheel component. A nil source uses
// wheel.DefaultSource.
func NewRewardWheel(w *wheel.Wheel, src wheel.Source, spinThreshold int, ledger *Ledger, streaks *StreakTracker, clock timeutil.Clock, log *logger.Logger) *RewardWheel {
	if src == nil {
		src = wheel.DefaultSource
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RewardWheel{
		wheel:     w,
		source:    src,
		threshold: spinThreshold,
		ledger:    ledger,
		streaks:   streaks,
		clock:     clock,
		log:       log.With(logger.Component("wheel")),
	}
}

// Threshold returns the number of sessions per earned spin.
func (w *RewardWheel) Threshold() int {
	return w.threshold
}

// Wheel returns the reward table.
func (w *RewardWheel) Wheel() *wheel.Wheel {
	return w.wheel
}

// Spin spends one spin, draws a reward and applies it, all in tx.
// Returns ErrNoSpinsAvailable without drawing when the budget is empty.
func (w *RewardWheel) Spin(ctx context.Context, tx progression.Tx, userID shared.UserID, out *Outbox) (*SpinOutcome, error) {
	p, err := tx.LockProfile(ctx, userID)
	if err != nil {
		return nil, shared.StorageError("wheel", "LockProfile", err)
	}

	// The budget check and the decrement are one conditional update.
	budget, err := tx.ConsumeSpin(ctx, userID)
	if err != nil {
		return nil, shared.StorageError("wheel", "ConsumeSpin", err)
	}

	idx, entry := w.wheel.Draw(w.source)
	outcome := &SpinOutcome{
		SpinID:         uuid.New(),
		Reward:         entry.Reward,
		WinnerIndex:    idx,
		RemainingSpins: budget.Available,
		TotalXP:        p.TotalXP,
	}

	switch entry.Reward.Kind {
	case wheel.KindXP:
		c, err := w.ledger.ApplyCredit(ctx, tx, userID, entry.Reward.Amount, progression.ReasonWheelReward, outcome.SpinID.String(), out)
		if err != nil {
			return nil, err
		}
		outcome.TotalXP = c.TotalXP
	case wheel.KindShield:
		if err := w.streaks.GrantShield(ctx, tx, userID); err != nil {
			return nil, err
		}
	case wheel.KindBadge, wheel.KindTip:
		// Recorded through the spin log only.
	}

	rec := &progression.SpinRecord{
		ID:          outcome.SpinID,
		UserID:      userID,
		WinnerIndex: idx,
		Reward:      entry.Reward,
		SpunAt:      w.clock.Now(),
	}
	if err := tx.InsertSpin(ctx, rec); err != nil {
		return nil, shared.StorageError("wheel", "InsertSpin", err)
	}

	out.Add(shared.NewProgressEvent(shared.EventWheelSpun, userID.String(), map[string]interface{}{
		"spin_id":         outcome.SpinID.String(),
		"winner_index":    idx,
		"reward_kind":     string(entry.Reward.Kind),
		"reward_value":    entry.Reward.Value(),
		"remaining_spins": budget.Available,
	}))

	w.log.Info("wheel spun",
		logger.UserID(userID.String()),
		logger.Int("winner_index", idx),
		logger.String("reward", entry.Reward.Label),
		logger.Int("remaining_spins", budget.Available),
	)
	return outcome, nil
}

// RecordTraining counts a qualifying session toward the next spin.
func (w *RewardWheel) RecordTraining(ctx context.Context, tx progression.Tx, userID shared.UserID, out *Outbox) (wheel.Budget, bool, error) {
	b, granted, err := tx.RecordTrainingForSpin(ctx, userID, w.threshold)
	if err != nil {
		return b, false, shared.StorageError("wheel", "RecordTrainingForSpin", err)
	}
	if granted {
		out.Add(shared.NewProgressEvent(shared.EventSpinGranted, userID.String(), map[string]interface{}{
			"spins_available": b.Available,
		}))
	}
	return b, granted, nil
}
