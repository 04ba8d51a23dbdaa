package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// StreakTracker applies qualifying activity to the persisted streak.
type StreakTracker struct {
	tracker *streak.Tracker
	ledger  *Ledger
	bonus   int
	log     *logger.Logger
}

// NewStreakTracker creates a tracker crediting bonus XP on each milestone.
func NewStreakTracker(milestones []int, bonus int, ledger *Ledger, log *logger.Logger) *StreakTracker {
	if log == nil {
		log = logger.Nop()
	}
	return &StreakTracker{
		tracker: streak.NewTracker(milestones),
		ledger:  ledger,
		bonus:   bonus,
		log:     log.With(logger.Component("streak")),
	}
}

// OnActivity records activity at now. The caller must hold the profile lock.
func (s *StreakTracker) OnActivity(ctx context.Context, tx progression.Tx, userID shared.UserID, now time.Time, out *Outbox) (streak.Result, error) {
	p, err := tx.GetProfile(ctx, userID)
	if err != nil {
		return streak.Result{}, shared.StorageError("streak", "GetProfile", err)
	}
	g, err := tx.GetGamification(ctx, userID)
	if err != nil {
		return streak.Result{}, shared.StorageError("streak", "GetGamification", err)
	}

	res := s.tracker.OnActivity(progression.StreakState(p, g), now)
	if !res.Changed() {
		return res, nil
	}

	if err := tx.SaveStreak(ctx, userID, res.State); err != nil {
		return res, shared.StorageError("streak", "SaveStreak", err)
	}

	uid := userID.String()
	if res.Transition == streak.TransitionShielded {
		out.Add(shared.NewProgressEvent(shared.EventStreakShieldUsed, uid, map[string]interface{}{
			"current_streak": res.State.Current,
			"date":           timeutil.FormatDate(now),
		}))
		s.log.Info("streak shield consumed", logger.UserID(uid), logger.Int("current_streak", res.State.Current))
	}
	out.Add(shared.NewProgressEvent(shared.EventStreakUpdated, uid, map[string]interface{}{
		"current_streak": res.State.Current,
		"longest_streak": res.State.Longest,
		"transition":     string(res.Transition),
	}))

	if res.Milestone > 0 && s.bonus > 0 {
		ref := fmt.Sprintf("streak_%d", res.Milestone)
		if _, err := s.ledger.ApplyCredit(ctx, tx, userID, s.bonus, progression.ReasonStreakMilestone, ref, out); err != nil {
			return res, err
		}
	}
	return res, nil
}

// GrantShield arms the streak shield. Granting while armed is a no-op.
func (s *StreakTracker) GrantShield(ctx context.Context, tx progression.Tx, userID shared.UserID) error {
	if err := tx.SetShield(ctx, userID, true); err != nil {
		return shared.StorageError("streak", "SetShield", err)
	}
	return nil
}
