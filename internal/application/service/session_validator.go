package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING SESSION VALIDATOR (anti-cheat gate)
// ══════════════════════════════════════════════════════════════════════════════

// TSVP step names. Clients may also report steps by index ("0".."3");
// only the number of completed entries is counted.
const (
	StepTechnique = "technique"
	StepScript    = "script"
	StepVideo     = "video"
	StepPractice  = "practice"
)

// SessionInput is a completed training session as reported by the client.
type SessionInput struct {
	UserID          shared.UserID
	TrickID         shared.TrickID
	DurationSeconds float64
	StepCount       int
	CompletedSteps  []string
}

// Validate checks the input shape. It never looks at the anti-cheat rule.
func (in SessionInput) Validate() error {
	if !in.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if !in.TrickID.IsValid() {
		return shared.ErrInvalidTrickID
	}
	if math.IsNaN(in.DurationSeconds) || math.IsInf(in.DurationSeconds, 0) || in.DurationSeconds < 0 {
		return shared.ErrInvalidDuration
	}
	if in.StepCount < 0 {
		return shared.ErrInvalidStepCount
	}
	return nil
}

// Bonus is one line of the XP breakdown.
type Bonus struct {
	Label string `json:"label"`
	XP    int    `json:"xp"`
}

// SessionOutcome reports what a session earned.
type SessionOutcome struct {
	SessionID    uuid.UUID
	XPEarned     int
	Bonuses      []Bonus
	Denied       bool
	Streak       streak.Result
	SpinGranted  bool
	Achievements []achievement.Definition
}

// SessionValidator decides whether a completed session earns XP and drives
// the ledger, wheel counter, streak and achievements when it does.
type SessionValidator struct {
	rewards      progression.XPRewards
	minSeconds   float64
	ledger       *Ledger
	wheel        *RewardWheel
	streaks      *StreakTracker
	achievements *AchievementEvaluator
	log          *logger.Logger
}

// NewSessionValidator creates the gate.
func NewSessionValidator(
	rewards progression.XPRewards,
	minSessionSeconds int,
	ledger *Ledger,
	wheel *RewardWheel,
	streaks *StreakTracker,
	achievements *AchievementEvaluator,
	log *logger.Logger,
) *SessionValidator {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionValidator{
		rewards:      rewards,
		minSeconds:   float64(minSessionSeconds),
		ledger:       ledger,
		wheel:        wheel,
		streaks:      streaks,
		achievements: achievements,
		log:          log.With(logger.Component("session_validator")),
	}
}

// Complete records the session and applies its effects in tx. A session
// below the minimum duration is stored with zero XP and is not an error.
func (v *SessionValidator) Complete(ctx context.Context, tx progression.Tx, in SessionInput, now time.Time, out *Outbox) (*SessionOutcome, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if _, err := tx.LockProfile(ctx, in.UserID); err != nil {
		return nil, shared.StorageError("session", "LockProfile", err)
	}

	outcome := &SessionOutcome{SessionID: uuid.New(), Bonuses: []Bonus{}}
	fullCycle := progression.IsFullCycle(in.CompletedSteps)

	if in.DurationSeconds >= v.minSeconds {
		if v.rewards.CompleteSession > 0 {
			outcome.XPEarned += v.rewards.CompleteSession
			outcome.Bonuses = append(outcome.Bonuses, Bonus{Label: "Session terminée", XP: v.rewards.CompleteSession})
		}
		if fullCycle && v.rewards.CompleteAllSteps > 0 {
			outcome.XPEarned += v.rewards.CompleteAllSteps
			outcome.Bonuses = append(outcome.Bonuses, Bonus{Label: "Cycle complet", XP: v.rewards.CompleteAllSteps})
		}
	}

	session := &progression.TrainingSession{
		ID:              outcome.SessionID,
		UserID:          in.UserID,
		TrickID:         in.TrickID,
		DurationSeconds: int(math.Floor(in.DurationSeconds)),
		StepCount:       in.StepCount,
		CompletedSteps:  in.CompletedSteps,
		XPEarned:        outcome.XPEarned,
		CompletedAt:     now,
	}
	if err := tx.InsertTrainingSession(ctx, session); err != nil {
		return nil, shared.StorageError("session", "InsertTrainingSession", err)
	}

	uid := in.UserID.String()
	if outcome.XPEarned == 0 {
		outcome.Denied = in.DurationSeconds < v.minSeconds
		if outcome.Denied {
			v.log.Warn("session below minimum duration, xp denied",
				logger.UserID(uid),
				logger.TrickID(in.TrickID.String()),
				logger.Float64("duration_seconds", in.DurationSeconds),
				logger.Float64("min_seconds", v.minSeconds),
			)
			out.Add(shared.NewProgressEvent(shared.EventAntiCheatDenied, uid, map[string]interface{}{
				"session_id":       session.ID.String(),
				"trick_id":         in.TrickID.String(),
				"duration_seconds": in.DurationSeconds,
			}))
		}
		return outcome, nil
	}

	ref := session.ID.String()
	if v.rewards.CompleteSession > 0 {
		if _, err := v.ledger.ApplyCredit(ctx, tx, in.UserID, v.rewards.CompleteSession, progression.ReasonSessionComplete, ref, out); err != nil {
			return nil, err
		}
	}
	if fullCycle && v.rewards.CompleteAllSteps > 0 {
		if _, err := v.ledger.ApplyCredit(ctx, tx, in.UserID, v.rewards.CompleteAllSteps, progression.ReasonSessionAllSteps, ref, out); err != nil {
			return nil, err
		}
	}

	if _, err := tx.IncrementTrainingCount(ctx, in.UserID); err != nil {
		return nil, shared.StorageError("session", "IncrementTrainingCount", err)
	}

	_, granted, err := v.wheel.RecordTraining(ctx, tx, in.UserID, out)
	if err != nil {
		return nil, err
	}
	outcome.SpinGranted = granted

	res, err := v.streaks.OnActivity(ctx, tx, in.UserID, now, out)
	if err != nil {
		return nil, err
	}
	outcome.Streak = res

	unlocked, err := v.achievements.Reevaluate(ctx, tx, in.UserID, out)
	if err != nil {
		return nil, err
	}
	outcome.Achievements = unlocked

	out.Add(shared.NewProgressEvent(shared.EventSessionCompleted, uid, map[string]interface{}{
		"session_id": ref,
		"trick_id":   in.TrickID.String(),
		"xp_earned":  outcome.XPEarned,
	}))
	return outcome, nil
}
