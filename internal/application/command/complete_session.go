package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE TRAINING SESSION COMMAND
// Records a TSVP training session. Sessions shorter than the anti-cheat
// minimum are stored with zero XP and reported as denied, not as errors.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteSessionCommand contains the session reported by the client.
type CompleteSessionCommand struct {
	UserID          string
	TrickID         string
	DurationSeconds float64
	StepCount       int
	CompletedSteps  []string
	CorrelationID   string
}

func (c CompleteSessionCommand) input() (service.SessionInput, error) {
	userID, err := shared.NewUserID(c.UserID)
	if err != nil {
		return service.SessionInput{}, err
	}
	trickID, err := shared.NewTrickID(c.TrickID)
	if err != nil {
		return service.SessionInput{}, err
	}
	in := service.SessionInput{
		UserID:          userID,
		TrickID:         trickID,
		DurationSeconds: c.DurationSeconds,
		StepCount:       c.StepCount,
		CompletedSteps:  c.CompletedSteps,
	}
	return in, in.Validate()
}

// Validate validates the command.
func (c CompleteSessionCommand) Validate() error {
	_, err := c.input()
	return err
}

// CompleteSessionResult is what the client shows after a session.
type CompleteSessionResult struct {
	SessionID      uuid.UUID
	XPEarned       int
	Bonuses        []service.Bonus
	Denied         bool
	TotalXP        int
	Level          int
	CurrentStreak  int
	StreakChange   streak.Transition
	Milestone      int
	SpinGranted    bool
	SpinsAvailable int
	Achievements   []string
}

// CompleteSessionHandler handles CompleteSessionCommand.
type CompleteSessionHandler struct {
	runner *Runner
	engine *service.Engine
}

// NewCompleteSessionHandler creates the handler.
func NewCompleteSessionHandler(runner *Runner, engine *service.Engine) *CompleteSessionHandler {
	return &CompleteSessionHandler{runner: runner, engine: engine}
}

// Handle executes the command.
func (h *CompleteSessionHandler) Handle(ctx context.Context, cmd CompleteSessionCommand) (*CompleteSessionResult, error) {
	in, err := cmd.input()
	if err != nil {
		return nil, fmt.Errorf("complete_session: %w", err)
	}

	var result *CompleteSessionResult
	err = h.runner.Execute(ctx, "complete_session", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		outcome, err := h.engine.Sessions.Complete(ctx, tx, in, h.engine.Clock.Now(), out)
		if err != nil {
			return err
		}

		p, err := tx.GetProfile(ctx, in.UserID)
		if err != nil {
			return shared.StorageError("session", "GetProfile", err)
		}
		g, err := tx.GetGamification(ctx, in.UserID)
		if err != nil {
			return shared.StorageError("session", "GetGamification", err)
		}

		result = &CompleteSessionResult{
			SessionID:      outcome.SessionID,
			XPEarned:       outcome.XPEarned,
			Bonuses:        outcome.Bonuses,
			Denied:         outcome.Denied,
			TotalXP:        p.TotalXP,
			Level:          p.Level,
			CurrentStreak:  p.CurrentStreak,
			StreakChange:   outcome.Streak.Transition,
			Milestone:      outcome.Streak.Milestone,
			SpinGranted:    outcome.SpinGranted,
			SpinsAvailable: g.WheelSpinsAvailable,
			Achievements:   achievementIDs(outcome.Achievements),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete_session: %w", err)
	}
	return result, nil
}
