package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRICK LIBRARY COMMANDS
// The library itself lives in the client application; the engine tracks which
// tricks it holds and hears about the transitions that earn XP.
// ══════════════════════════════════════════════════════════════════════════════

// AddTrickCommand reports that a trick was added to the library.
type AddTrickCommand struct {
	UserID        string
	TrickID       string
	Category      string
	CorrelationID string
}

func (c AddTrickCommand) parse() (*progression.LibraryTrick, error) {
	m, err := MarkTrickReadyCommand{UserID: c.UserID, TrickID: c.TrickID, Category: c.Category}.parse()
	if err != nil {
		return nil, err
	}
	return &progression.LibraryTrick{UserID: m.UserID, TrickID: m.TrickID, Category: m.Category}, nil
}

// Validate validates the command.
func (c AddTrickCommand) Validate() error {
	_, err := c.parse()
	return err
}

// AddTrickResult reports whether the trick was new.
type AddTrickResult struct {
	AlreadyInLibrary bool
	Achievements     []string
}

// AddTrickHandler handles AddTrickCommand.
type AddTrickHandler struct {
	runner *Runner
	engine *service.Engine
}

// NewAddTrickHandler creates the handler.
func NewAddTrickHandler(runner *Runner, engine *service.Engine) *AddTrickHandler {
	return &AddTrickHandler{runner: runner, engine: engine}
}

// Handle executes the command.
func (h *AddTrickHandler) Handle(ctx context.Context, cmd AddTrickCommand) (*AddTrickResult, error) {
	t, err := cmd.parse()
	if err != nil {
		return nil, fmt.Errorf("add_trick: %w", err)
	}

	var result *AddTrickResult
	err = h.runner.Execute(ctx, "add_trick", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		lt := *t
		lt.AddedAt = h.engine.Clock.Now()
		outcome, err := h.engine.Library.AddTrick(ctx, tx, &lt, out)
		if err != nil {
			return err
		}
		result = &AddTrickResult{
			AlreadyInLibrary: outcome.AlreadyInLibrary,
			Achievements:     achievementIDs(outcome.Achievements),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add_trick: %w", err)
	}
	return result, nil
}

// MarkTrickReadyCommand reports that a trick reached the "ready" stage.
type MarkTrickReadyCommand struct {
	UserID        string
	TrickID       string
	Category      string
	CorrelationID string
}

func (c MarkTrickReadyCommand) parse() (*progression.MasteredTrick, error) {
	userID, err := shared.NewUserID(c.UserID)
	if err != nil {
		return nil, err
	}
	trickID, err := shared.NewTrickID(c.TrickID)
	if err != nil {
		return nil, err
	}
	category, err := shared.NewTrickCategory(c.Category)
	if err != nil {
		return nil, err
	}
	return &progression.MasteredTrick{UserID: userID, TrickID: trickID, Category: category}, nil
}

// Validate validates the command.
func (c MarkTrickReadyCommand) Validate() error {
	_, err := c.parse()
	return err
}

// MarkTrickReadyResult reports the XP earned.
type MarkTrickReadyResult struct {
	AlreadyReady bool
	XPEarned     int
	Achievements []string
}

// MarkTrickReadyHandler handles MarkTrickReadyCommand.
type MarkTrickReadyHandler struct {
	runner *Runner
	engine *service.Engine
}

// NewMarkTrickReadyHandler creates the handler.
func NewMarkTrickReadyHandler(runner *Runner, engine *service.Engine) *MarkTrickReadyHandler {
	return &MarkTrickReadyHandler{runner: runner, engine: engine}
}

// Handle executes the command.
func (h *MarkTrickReadyHandler) Handle(ctx context.Context, cmd MarkTrickReadyCommand) (*MarkTrickReadyResult, error) {
	m, err := cmd.parse()
	if err != nil {
		return nil, fmt.Errorf("mark_trick_ready: %w", err)
	}

	var result *MarkTrickReadyResult
	err = h.runner.Execute(ctx, "mark_trick_ready", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		mt := *m
		mt.ReadyAt = h.engine.Clock.Now()
		outcome, err := h.engine.Library.MarkReady(ctx, tx, &mt, out)
		if err != nil {
			return err
		}
		result = &MarkTrickReadyResult{
			AlreadyReady: outcome.AlreadyReady,
			XPEarned:     outcome.XPEarned,
			Achievements: achievementIDs(outcome.Achievements),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark_trick_ready: %w", err)
	}
	return result, nil
}

// RateConfidenceCommand records how a performance felt.
type RateConfidenceCommand struct {
	UserID        string
	TrickID       string
	Rating        int
	Context       string
	AudienceType  string
	CorrelationID string
}

func (c RateConfidenceCommand) parse() (*progression.ConfidenceRating, error) {
	userID, err := shared.NewUserID(c.UserID)
	if err != nil {
		return nil, err
	}
	trickID, err := shared.NewTrickID(c.TrickID)
	if err != nil {
		return nil, err
	}
	rating, err := shared.NewRating(c.Rating)
	if err != nil {
		return nil, err
	}
	return &progression.ConfidenceRating{
		UserID:       userID,
		TrickID:      trickID,
		Rating:       rating,
		Context:      c.Context,
		AudienceType: c.AudienceType,
	}, nil
}

// Validate validates the command.
func (c RateConfidenceCommand) Validate() error {
	_, err := c.parse()
	return err
}

// RateConfidenceResult reports the XP earned.
type RateConfidenceResult struct {
	RatingID     uuid.UUID
	XPEarned     int
	Achievements []string
}

// RateConfidenceHandler handles RateConfidenceCommand.
type RateConfidenceHandler struct {
	runner *Runner
	engine *service.Engine
}

// NewRateConfidenceHandler creates the handler.
func NewRateConfidenceHandler(runner *Runner, engine *service.Engine) *RateConfidenceHandler {
	return &RateConfidenceHandler{runner: runner, engine: engine}
}

// Handle executes the command.
func (h *RateConfidenceHandler) Handle(ctx context.Context, cmd RateConfidenceCommand) (*RateConfidenceResult, error) {
	r, err := cmd.parse()
	if err != nil {
		return nil, fmt.Errorf("rate_confidence: %w", err)
	}

	var result *RateConfidenceResult
	err = h.runner.Execute(ctx, "rate_confidence", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		rating := *r
		outcome, err := h.engine.Library.RateConfidence(ctx, tx, &rating, h.engine.Clock.Now(), out)
		if err != nil {
			return err
		}
		result = &RateConfidenceResult{
			RatingID:     outcome.RatingID,
			XPEarned:     outcome.XPEarned,
			Achievements: achievementIDs(outcome.Achievements),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate_confidence: %w", err)
	}
	return result, nil
}

func achievementIDs(defs []achievement.Definition) []string {
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	return ids
}
