package command

import (
	"context"
	"fmt"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INITIALIZE USER COMMAND
// Creates the profile and gamification rows with zeroed counters. Safe to
// call on every login: an existing profile is left untouched.
// ══════════════════════════════════════════════════════════════════════════════

// InitializeUserCommand contains the user to initialize.
type InitializeUserCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c InitializeUserCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// InitializeUserResult reports whether rows were created.
type InitializeUserResult struct {
	UserID  shared.UserID
	Created bool
}

// InitializeUserHandler handles InitializeUserCommand.
type InitializeUserHandler struct {
	runner *Runner
	clock  timeutil.Clock
}

// NewInitializeUserHandler creates the handler.
func NewInitializeUserHandler(runner *Runner, clock timeutil.Clock) *InitializeUserHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &InitializeUserHandler{runner: runner, clock: clock}
}

// Handle executes the command.
func (h *InitializeUserHandler) Handle(ctx context.Context, cmd InitializeUserCommand) (*InitializeUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("initialize_user: %w", err)
	}
	userID, _ := shared.NewUserID(cmd.UserID)
	result := &InitializeUserResult{UserID: userID}

	err := h.runner.Execute(ctx, "initialize_user", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		created, err := tx.CreateProfile(ctx, userID, h.clock.Now())
		if err != nil {
			return shared.StorageError("profile", "Create", err)
		}
		result.Created = created
		if created {
			out.Add(shared.NewProgressEvent(shared.EventProfileInitialized, userID.String(), nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize_user: %w", err)
	}
	return result, nil
}
