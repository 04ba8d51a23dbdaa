package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
)

// SpinWheelCommand spends one earned spin.
type SpinWheelCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c SpinWheelCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// SpinWheelResult is the reward drawn by the server.
type SpinWheelResult struct {
	SpinID         uuid.UUID
	WinnerIndex    int
	Reward         wheel.Reward
	RemainingSpins int
	TotalXP        int
}

// SpinWheelHandler handles SpinWheelCommand.
type SpinWheelHandler struct {
	runner *Runner
	engine *service.Engine
}

// NewSpinWheelHandler creates the handler.
func NewSpinWheelHandler(runner *Runner, engine *service.Engine) *SpinWheelHandler {
	return &SpinWheelHandler{runner: runner, engine: engine}
}

// Handle executes the command. Without an available spin it returns an
// insufficient-resource error and changes nothing.
func (h *SpinWheelHandler) Handle(ctx context.Context, cmd SpinWheelCommand) (*SpinWheelResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("spin_wheel: %w", err)
	}
	userID, _ := shared.NewUserID(cmd.UserID)

	var result *SpinWheelResult
	err := h.runner.Execute(ctx, "spin_wheel", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		outcome, err := h.engine.Wheel.Spin(ctx, tx, userID, out)
		if err != nil {
			return err
		}
		result = &SpinWheelResult{
			SpinID:         outcome.SpinID,
			WinnerIndex:    outcome.WinnerIndex,
			Reward:         outcome.Reward,
			RemainingSpins: outcome.RemainingSpins,
			TotalXP:        outcome.TotalXP,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("spin_wheel: %w", err)
	}
	return result, nil
}
