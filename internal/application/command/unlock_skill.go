package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// UnlockSkillCommand buys one skill node.
type UnlockSkillCommand struct {
	UserID        string
	SkillID       string
	CorrelationID string
}

// Validate validates the command.
func (c UnlockSkillCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.SkillID == "" {
		return shared.NewDomainError("skill", "Validate", shared.ErrInvalidID, "skill_id is required")
	}
	return nil
}

// UnlockSkillResult reports the purchase.
type UnlockSkillResult struct {
	SkillID         string
	Cost            int
	TotalXP         int
	AlreadyUnlocked bool
}

// UnlockSkillHandler handles UnlockSkillCommand.
type UnlockSkillHandler struct {
	runner *Runner
	engine *service.Engine
}

// NewUnlockSkillHandler creates the handler.
func NewUnlockSkillHandler(runner *Runner, engine *service.Engine) *UnlockSkillHandler {
	return &UnlockSkillHandler{runner: runner, engine: engine}
}

// Handle executes the command. Buying an owned node succeeds with
// AlreadyUnlocked set and debits nothing.
func (h *UnlockSkillHandler) Handle(ctx context.Context, cmd UnlockSkillCommand) (*UnlockSkillResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("unlock_skill: %w", err)
	}
	userID, _ := shared.NewUserID(cmd.UserID)

	result := &UnlockSkillResult{SkillID: cmd.SkillID}
	err := h.runner.Execute(ctx, "unlock_skill", cmd.CorrelationID, func(ctx context.Context, tx progression.Tx, out *service.Outbox) error {
		outcome, err := h.engine.Skills.Unlock(ctx, tx, userID, cmd.SkillID, out)
		switch {
		case errors.Is(err, shared.ErrAlreadyExists):
			p, perr := tx.GetProfile(ctx, userID)
			if perr != nil {
				return shared.StorageError("skill", "GetProfile", perr)
			}
			result.AlreadyUnlocked = true
			result.TotalXP = p.TotalXP
			return nil
		case err != nil:
			return err
		}
		result.Cost = outcome.Node.Cost
		result.TotalXP = outcome.TotalXP
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unlock_skill: %w", err)
	}
	return result, nil
}
