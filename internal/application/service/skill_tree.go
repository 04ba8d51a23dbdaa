package service

import (
	"context"

	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// UnlockOutcome is the result of a successful purchase.
type UnlockOutcome struct {
	Node    skill.Node
	TotalXP int
}

// SkillTree sells skill nodes for XP.
type SkillTree struct {
	forest *skill.Forest
	ledger *Ledger
	clock  timeutil.Clock
	log    *logger.Logger
}

// NewSkillTree creates the skill tree component.
func NewSkillTree(forest *skill.Forest, ledger *Ledger, clock timeutil.Clock, log *logger.Logger) *SkillTree {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SkillTree{forest: forest, ledger: ledger, clock: clock, log: log.With(logger.Component("skill_tree"))}
}

// Forest returns the node definitions.
func (s *SkillTree) Forest() *skill.Forest {
	return s.forest
}

// Unlock buys nodeID for the user. XP and ownership are read inside tx; the
// client never supplies either. The ownership insert and the debit share tx,
// so a failure of either leaves both unapplied.
func (s *SkillTree) Unlock(ctx context.Context, tx progression.Tx, userID shared.UserID, nodeID string, out *Outbox) (*UnlockOutcome, error) {
	node, err := s.forest.Node(nodeID)
	if err != nil {
		return nil, err
	}

	p, err := tx.LockProfile(ctx, userID)
	if err != nil {
		return nil, shared.StorageError("skill", "LockProfile", err)
	}
	persisted, err := tx.ListSkills(ctx, userID)
	if err != nil {
		return nil, shared.StorageError("skill", "ListSkills", err)
	}

	if err := skill.CheckUnlock(node, s.forest.Owned(persisted), p.TotalXP); err != nil {
		return nil, err
	}

	inserted, err := tx.InsertSkill(ctx, userID, node.ID, s.clock.Now())
	if err != nil {
		return nil, shared.StorageError("skill", "InsertSkill", err)
	}
	if !inserted {
		return nil, shared.ErrSkillAlreadyUnlocked
	}

	outcome := &UnlockOutcome{Node: node, TotalXP: p.TotalXP}
	if node.Cost > 0 {
		c, err := s.ledger.ApplyDebit(ctx, tx, userID, node.Cost, progression.ReasonSkillPurchase, node.ID, out)
		if err != nil {
			return nil, err
		}
		outcome.TotalXP = c.TotalXP
	}

	out.Add(shared.NewProgressEvent(shared.EventSkillUnlocked, userID.String(), map[string]interface{}{
		"skill_id": node.ID,
		"cost":     node.Cost,
	}))
	s.log.Info("skill unlocked",
		logger.UserID(userID.String()),
		logger.SkillID(node.ID),
		logger.Int("cost", node.Cost),
	)
	return outcome, nil
}

// Views returns every node with its state for the user.
func (s *SkillTree) Views(ctx context.Context, tx progression.Tx, userID shared.UserID, availableXP int) ([]skill.NodeView, []string, error) {
	persisted, err := tx.ListSkills(ctx, userID)
	if err != nil {
		return nil, nil, shared.StorageError("skill", "ListSkills", err)
	}
	owned := s.forest.Owned(persisted)
	return s.forest.Views(owned, availableXP), skill.SortedIDs(owned), nil
}
