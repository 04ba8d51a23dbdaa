package service

import (
	"context"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// AchievementEvaluator unlocks achievements whose predicate holds.
type AchievementEvaluator struct {
	catalog *achievement.Catalog
	ledger  *Ledger
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewAchievementEvaluator creates the evaluator.
func NewAchievementEvaluator(catalog *achievement.Catalog, ledger *Ledger, clock timeutil.Clock, log *logger.Logger) *AchievementEvaluator {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementEvaluator{catalog: catalog, ledger: ledger, clock: clock, log: log.With(logger.Component("achievements"))}
}

// Catalog returns the definitions.
func (a *AchievementEvaluator) Catalog() *achievement.Catalog {
	return a.catalog
}

// Reevaluate unlocks every satisfied achievement that is not logged yet and
// credits its reward. The log insert is conditional, so running it twice for
// the same event awards nothing the second time. Rewards can raise the level,
// so evaluation repeats until no new achievement qualifies.
func (a *AchievementEvaluator) Reevaluate(ctx context.Context, tx progression.Tx, userID shared.UserID, out *Outbox) ([]achievement.Definition, error) {
	var unlocked []achievement.Definition

	for pass := 0; pass <= len(a.catalog.Definitions()); pass++ {
		logged, err := tx.ListAchievements(ctx, userID)
		if err != nil {
			return nil, shared.StorageError("achievement", "ListAchievements", err)
		}
		stats, err := tx.LoadStats(ctx, userID)
		if err != nil {
			return nil, shared.StorageError("achievement", "LoadStats", err)
		}

		have := make(map[string]bool, len(logged))
		for _, id := range logged {
			have[id] = true
		}

		candidates := a.catalog.Satisfied(stats, have)
		if len(candidates) == 0 {
			break
		}

		for _, def := range candidates {
			inserted, err := tx.InsertAchievement(ctx, userID, def.ID, a.clock.Now())
			if err != nil {
				return nil, shared.StorageError("achievement", "InsertAchievement", err)
			}
			if !inserted {
				continue
			}
			if def.XPReward > 0 {
				if _, err := a.ledger.ApplyCredit(ctx, tx, userID, def.XPReward, progression.ReasonAchievement, def.ID, out); err != nil {
					return nil, err
				}
			}
			out.Add(shared.NewProgressEvent(shared.EventAchievementUnlock, userID.String(), map[string]interface{}{
				"achievement_id": def.ID,
				"xp_reward":      def.XPReward,
			}))
			a.log.Info("achievement unlocked", logger.UserID(userID.String()), logger.String("achievement_id", def.ID))
			unlocked = append(unlocked, def)
		}
	}

	return unlocked, nil
}
