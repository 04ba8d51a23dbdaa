package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

const testUser = shared.UserID("3f2504e0-4f89-11d3-9a0c-0305e82c3301")

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

type harness struct {
	engine *Engine
	store  *memory.Store
	clock  *timeutil.FixedClock
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cfg, err := DefaultConfig()
	require.NoError(t, err)

	clock := &timeutil.FixedClock{At: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	cfg.Clock = clock
	cfg.Source = fixedSource(0.1) // first wheel slice: +100 XP
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{engine: NewEngine(cfg, nil), store: memory.NewStore(), clock: clock}
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		_, err := tx.CreateProfile(ctx, testUser, clock.Now())
		return err
	})
	return h
}

func (h *harness) tx(t *testing.T, fn func(ctx context.Context, tx progression.Tx) error) {
	t.Helper()
	require.NoError(t, h.store.WithinTx(context.Background(), fn))
}

func (h *harness) profile(t *testing.T) (*progression.Profile, *progression.Gamification) {
	t.Helper()
	var (
		p *progression.Profile
		g *progression.Gamification
	)
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		if p, err = tx.GetProfile(ctx, testUser); err != nil {
			return err
		}
		g, err = tx.GetGamification(ctx, testUser)
		return err
	})
	return p, g
}

func (h *harness) complete(t *testing.T, duration float64, steps ...string) *SessionOutcome {
	t.Helper()
	var outcome *SessionOutcome
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		outcome, err = h.engine.Sessions.Complete(ctx, tx, SessionInput{
			UserID:          testUser,
			TrickID:         "ambitious-card",
			DurationSeconds: duration,
			StepCount:       len(steps),
			CompletedSteps:  steps,
		}, h.clock.Now(), &Outbox{})
		return err
	})
	return outcome
}

var allSteps = []string{StepTechnique, StepScript, StepVideo, StepPractice}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func TestLedger_CreditKeepsLevelDerived(t *testing.T) {
	h := newHarness(t, nil)
	out := &Outbox{}

	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		c, err := h.engine.Ledger.ApplyCredit(ctx, tx, testUser, 300, progression.ReasonWheelReward, "spin-1", out)
		require.NoError(t, err)
		assert.True(t, c.LeveledUp)
		assert.Equal(t, 2, c.NewLevel)
		return nil
	})

	p, _ := h.profile(t)
	assert.Equal(t, 300, p.TotalXP)
	assert.Equal(t, h.engine.Ledger.Ranks().LevelFor(p.TotalXP), p.Level)

	var types []shared.EventType
	for _, e := range out.Events() {
		types = append(types, e.EventType())
	}
	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventLevelUp}, types)
}

func TestLedger_DebitNeverGoesNegative(t *testing.T) {
	h := newHarness(t, nil)

	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Ledger.ApplyDebit(ctx, tx, testUser, 10, progression.ReasonSkillPurchase, "palm", nil)
		return err
	})
	assert.True(t, shared.IsInsufficientResource(err))

	p, _ := h.profile(t)
	assert.Equal(t, 0, p.TotalXP)
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	h := newHarness(t, nil)

	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Ledger.ApplyCredit(ctx, tx, testUser, 0, progression.ReasonWheelReward, "", nil)
		return err
	})
	assert.True(t, shared.IsValidation(err))
}

func TestLedger_UninitializedUser(t *testing.T) {
	h := newHarness(t, nil)

	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Ledger.ApplyCredit(ctx, tx, "00000000-0000-0000-0000-000000000001", 10, progression.ReasonWheelReward, "", nil)
		return err
	})
	assert.True(t, shared.IsNotInitialized(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestSession_BelowMinimumEarnsNothing(t *testing.T) {
	h := newHarness(t, nil)

	outcome := h.complete(t, 20, allSteps...)
	assert.Equal(t, 0, outcome.XPEarned)
	assert.True(t, outcome.Denied)
	assert.Empty(t, outcome.Bonuses)

	sessions := h.store.Sessions(testUser)
	require.Len(t, sessions, 1)
	assert.Equal(t, 0, sessions[0].XPEarned)
	assert.Equal(t, 20, sessions[0].DurationSeconds)

	p, g := h.profile(t)
	assert.Equal(t, 0, p.TotalXP)
	assert.Equal(t, 0, p.TrainingCount)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.Equal(t, 0, g.TrainingsSinceLastSpin)
}

func TestSession_FullCycleEarnsBothRewards(t *testing.T) {
	h := newHarness(t, nil)

	outcome := h.complete(t, 45, allSteps...)
	assert.Equal(t, 150, outcome.XPEarned)
	assert.Equal(t, []Bonus{{"Session terminée", 50}, {"Cycle complet", 100}}, outcome.Bonuses)

	var ids []string
	for _, d := range outcome.Achievements {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"first_session", "tsvp_complete"}, ids)

	p, g := h.profile(t)
	assert.Equal(t, 150+50+150, p.TotalXP)
	assert.Equal(t, 1, p.TrainingCount)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 1, g.TrainingsSinceLastSpin)
	assert.Equal(t, p.Level, h.engine.Ledger.Ranks().LevelFor(p.TotalXP))
}

func TestSession_FullCycleCountsReportedEntries(t *testing.T) {
	h := newHarness(t, nil)

	// Whatever the entries are, four of them are a full cycle, and the
	// bonus agrees with the full-cycle achievement.
	outcome := h.complete(t, 45, StepVideo, StepVideo, "2", "juggling")
	assert.Equal(t, 150, outcome.XPEarned)

	var ids []string
	for _, d := range outcome.Achievements {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, "tsvp_complete")

	sessions := h.store.Sessions(testUser)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].FullCycle())
}

func TestSession_PartialCycleGetsNoBonusNorAchievement(t *testing.T) {
	h := newHarness(t, nil)

	outcome := h.complete(t, 45, StepTechnique, StepScript, StepVideo)
	assert.Equal(t, 50, outcome.XPEarned)
	for _, d := range outcome.Achievements {
		assert.NotEqual(t, "tsvp_complete", d.ID)
	}
}

func TestSession_ValidationLeavesNoTrace(t *testing.T) {
	h := newHarness(t, nil)

	for _, in := range []SessionInput{
		{UserID: testUser, TrickID: "t1", DurationSeconds: -1},
		{UserID: testUser, TrickID: "", DurationSeconds: 40},
		{UserID: testUser, TrickID: "t1", DurationSeconds: 40, StepCount: -2},
	} {
		err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
			_, err := h.engine.Sessions.Complete(ctx, tx, in, h.clock.Now(), nil)
			return err
		})
		assert.True(t, shared.IsValidation(err), "input %+v", in)
	}

	assert.Empty(t, h.store.Sessions(testUser))
}

func TestSession_GrantsSpinEveryFifthSession(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Achievements, _ = achievement.NewCatalog(nil)
	})

	for i := 1; i <= 5; i++ {
		outcome := h.complete(t, 60)
		assert.Equal(t, i == 5, outcome.SpinGranted, "session %d", i)
	}

	_, g := h.profile(t)
	assert.Equal(t, 1, g.WheelSpinsAvailable)
	assert.Equal(t, 0, g.TrainingsSinceLastSpin)
}

func TestSession_StreakMilestoneBonus(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Achievements, _ = achievement.NewCatalog(nil)
	})

	h.complete(t, 60)
	h.clock.At = h.clock.At.Add(24 * time.Hour)
	h.complete(t, 60)
	h.clock.At = h.clock.At.Add(24 * time.Hour)
	outcome := h.complete(t, 60)

	assert.Equal(t, 3, outcome.Streak.Milestone)
	p, _ := h.profile(t)
	assert.Equal(t, 3, p.CurrentStreak)
	assert.Equal(t, 3*50+25, p.TotalXP)
}

// Two overlapping completions must both land: no lost update.
func TestSession_ConcurrentCompletionsDoNotLoseUpdates(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Achievements, _ = achievement.NewCatalog(nil)
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
				_, err := h.engine.Sessions.Complete(ctx, tx, SessionInput{
					UserID:          testUser,
					TrickID:         "french-drop",
					DurationSeconds: 45,
				}, h.clock.Now(), &Outbox{})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, _ := h.profile(t)
	assert.Equal(t, 100, p.TotalXP)
	assert.Equal(t, 2, p.TrainingCount)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD WHEEL
// ══════════════════════════════════════════════════════════════════════════════

func grantSpins(t *testing.T, h *harness, n int) {
	t.Helper()
	for i := 0; i < n*h.engine.Wheel.Threshold(); i++ {
		h.tx(t, func(ctx context.Context, tx progression.Tx) error {
			_, _, err := h.engine.Wheel.RecordTraining(ctx, tx, testUser, nil)
			return err
		})
	}
}

func TestWheel_SpinWithoutBudget(t *testing.T) {
	h := newHarness(t, nil)

	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Wheel.Spin(ctx, tx, testUser, nil)
		return err
	})
	assert.True(t, shared.IsInsufficientResource(err))
	assert.Empty(t, h.store.Spins(testUser))

	_, g := h.profile(t)
	assert.Equal(t, 0, g.WheelSpinsAvailable)
	assert.Equal(t, 0, g.TotalWheelSpins)
}

func TestWheel_SpinAppliesRewardAndDecrementsOnce(t *testing.T) {
	h := newHarness(t, nil)
	grantSpins(t, h, 2)

	var outcome *SpinOutcome
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		outcome, err = h.engine.Wheel.Spin(ctx, tx, testUser, &Outbox{})
		return err
	})

	assert.Equal(t, 0, outcome.WinnerIndex)
	assert.Equal(t, 100, outcome.Reward.Amount)
	assert.Equal(t, 1, outcome.RemainingSpins)

	p, g := h.profile(t)
	assert.Equal(t, 100, p.TotalXP)
	assert.Equal(t, 1, g.WheelSpinsAvailable)
	assert.Equal(t, 1, g.TotalWheelSpins)

	spins := h.store.Spins(testUser)
	require.Len(t, spins, 1)
	assert.Equal(t, outcome.SpinID, spins[0].ID)
}

func TestWheel_ShieldReward(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Source = fixedSource(0.5) }) // third slice
	grantSpins(t, h, 1)

	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Wheel.Spin(ctx, tx, testUser, nil)
		return err
	})

	p, g := h.profile(t)
	assert.True(t, g.StreakShield)
	assert.Equal(t, 0, p.TotalXP)
	assert.Equal(t, 0, g.WheelSpinsAvailable)
}

func TestWheel_FailedRewardRollsBackSpin(t *testing.T) {
	h := newHarness(t, nil)
	grantSpins(t, h, 1)

	h.store.FailNext("AppendLedger", errors.New("disk full"))
	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Wheel.Spin(ctx, tx, testUser, nil)
		return err
	})
	assert.True(t, shared.IsStorage(err))

	p, g := h.profile(t)
	assert.Equal(t, 0, p.TotalXP)
	assert.Equal(t, 1, g.WheelSpinsAvailable)
	assert.Equal(t, 0, g.TotalWheelSpins)
}

// ══════════════════════════════════════════════════════════════════════════════
// SKILL TREE
// ══════════════════════════════════════════════════════════════════════════════

func testForest(t *testing.T) *skill.Forest {
	t.Helper()
	f, err := skill.NewForest([]skill.Node{
		{ID: "root", PreUnlocked: true},
		{ID: "free", Parent: "root", Cost: 0},
		{ID: "costly", Parent: "root", Cost: 200},
		{ID: "child", Parent: "costly", Cost: 50},
	})
	require.NoError(t, err)
	return f
}

func (h *harness) unlock(nodeID string) error {
	return h.store.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Skills.Unlock(ctx, tx, testUser, nodeID, &Outbox{})
		return err
	})
}

func (h *harness) credit(t *testing.T, amount int) {
	t.Helper()
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Ledger.ApplyCredit(ctx, tx, testUser, amount, progression.ReasonWheelReward, "test", nil)
		return err
	})
}

func (h *harness) skills(t *testing.T) []string {
	t.Helper()
	var ids []string
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		ids, err = tx.ListSkills(ctx, testUser)
		return err
	})
	return ids
}

func TestSkillTree_Unlock(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Forest = testForest(t) })

	// Cost 0 with an owned parent succeeds with no XP at all.
	require.NoError(t, h.unlock("free"))

	// Cost 200 with 150 XP is rejected and changes nothing.
	h.credit(t, 150)
	err := h.unlock("costly")
	assert.True(t, shared.IsInsufficientResource(err))
	p, _ := h.profile(t)
	assert.Equal(t, 150, p.TotalXP)
	assert.Equal(t, []string{"free"}, h.skills(t))

	// Parent not owned: prerequisite error even with plenty of XP.
	h.credit(t, 1000)
	err = h.unlock("child")
	assert.True(t, shared.IsPrerequisiteNotMet(err))

	require.NoError(t, h.unlock("costly"))
	p, _ = h.profile(t)
	assert.Equal(t, 950, p.TotalXP)
	assert.Equal(t, []string{"costly", "free"}, h.skills(t))

	// Second purchase is reported as already unlocked and debits nothing.
	err = h.unlock("costly")
	assert.True(t, shared.IsAlreadyExists(err))
	p, _ = h.profile(t)
	assert.Equal(t, 950, p.TotalXP)

	assert.True(t, shared.IsNotFound(h.unlock("levitation")))
	assert.True(t, shared.IsAlreadyExists(h.unlock("root")))
}

func TestSkillTree_DebitFailureRollsBackOwnership(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Forest = testForest(t) })
	h.credit(t, 500)

	h.store.FailNext("AddXP", errors.New("connection reset"))
	err := h.unlock("costly")
	assert.True(t, shared.IsStorage(err))

	p, _ := h.profile(t)
	assert.Equal(t, 500, p.TotalXP)
	assert.Empty(t, h.skills(t))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestAchievements_ReevaluateIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		_, err := tx.IncrementTrainingCount(ctx, testUser)
		return err
	})

	reevaluate := func() []achievement.Definition {
		var got []achievement.Definition
		h.tx(t, func(ctx context.Context, tx progression.Tx) error {
			var err error
			got, err = h.engine.Achievements.Reevaluate(ctx, tx, testUser, &Outbox{})
			return err
		})
		return got
	}

	first := reevaluate()
	require.Len(t, first, 1)
	assert.Equal(t, "first_session", first[0].ID)

	assert.Empty(t, reevaluate())

	p, _ := h.profile(t)
	assert.Equal(t, 50, p.TotalXP)
}

func TestAchievements_LevelRewardsCascade(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Achievements, _ = achievement.NewCatalog([]achievement.Definition{
			{ID: "one", XPReward: 300, Requirement: achievement.Requirement{Kind: achievement.ReqTrainingCount, Value: 1}},
			{ID: "level_2", XPReward: 10, Requirement: achievement.Requirement{Kind: achievement.ReqLevel, Value: 2}},
		})
	})
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		_, err := tx.IncrementTrainingCount(ctx, testUser)
		return err
	})

	var got []achievement.Definition
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		got, err = h.engine.Achievements.Reevaluate(ctx, tx, testUser, nil)
		return err
	})
	require.Len(t, got, 2)
	assert.Equal(t, "level_2", got[1].ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIBRARY
// ══════════════════════════════════════════════════════════════════════════════

func TestLibrary_MarkReadyOnce(t *testing.T) {
	h := newHarness(t, nil)
	m := &progression.MasteredTrick{UserID: testUser, TrickID: "matrix", Category: shared.CategoryCoins, ReadyAt: h.clock.Now()}

	var first, second *ReadyOutcome
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		first, err = h.engine.Library.MarkReady(ctx, tx, m, nil)
		return err
	})
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		second, err = h.engine.Library.MarkReady(ctx, tx, m, nil)
		return err
	})

	assert.Equal(t, 200, first.XPEarned)
	require.Len(t, first.Achievements, 2)
	assert.Equal(t, "first_trick", first.Achievements[0].ID)
	assert.Equal(t, "first_ready", first.Achievements[1].ID)
	assert.True(t, second.AlreadyReady)

	p, _ := h.profile(t)
	assert.Equal(t, 1, p.TricksMastered)
	assert.Equal(t, 200+100+200, p.TotalXP)
}

func (h *harness) addTrick(t *testing.T, id shared.TrickID) *AddOutcome {
	t.Helper()
	var outcome *AddOutcome
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		outcome, err = h.engine.Library.AddTrick(ctx, tx, &progression.LibraryTrick{
			UserID: testUser, TrickID: id, Category: shared.CategoryCards, AddedAt: h.clock.Now(),
		}, &Outbox{})
		return err
	})
	return outcome
}

func TestLibrary_AddTrickOnce(t *testing.T) {
	h := newHarness(t, nil)

	first := h.addTrick(t, "triumph")
	assert.False(t, first.AlreadyInLibrary)
	require.Len(t, first.Achievements, 1)
	assert.Equal(t, "first_trick", first.Achievements[0].ID)

	again := h.addTrick(t, "triumph")
	assert.True(t, again.AlreadyInLibrary)
	assert.Empty(t, again.Achievements)

	p, _ := h.profile(t)
	assert.Equal(t, 100, p.TotalXP)
	assert.Zero(t, p.TricksMastered)
}

func TestLibrary_SizeAchievements(t *testing.T) {
	h := newHarness(t, nil)

	var unlocked []string
	for i := 0; i < 10; i++ {
		for _, d := range h.addTrick(t, shared.TrickID(fmt.Sprintf("trick-%d", i))).Achievements {
			unlocked = append(unlocked, d.ID)
		}
	}
	// Re-adding an existing trick does not grow the library.
	h.addTrick(t, "trick-0")

	assert.Equal(t, []string{"first_trick", "tricks_10"}, unlocked)
	p, _ := h.profile(t)
	assert.Equal(t, 100+150, p.TotalXP)
}

func TestLibrary_ReadyTrickJoinsLibrary(t *testing.T) {
	h := newHarness(t, nil)
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		_, err := h.engine.Library.MarkReady(ctx, tx, &progression.MasteredTrick{
			UserID: testUser, TrickID: "matrix", Category: shared.CategoryCoins, ReadyAt: h.clock.Now(),
		}, nil)
		return err
	})

	assert.True(t, h.addTrick(t, "matrix").AlreadyInLibrary)
}

func TestLibrary_RateConfidence(t *testing.T) {
	h := newHarness(t, nil)

	var outcome *RatingOutcome
	h.tx(t, func(ctx context.Context, tx progression.Tx) error {
		var err error
		outcome, err = h.engine.Library.RateConfidence(ctx, tx, &progression.ConfidenceRating{
			UserID: testUser, TrickID: "triumph", Rating: 10,
		}, h.clock.Now(), nil)
		return err
	})

	assert.Equal(t, 15, outcome.XPEarned)
	var ids []string
	for _, d := range outcome.Achievements {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"first_confidence", "confidence_max"}, ids)
}
