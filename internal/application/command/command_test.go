package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

const userID = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

type fixture struct {
	store  *memory.Store
	pub    *recordingPublisher
	runner *Runner
	engine *service.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg, err := service.DefaultConfig()
	require.NoError(t, err)
	cfg.Clock = &timeutil.FixedClock{At: time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)}
	cfg.Source = fixedSource(0.1)
	cfg.Forest, err = skill.NewForest([]skill.Node{
		{ID: "cards", Name: "Cartes", PreUnlocked: true},
		{ID: "double_lift", Name: "Double Lift", Parent: "cards", Cost: 100},
	})
	require.NoError(t, err)

	f := &fixture{store: memory.NewStore(), pub: &recordingPublisher{}}
	f.runner = NewRunner(f.store, f.pub, nil)
	f.engine = service.NewEngine(cfg, nil)

	_, err = NewInitializeUserHandler(f.runner, f.engine.Clock).Handle(context.Background(), InitializeUserCommand{UserID: userID})
	require.NoError(t, err)
	f.pub.reset()
	return f
}

func TestInitializeUser_Idempotent(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	h := NewInitializeUserHandler(NewRunner(store, pub, nil), nil)

	first, err := h.Handle(context.Background(), InitializeUserCommand{UserID: userID})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := h.Handle(context.Background(), InitializeUserCommand{UserID: userID})
	require.NoError(t, err)
	assert.False(t, second.Created)

	assert.Equal(t, []shared.EventType{shared.EventProfileInitialized}, pub.types())
}

func TestInitializeUser_RejectsBadID(t *testing.T) {
	h := NewInitializeUserHandler(NewRunner(memory.NewStore(), nil, nil), nil)
	_, err := h.Handle(context.Background(), InitializeUserCommand{UserID: "not-a-uuid"})
	assert.True(t, shared.IsValidation(err))
}

func TestCompleteSession_PublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	h := NewCompleteSessionHandler(f.runner, f.engine)

	res, err := h.Handle(context.Background(), CompleteSessionCommand{
		UserID:          userID,
		TrickID:         "ambitious-card",
		DurationSeconds: 45,
		StepCount:       4,
		CompletedSteps:  []string{"technique", "script", "video", "practice"},
		CorrelationID:   "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 150, res.XPEarned)
	assert.Equal(t, 350, res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, []string{"first_session", "tsvp_complete"}, res.Achievements)

	types := f.pub.types()
	assert.Contains(t, types, shared.EventSessionCompleted)
	assert.Contains(t, types, shared.EventLevelUp)
	for _, e := range f.pub.events {
		assert.Equal(t, "req-1", e.(shared.ProgressEvent).CorrelationID)
	}
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, userID)
}

func TestRunner_InvalidatesChangedUsersBeforeReturning(t *testing.T) {
	f := newFixture(t)
	inv := &recordingInvalidator{}
	h := NewCompleteSessionHandler(NewRunner(f.store, f.pub, nil, WithStateInvalidator(inv)), f.engine)

	_, err := h.Handle(context.Background(), CompleteSessionCommand{
		UserID: userID, TrickID: "ambitious-card", DurationSeconds: 45,
	})
	require.NoError(t, err)
	// Many events, one eviction.
	assert.Equal(t, []string{userID}, inv.ids)

	// A denied session changes no snapshot.
	inv.ids = nil
	_, err = h.Handle(context.Background(), CompleteSessionCommand{
		UserID: userID, TrickID: "french-drop", DurationSeconds: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, inv.ids)

	// Failed commands evict nothing.
	_, err = NewSpinWheelHandler(NewRunner(f.store, f.pub, nil, WithStateInvalidator(inv)), f.engine).
		Handle(context.Background(), SpinWheelCommand{UserID: userID})
	require.Error(t, err)
	assert.Empty(t, inv.ids)
}

func TestCompleteSession_DeniedIsNotAnError(t *testing.T) {
	f := newFixture(t)
	h := NewCompleteSessionHandler(f.runner, f.engine)

	res, err := h.Handle(context.Background(), CompleteSessionCommand{
		UserID: userID, TrickID: "french-drop", DurationSeconds: 20,
	})
	require.NoError(t, err)
	assert.True(t, res.Denied)
	assert.Zero(t, res.XPEarned)
	assert.Zero(t, res.TotalXP)
	assert.Equal(t, []shared.EventType{shared.EventAntiCheatDenied}, f.pub.types())
}

func TestCompleteSession_FailureRollsBackAndPublishesNothing(t *testing.T) {
	f := newFixture(t)
	h := NewCompleteSessionHandler(f.runner, f.engine)

	f.store.FailNext("IncrementTrainingCount", errors.New("connection reset"))
	_, err := h.Handle(context.Background(), CompleteSessionCommand{
		UserID: userID, TrickID: "french-drop", DurationSeconds: 60,
	})
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))

	assert.Empty(t, f.pub.types())
	assert.Empty(t, f.store.Sessions(shared.UserID(userID)))
}

func TestSpinWheel_NoSpins(t *testing.T) {
	f := newFixture(t)

	_, err := NewSpinWheelHandler(f.runner, f.engine).Handle(context.Background(), SpinWheelCommand{UserID: userID})
	assert.True(t, shared.IsInsufficientResource(err))
	assert.Empty(t, f.pub.types())
}

func TestSpinWheel_AfterFiveSessions(t *testing.T) {
	f := newFixture(t)
	sessions := NewCompleteSessionHandler(f.runner, f.engine)
	for i := 0; i < 5; i++ {
		_, err := sessions.Handle(context.Background(), CompleteSessionCommand{
			UserID: userID, TrickID: "french-drop", DurationSeconds: 60,
		})
		require.NoError(t, err)
	}

	res, err := NewSpinWheelHandler(f.runner, f.engine).Handle(context.Background(), SpinWheelCommand{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 0, res.WinnerIndex)
	assert.Equal(t, 0, res.RemainingSpins)
	// 5 sessions + first_session achievement + wheel slice.
	assert.Equal(t, 5*50+50+100, res.TotalXP)
}

func TestUnlockSkill_SecondPurchaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sessions := NewCompleteSessionHandler(f.runner, f.engine)
	_, err := sessions.Handle(context.Background(), CompleteSessionCommand{
		UserID: userID, TrickID: "french-drop", DurationSeconds: 60,
	})
	require.NoError(t, err) // 50 + first_session 50

	h := NewUnlockSkillHandler(f.runner, f.engine)
	first, err := h.Handle(context.Background(), UnlockSkillCommand{UserID: userID, SkillID: "double_lift"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyUnlocked)
	assert.Equal(t, 100, first.Cost)
	assert.Equal(t, 0, first.TotalXP)

	f.pub.reset()
	second, err := h.Handle(context.Background(), UnlockSkillCommand{UserID: userID, SkillID: "double_lift"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyUnlocked)
	assert.Equal(t, 0, second.TotalXP)
	assert.Empty(t, f.pub.types())
}

func TestUnlockSkill_Errors(t *testing.T) {
	f := newFixture(t)
	h := NewUnlockSkillHandler(f.runner, f.engine)

	_, err := h.Handle(context.Background(), UnlockSkillCommand{UserID: userID, SkillID: "double_lift"})
	assert.True(t, shared.IsInsufficientResource(err))

	_, err = h.Handle(context.Background(), UnlockSkillCommand{UserID: userID, SkillID: "sleight_of_foot"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), UnlockSkillCommand{UserID: userID})
	assert.True(t, shared.IsValidation(err))
}

func TestLibraryCommands_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewRateConfidenceHandler(f.runner, f.engine).Handle(context.Background(), RateConfidenceCommand{
		UserID: userID, TrickID: "triumph", Rating: 11,
	})
	assert.True(t, shared.IsValidation(err))

	_, err = NewMarkTrickReadyHandler(f.runner, f.engine).Handle(context.Background(), MarkTrickReadyCommand{
		UserID: userID, TrickID: "triumph", Category: "juggling",
	})
	assert.True(t, shared.IsValidation(err))
}

func TestAddTrick(t *testing.T) {
	f := newFixture(t)
	h := NewAddTrickHandler(f.runner, f.engine)

	_, err := h.Handle(context.Background(), AddTrickCommand{UserID: userID, TrickID: "triumph", Category: "juggling"})
	assert.True(t, shared.IsValidation(err))

	res, err := h.Handle(context.Background(), AddTrickCommand{UserID: userID, TrickID: "triumph", Category: "cards"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyInLibrary)
	assert.Equal(t, []string{"first_trick"}, res.Achievements)

	again, err := h.Handle(context.Background(), AddTrickCommand{UserID: userID, TrickID: "triumph", Category: "cards"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyInLibrary)
	assert.Empty(t, again.Achievements)
}

func TestMarkTrickReady(t *testing.T) {
	f := newFixture(t)
	h := NewMarkTrickReadyHandler(f.runner, f.engine)

	res, err := h.Handle(context.Background(), MarkTrickReadyCommand{UserID: userID, TrickID: "triumph", Category: "cards"})
	require.NoError(t, err)
	assert.Equal(t, 200, res.XPEarned)
	assert.Equal(t, []string{"first_trick", "first_ready"}, res.Achievements)

	again, err := h.Handle(context.Background(), MarkTrickReadyCommand{UserID: userID, TrickID: "triumph", Category: "cards"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyReady)
	assert.Zero(t, again.XPEarned)
}
