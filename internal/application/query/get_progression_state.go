// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/pkg/circuitbreaker"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESSION STATE QUERY
// Everything the profile screen shows in one read. Served from the state
// cache when possible; concurrent misses for one user share a single load.
// ══════════════════════════════════════════════════════════════════════════════

// StateCache stores serialized state per user. Load reports a miss as
// (false, nil).
type StateCache interface {
	Load(ctx context.Context, userID string, dest interface{}) (bool, error)
	Store(ctx context.Context, userID string, value interface{}) error
	Invalidate(ctx context.Context, userID string) error
}

// GetProgressionStateQuery identifies the user.
type GetProgressionStateQuery struct {
	UserID string

	// SkipCache forces a database read, e.g. right after a command.
	SkipCache bool
}

// Validate validates the query.
func (q GetProgressionStateQuery) Validate() error {
	_, err := shared.NewUserID(q.UserID)
	return err
}

// SkillStateDTO is one skill node with the user's state.
type SkillStateDTO struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Parent   string      `json:"parent,omitempty"`
	XPCost   int         `json:"xpCost"`
	State    skill.State `json:"state"`
}

// ProgressionStateDTO is the full progression snapshot of a user.
type ProgressionStateDTO struct {
	UserID string `json:"userId"`

	// ─────────────────────────────────────────────────────────────────────────
	// Level and rank
	// ─────────────────────────────────────────────────────────────────────────

	Level           int    `json:"level"`
	TotalXP         int    `json:"totalXp"`
	Rank            string `json:"rank"`
	RankLabel       string `json:"rankLabel"`
	RankIcon        string `json:"rankIcon,omitempty"`
	XPIntoLevel     int    `json:"xpIntoLevel"`
	XPForNextLevel  int    `json:"xpForNextLevel"`
	ProgressPercent int    `json:"progressPercent"`

	// ─────────────────────────────────────────────────────────────────────────
	// Streak
	// ─────────────────────────────────────────────────────────────────────────

	CurrentStreak    int     `json:"currentStreak"`
	LongestStreak    int     `json:"longestStreak"`
	LastTrainingDate *string `json:"lastTrainingDate,omitempty"`
	StreakShield     bool    `json:"streakShield"`
	StreakAtRisk     bool    `json:"streakAtRisk"`

	// ─────────────────────────────────────────────────────────────────────────
	// Wheel and counters
	// ─────────────────────────────────────────────────────────────────────────

	WheelSpinsAvailable    int `json:"wheelSpinsAvailable"`
	TotalWheelSpins        int `json:"totalWheelSpins"`
	TrainingsUntilNextSpin int `json:"trainingsUntilNextSpin"`
	TrainingCount          int `json:"trainingCount"`
	TricksMastered         int `json:"tricksMastered"`

	// ─────────────────────────────────────────────────────────────────────────
	// Unlocks
	// ─────────────────────────────────────────────────────────────────────────

	UnlockedSkillIDs       []string        `json:"unlockedSkillIds"`
	UnlockedAchievementIDs []string        `json:"unlockedAchievementIds"`
	Skills                 []SkillStateDTO `json:"skills"`
}

// GetProgressionStateHandler handles GetProgressionStateQuery.
type GetProgressionStateHandler struct {
	store   progression.Store
	engine  *service.Engine
	cache   StateCache
	breaker *circuitbreaker.CircuitBreaker
	clock   timeutil.Clock
	group   singleflight.Group
	gens    generations
	log     *logger.Logger
}

// generations counts invalidations per user, striped over a fixed number of
// counters. A load only populates the cache if no invalidation of its stripe
// happened while it ran.
type generations [256]atomic.Uint64

func (g *generations) slot(userID string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &g[h.Sum32()%uint32(len(g))]
}

func (g *generations) current(userID string) uint64 { return g.slot(userID).Load() }

func (g *generations) bump(userID string) { g.slot(userID).Add(1) }

// NewGetProgressionStateHandler creates the handler. cache may be nil.
func NewGetProgressionStateHandler(store progression.Store, engine *service.Engine, cache StateCache, log *logger.Logger) *GetProgressionStateHandler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("state_query"))

	return &GetProgressionStateHandler{
		store:  store,
		engine: engine,
		cache:  cache,
		breaker: circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("cache breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		clock: engine.Clock,
		log:   log,
	}
}

// Handle returns the user's state.
func (h *GetProgressionStateHandler) Handle(ctx context.Context, q GetProgressionStateQuery) (*ProgressionStateDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_progression_state: %w", err)
	}
	userID, _ := shared.NewUserID(q.UserID)
	key := userID.String()

	if !q.SkipCache {
		if cached, ok := h.fromCache(ctx, key); ok {
			return cached, nil
		}
	}

	v, err, _ := h.group.Do(key, func() (interface{}, error) {
		gen := h.gens.current(key)
		state, err := h.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		h.toCache(ctx, key, state, gen)
		return state, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get_progression_state: %w", err)
	}
	return v.(*ProgressionStateDTO), nil
}

// Invalidate drops the cached state of a user. Loads already in flight
// will not cache their result, and later reads start a fresh load.
// Cache errors are logged.
func (h *GetProgressionStateHandler) Invalidate(ctx context.Context, userID string) {
	h.gens.bump(userID)
	h.group.Forget(userID)
	if h.cache == nil {
		return
	}
	h.evict(ctx, userID)
}

func (h *GetProgressionStateHandler) fromCache(ctx context.Context, key string) (*ProgressionStateDTO, bool) {
	if h.cache == nil {
		return nil, false
	}
	var (
		state ProgressionStateDTO
		hit   bool
	)
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		hit, err = h.cache.Load(ctx, key, &state)
		return err
	})
	if err != nil {
		if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			h.log.Warn("cache read failed", logger.UserID(key), logger.Err(err))
		}
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &state, true
}

// toCache stores a state loaded at generation gen. Invalidate bumps the
// generation before deleting, so a write racing a delete is caught by the
// second check and evicted again.
func (h *GetProgressionStateHandler) toCache(ctx context.Context, key string, state *ProgressionStateDTO, gen uint64) {
	if h.cache == nil {
		return
	}
	if h.gens.current(key) != gen {
		h.log.Debug("state changed during load, not caching", logger.UserID(key))
		return
	}
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.cache.Store(ctx, key, state)
	})
	if err != nil && !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		h.log.Warn("cache write failed", logger.UserID(key), logger.Err(err))
		return
	}
	if h.gens.current(key) != gen {
		h.evict(ctx, key)
	}
}

func (h *GetProgressionStateHandler) evict(ctx context.Context, key string) {
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.cache.Invalidate(ctx, key)
	})
	if err != nil {
		h.log.Warn("cache invalidate failed", logger.UserID(key), logger.Err(err))
	}
}

func (h *GetProgressionStateHandler) load(ctx context.Context, userID shared.UserID) (*ProgressionStateDTO, error) {
	var state *ProgressionStateDTO

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		p, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return shared.StorageError("state", "GetProfile", err)
		}
		g, err := tx.GetGamification(ctx, userID)
		if err != nil {
			return shared.StorageError("state", "GetGamification", err)
		}
		views, owned, err := h.engine.Skills.Views(ctx, tx, userID, p.TotalXP)
		if err != nil {
			return err
		}
		achievements, err := tx.ListAchievements(ctx, userID)
		if err != nil {
			return shared.StorageError("state", "ListAchievements", err)
		}

		state = h.build(p, g, views, owned, achievements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (h *GetProgressionStateHandler) build(
	p *progression.Profile,
	g *progression.Gamification,
	views []skill.NodeView,
	owned, achievements []string,
) *ProgressionStateDTO {
	progress := h.engine.Ledger.Ranks().ProgressFor(p.TotalXP)

	state := &ProgressionStateDTO{
		UserID:                 p.UserID.String(),
		Level:                  p.Level,
		TotalXP:                p.TotalXP,
		Rank:                   progress.Rank.ID,
		RankLabel:              progress.Rank.Label,
		RankIcon:               progress.Rank.Icon,
		XPIntoLevel:            progress.XPIntoLevel,
		XPForNextLevel:         progress.XPForNextLevel,
		ProgressPercent:        progress.Percent,
		CurrentStreak:          p.CurrentStreak,
		LongestStreak:          p.LongestStreak,
		StreakShield:           g.StreakShield,
		StreakAtRisk:           streak.IsAtRisk(progression.StreakState(p, g), h.clock.Now()),
		WheelSpinsAvailable:    g.WheelSpinsAvailable,
		TotalWheelSpins:        g.TotalWheelSpins,
		TrainingsUntilNextSpin: g.Budget().TrainingsUntilNextSpin(h.engine.Wheel.Threshold()),
		TrainingCount:          p.TrainingCount,
		TricksMastered:         p.TricksMastered,
		UnlockedSkillIDs:       owned,
		UnlockedAchievementIDs: achievements,
		Skills:                 make([]SkillStateDTO, 0, len(views)),
	}
	if state.UnlockedAchievementIDs == nil {
		state.UnlockedAchievementIDs = []string{}
	}
	if p.LastTrainingDate != nil {
		d := timeutil.FormatDate(*p.LastTrainingDate)
		state.LastTrainingDate = &d
	}
	for _, v := range views {
		state.Skills = append(state.Skills, SkillStateDTO{
			ID:       v.ID,
			Name:     v.Name,
			Category: v.Category,
			Parent:   v.Parent,
			XPCost:   v.Cost,
			State:    v.State,
		})
	}
	return state
}
