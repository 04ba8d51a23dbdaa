package service

import (
	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/rank"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// Config is the validated, immutable rule set the engine runs with.
type Config struct {
	Ranks             *rank.Resolver
	Wheel             *wheel.Wheel
	Forest            *skill.Forest
	Achievements      *achievement.Catalog
	Rewards           progression.XPRewards
	SpinThreshold     int
	MinSessionSeconds int
	StreakMilestones  []int

	// Source overrides the wheel's random source (tests).
	Source wheel.Source
	Clock  timeutil.Clock
}

// DefaultConfig builds the production rule set from the package defaults.
func DefaultConfig() (Config, error) {
	w, err := wheel.New(wheel.DefaultEntries)
	if err != nil {
		return Config{}, err
	}
	f, err := skill.NewForest(skill.DefaultNodes)
	if err != nil {
		return Config{}, err
	}
	c, err := achievement.NewCatalog(achievement.DefaultDefinitions)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Ranks:             rank.Default(),
		Wheel:             w,
		Forest:            f,
		Achievements:      c,
		Rewards:           progression.DefaultXPRewards,
		SpinThreshold:     wheel.DefaultSpinThreshold,
		MinSessionSeconds: progression.DefaultMinSessionSeconds,
		StreakMilestones:  append([]int(nil), streak.DefaultMilestones...),
	}, nil
}

// Engine wires the components together.
type Engine struct {
	Clock        timeutil.Clock
	Ledger       *Ledger
	Streaks      *StreakTracker
	Wheel        *RewardWheel
	Skills       *SkillTree
	Achievements *AchievementEvaluator
	Sessions     *SessionValidator
	Library      *TrickLibrary
}

// NewEngine builds every component from cfg.
func NewEngine(cfg Config, log *logger.Logger) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}

	ledger := NewLedger(cfg.Ranks, clock, log)
	streaks := NewStreakTracker(cfg.StreakMilestones, cfg.Rewards.StreakBonus, ledger, log)
	rw := NewRewardWheel(cfg.Wheel, cfg.Source, cfg.SpinThreshold, ledger, streaks, clock, log)
	skills := NewSkillTree(cfg.Forest, ledger, clock, log)
	ach := NewAchievementEvaluator(cfg.Achievements, ledger, clock, log)

	return &Engine{
		Clock:        clock,
		Ledger:       ledger,
		Streaks:      streaks,
		Wheel:        rw,
		Skills:       skills,
		Achievements: ach,
		Sessions:     NewSessionValidator(cfg.Rewards, cfg.MinSessionSeconds, ledger, rw, streaks, ach, log),
		Library:      NewTrickLibrary(cfg.Rewards, ledger, ach, log),
	}
}
