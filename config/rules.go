package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/rank"
	"github.com/ledojo/progression-engine/internal/domain/skill"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the progression rules table as written in YAML.
type Rules struct {
	XPRewards  progression.XPRewards `yaml:"xp_rewards"`
	LevelCurve rank.Curve            `yaml:"level_curve"`
	Ranks      []rank.Tier           `yaml:"ranks"`

	AntiCheat struct {
		MinSessionSeconds int `yaml:"min_session_seconds"`
	} `yaml:"anti_cheat"`

	Streak struct {
		Milestones []int `yaml:"milestones"`
	} `yaml:"streak"`

	Wheel struct {
		SpinThreshold int           `yaml:"spin_threshold"`
		Entries       []wheel.Entry `yaml:"entries"`
	} `yaml:"wheel"`

	Skills       []skill.Node             `yaml:"skills"`
	Achievements []achievement.Definition `yaml:"achievements"`
}

// DefaultRules parses the embedded rules table.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads the rules table from path, or the embedded table when
// path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(raw)
}

// ParseRules decodes a rules table. Unknown keys are rejected.
func ParseRules(raw []byte) (*Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &r, nil
}

// EngineConfig validates the table and builds the immutable engine rules.
func (r *Rules) EngineConfig() (service.Config, error) {
	if err := r.XPRewards.Validate(); err != nil {
		return service.Config{}, fmt.Errorf("xp_rewards: %w", err)
	}
	if r.AntiCheat.MinSessionSeconds < 0 {
		return service.Config{}, fmt.Errorf("anti_cheat.min_session_seconds cannot be negative")
	}
	if r.Wheel.SpinThreshold <= 0 {
		return service.Config{}, fmt.Errorf("wheel.spin_threshold must be positive")
	}
	for _, m := range r.Streak.Milestones {
		if m <= 0 {
			return service.Config{}, fmt.Errorf("streak milestone %d must be positive", m)
		}
	}

	ranks, err := rank.NewResolver(r.LevelCurve, r.Ranks)
	if err != nil {
		return service.Config{}, fmt.Errorf("ranks: %w", err)
	}
	w, err := wheel.New(r.Wheel.Entries)
	if err != nil {
		return service.Config{}, fmt.Errorf("wheel: %w", err)
	}
	forest, err := skill.NewForest(r.Skills)
	if err != nil {
		return service.Config{}, fmt.Errorf("skills: %w", err)
	}
	catalog, err := achievement.NewCatalog(r.Achievements)
	if err != nil {
		return service.Config{}, fmt.Errorf("achievements: %w", err)
	}

	return service.Config{
		Ranks:             ranks,
		Wheel:             w,
		Forest:            forest,
		Achievements:      catalog,
		Rewards:           r.XPRewards,
		SpinThreshold:     r.Wheel.SpinThreshold,
		MinSessionSeconds: r.AntiCheat.MinSessionSeconds,
		StreakMilestones:  append([]int(nil), r.Streak.Milestones...),
	}, nil
}
