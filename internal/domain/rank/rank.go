// Package rank maps experience points to levels and levels to named rank tiers.
// Every function here is pure; the resolver is built once from the rules table
// and shared read-only.
package rank

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// Curve defines the XP threshold to reach a level: floor(Base * level^Exponent).
type Curve struct {
	Base     float64 `yaml:"base"`
	Exponent float64 `yaml:"exponent"`
}

// DefaultCurve is floor(100 * level^1.5).
var DefaultCurve = Curve{Base: 100, Exponent: 1.5}

// XPForLevel returns the XP threshold for the given level.
// Levels below 1 are treated as level 1.
func (c Curve) XPForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	// Pow goes through Exp/Log for fractional exponents; the epsilon keeps
	// exact thresholds such as 100*4^1.5 = 800 from flooring to 799.
	return int(math.Floor(c.Base*math.Pow(float64(level), c.Exponent) + 1e-9))
}

// LevelFor returns the largest level >= 1 whose threshold is <= xp.
func (c Curve) LevelFor(xp int) int {
	if xp <= 0 {
		return 1
	}

	// Start from the closed-form inverse and correct with the integer thresholds,
	// so the result always agrees with XPForLevel.
	level := int(math.Pow(float64(xp)/c.Base, 1/c.Exponent))
	if level < 1 {
		level = 1
	}
	for level > 1 && c.XPForLevel(level) > xp {
		level--
	}
	for c.XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// Validate checks the curve is strictly increasing over positive levels.
func (c Curve) Validate() error {
	if c.Base <= 0 {
		return fmt.Errorf("level curve base must be positive, got %v", c.Base)
	}
	if c.Exponent <= 0 {
		return fmt.Errorf("level curve exponent must be positive, got %v", c.Exponent)
	}
	if c.XPForLevel(2) <= c.XPForLevel(1) {
		return fmt.Errorf("level curve is not strictly increasing")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Tier is a named level range. MaxLevel 0 means the tier is open-ended.
type Tier struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	Icon     string `yaml:"icon" json:"icon,omitempty"`
	MinLevel int    `yaml:"min_level" json:"minLevel"`
	MaxLevel int    `yaml:"max_level" json:"maxLevel,omitempty"`
}

// Contains reports whether level falls into the tier.
func (t Tier) Contains(level int) bool {
	if level < t.MinLevel {
		return false
	}
	return t.MaxLevel == 0 || level <= t.MaxLevel
}

// DefaultTiers are the four ranks of the training program.
var DefaultTiers = []Tier{
	{ID: "apprenti", Label: "Apprenti", Icon: "🔰", MinLevel: 1, MaxLevel: 5},
	{ID: "initie", Label: "Initié", Icon: "✨", MinLevel: 6, MaxLevel: 10},
	{ID: "maitre", Label: "Maître", Icon: "🔥", MinLevel: 11, MaxLevel: 15},
	{ID: "grand_maitre", Label: "Grand Maître", Icon: "👑", MinLevel: 16},
}

// ValidateTiers checks that tiers start at level 1, are contiguous and
// ordered, and that only the last one is open-ended.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one rank tier is required")
	}
	if tiers[0].MinLevel != 1 {
		return fmt.Errorf("first rank tier %q must start at level 1", tiers[0].ID)
	}

	seen := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if t.ID == "" {
			return fmt.Errorf("rank tier %d has no id", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate rank tier %q", t.ID)
		}
		seen[t.ID] = true

		last := i == len(tiers)-1
		if t.MaxLevel == 0 && !last {
			return fmt.Errorf("rank tier %q is open-ended but not last", t.ID)
		}
		if t.MaxLevel != 0 && t.MaxLevel < t.MinLevel {
			return fmt.Errorf("rank tier %q has max_level below min_level", t.ID)
		}
		if !last && tiers[i+1].MinLevel != t.MaxLevel+1 {
			return fmt.Errorf("rank tiers %q and %q are not contiguous", t.ID, tiers[i+1].ID)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Resolver combines the level curve with the tier table.
type Resolver struct {
	curve Curve
	tiers []Tier
}

// NewResolver validates and builds a resolver.
func NewResolver(curve Curve, tiers []Tier) (*Resolver, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	cp := make([]Tier, len(tiers))
	copy(cp, tiers)
	return &Resolver{curve: curve, tiers: cp}, nil
}

// Default returns the resolver for DefaultCurve and DefaultTiers.
func Default() *Resolver {
	r, err := NewResolver(DefaultCurve, DefaultTiers)
	if err != nil {
		panic(err)
	}
	return r
}

// XPForLevel returns the XP threshold to reach level.
func (r *Resolver) XPForLevel(level int) int {
	return r.curve.XPForLevel(level)
}

// LevelFor returns the level for the given XP total.
func (r *Resolver) LevelFor(xp int) int {
	return r.curve.LevelFor(xp)
}

// RankFor returns the tier containing level. Levels past the last tier clamp
// to it and levels below 1 clamp to the first.
func (r *Resolver) RankFor(level int) Tier {
	if level < r.tiers[0].MinLevel {
		return r.tiers[0]
	}
	for _, t := range r.tiers {
		if t.Contains(level) {
			return t
		}
	}
	return r.tiers[len(r.tiers)-1]
}

// RankForXP is RankFor(LevelFor(xp)).
func (r *Resolver) RankForXP(xp int) Tier {
	return r.RankFor(r.LevelFor(xp))
}

// Tiers returns a copy of the tier table.
func (r *Resolver) Tiers() []Tier {
	cp := make([]Tier, len(r.tiers))
	copy(cp, r.tiers)
	return cp
}

// Progress describes where an XP total sits inside its level.
type Progress struct {
	Level          int  `json:"level"`
	Rank           Tier `json:"rank"`
	XPIntoLevel    int  `json:"xpIntoLevel"`
	XPForNextLevel int  `json:"xpForNextLevel"`
	Percent        int  `json:"percent"`
}

// ProgressFor computes level, rank, and progress to the next level.
// XPIntoLevel is clamped at zero for totals below the level-1 threshold.
func (r *Resolver) ProgressFor(xp int) Progress {
	level := r.LevelFor(xp)
	current := r.XPForLevel(level)
	next := r.XPForLevel(level + 1)

	into := xp - current
	if into < 0 {
		into = 0
	}
	needed := next - current

	percent := 0
	if needed > 0 {
		percent = into * 100 / needed
		if percent > 100 {
			percent = 100
		}
	}

	return Progress{
		Level:          level,
		Rank:           r.RankFor(level),
		XPIntoLevel:    into,
		XPForNextLevel: needed,
		Percent:        percent,
	}
}
