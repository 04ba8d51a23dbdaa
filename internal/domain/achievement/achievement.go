// Package achievement matches aggregate stats against unlock predicates.
//
// Definitions are loaded once from the rules table. Each carries a typed
// requirement that compiles to a pure predicate over a Stats snapshot.
package achievement

import (
	"fmt"
	"time"

	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Stats is the aggregate snapshot predicates are evaluated against.
type Stats struct {
	TrainingCount        int
	FullCycleSessions    int // sessions with every TSVP step completed
	TotalTrainingSeconds int
	CurrentStreak        int
	LongestStreak        int
	LibrarySize          int // tricks added to the library
	TricksMastered       int
	ReadyByCategory      map[shared.TrickCategory]int
	ConfidenceRatings    int
	MaxConfidence        int
	Level                int
	SkillsUnlocked       int
}

// CategoriesCovered counts categories with at least one ready trick.
func (s Stats) CategoriesCovered() int {
	n := 0
	for _, c := range s.ReadyByCategory {
		if c > 0 {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// ══════════════════════════════════════════════════════════════════════════════

// RequirementKind selects the stat a requirement is measured on.
type RequirementKind string

const (
	ReqTrainingCount     RequirementKind = "training_count"
	ReqFullCycleSessions RequirementKind = "full_cycle_sessions"
	ReqTrainingHours     RequirementKind = "training_hours"
	ReqCurrentStreak     RequirementKind = "current_streak"
	ReqLongestStreak     RequirementKind = "longest_streak"
	ReqLibrarySize       RequirementKind = "library_size"
	ReqTricksMastered    RequirementKind = "tricks_mastered"
	ReqCategoryMastered  RequirementKind = "category_mastered"
	ReqCategoriesCovered RequirementKind = "categories_covered"
	ReqConfidenceRatings RequirementKind = "confidence_ratings"
	ReqMaxConfidence     RequirementKind = "max_confidence"
	ReqLevel             RequirementKind = "level"
	ReqSkillsUnlocked    RequirementKind = "skills_unlocked"
)

// Requirement is "stat >= Value". Category is used by ReqCategoryMastered only.
type Requirement struct {
	Kind     RequirementKind      `yaml:"type" json:"type"`
	Value    int                  `yaml:"value" json:"value"`
	Category shared.TrickCategory `yaml:"category,omitempty" json:"category,omitempty"`
}

// Predicate is a pure test over a stats snapshot.
type Predicate func(Stats) bool

// Compile turns the requirement into a predicate.
func (r Requirement) Compile() (Predicate, error) {
	if r.Value <= 0 {
		return nil, fmt.Errorf("requirement %s must have a positive value", r.Kind)
	}
	v := r.Value

	var stat func(Stats) int
	switch r.Kind {
	case ReqTrainingCount:
		stat = func(s Stats) int { return s.TrainingCount }
	case ReqFullCycleSessions:
		stat = func(s Stats) int { return s.FullCycleSessions }
	case ReqTrainingHours:
		stat = func(s Stats) int { return s.TotalTrainingSeconds / int(time.Hour/time.Second) }
	case ReqCurrentStreak:
		stat = func(s Stats) int { return s.CurrentStreak }
	case ReqLongestStreak:
		stat = func(s Stats) int { return s.LongestStreak }
	case ReqLibrarySize:
		stat = func(s Stats) int { return s.LibrarySize }
	case ReqTricksMastered:
		stat = func(s Stats) int { return s.TricksMastered }
	case ReqCategoryMastered:
		if !r.Category.IsValid() {
			return nil, fmt.Errorf("requirement %s has unknown category %q", r.Kind, r.Category)
		}
		cat := r.Category
		stat = func(s Stats) int { return s.ReadyByCategory[cat] }
	case ReqCategoriesCovered:
		stat = Stats.CategoriesCovered
	case ReqConfidenceRatings:
		stat = func(s Stats) int { return s.ConfidenceRatings }
	case ReqMaxConfidence:
		stat = func(s Stats) int { return s.MaxConfidence }
	case ReqLevel:
		stat = func(s Stats) int { return s.Level }
	case ReqSkillsUnlocked:
		stat = func(s Stats) int { return s.SkillsUnlocked }
	default:
		return nil, fmt.Errorf("unknown requirement type %q", r.Kind)
	}

	return func(s Stats) bool { return stat(s) >= v }, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Category groups achievements for display.
type Category string

const (
	CategoryTraining Category = "training"
	CategoryLibrary  Category = "library"
	CategoryStreak   Category = "streak"
	CategorySocial   Category = "social"
)

// Definition is an immutable achievement.
type Definition struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Icon        string      `yaml:"icon" json:"icon"`
	Category    Category    `yaml:"category" json:"category"`
	XPReward    int         `yaml:"xp_reward" json:"xpReward"`
	Requirement Requirement `yaml:"requirement" json:"requirement"`
}

type compiled struct {
	def  Definition
	pred Predicate
}

// Catalog is the compiled, ordered set of definitions.
type Catalog struct {
	items []compiled
}

// NewCatalog compiles every definition and rejects duplicates.
func NewCatalog(defs []Definition) (*Catalog, error) {
	seen := make(map[string]bool, len(defs))
	items := make([]compiled, 0, len(defs))

	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("achievement with empty id")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate achievement %q", d.ID)
		}
		seen[d.ID] = true

		if d.XPReward < 0 {
			return nil, fmt.Errorf("achievement %q has negative xp reward", d.ID)
		}
		pred, err := d.Requirement.Compile()
		if err != nil {
			return nil, fmt.Errorf("achievement %q: %w", d.ID, err)
		}
		items = append(items, compiled{def: d, pred: pred})
	}

	return &Catalog{items: items}, nil
}

// Definitions returns the definitions in order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.items))
	for i, it := range c.items {
		out[i] = it.def
	}
	return out
}

// Lookup finds a definition by id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	for _, it := range c.items {
		if it.def.ID == id {
			return it.def, true
		}
	}
	return Definition{}, false
}

// Satisfied returns the definitions not in unlocked whose predicate holds.
func (c *Catalog) Satisfied(stats Stats, unlocked map[string]bool) []Definition {
	var out []Definition
	for _, it := range c.items {
		if unlocked[it.def.ID] {
			continue
		}
		if it.pred(stats) {
			out = append(out, it.def)
		}
	}
	return out
}
