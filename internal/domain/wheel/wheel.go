// Package wheel holds the reward wheel table and its weighted draw.
//
// The draw happens on the server only. A client never supplies a winner,
// a random value, or a reward; it renders the persisted outcome.
package wheel

import (
	"fmt"
	"math/rand/v2"

	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD
// ══════════════════════════════════════════════════════════════════════════════

// Kind is the closed set of reward kinds.
type Kind string

const (
	KindXP     Kind = "xp"
	KindShield Kind = "shield"
	KindBadge  Kind = "badge"
	KindTip    Kind = "tip"
)

// IsValid reports whether k is a known reward kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindXP, KindShield, KindBadge, KindTip:
		return true
	}
	return false
}

// Reward is a tagged variant: Amount is meaningful for KindXP only,
// ID for KindBadge and KindTip only.
type Reward struct {
	Kind   Kind   `yaml:"kind" json:"type"`
	Label  string `yaml:"label" json:"label"`
	Amount int    `yaml:"amount,omitempty" json:"value,omitempty"`
	ID     string `yaml:"id,omitempty" json:"id,omitempty"`
}

// XP creates an XP reward.
func XP(label string, amount int) Reward {
	return Reward{Kind: KindXP, Label: label, Amount: amount}
}

// Shield creates a streak shield reward.
func Shield(label string) Reward {
	return Reward{Kind: KindShield, Label: label}
}

// Badge creates a record-only badge reward.
func Badge(label, id string) Reward {
	return Reward{Kind: KindBadge, Label: label, ID: id}
}

// Tip creates a record-only tip reward.
func Tip(label, id string) Reward {
	return Reward{Kind: KindTip, Label: label, ID: id}
}

// Validate checks the variant is well formed.
func (r Reward) Validate() error {
	switch r.Kind {
	case KindXP:
		if r.Amount <= 0 {
			return fmt.Errorf("xp reward %q must have a positive amount", r.Label)
		}
	case KindBadge, KindTip:
		if r.ID == "" {
			return fmt.Errorf("%s reward %q must have an id", r.Kind, r.Label)
		}
	case KindShield:
	default:
		return fmt.Errorf("unknown reward kind %q", r.Kind)
	}
	return nil
}

// Value returns the amount for XP rewards and 1 for the others.
func (r Reward) Value() int {
	if r.Kind == KindXP {
		return r.Amount
	}
	return 1
}

// ══════════════════════════════════════════════════════════════════════════════
// WHEEL
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one slice of the wheel.
type Entry struct {
	Reward Reward `yaml:"reward" json:"reward"`
	Weight int    `yaml:"weight" json:"weight"`
}

// DefaultEntries is the production wheel, weights sum to 100.
var DefaultEntries = []Entry{
	{Reward: XP("+100 XP", 100), Weight: 30},
	{Reward: XP("+250 XP", 250), Weight: 15},
	{Reward: Shield("Bouclier Streak"), Weight: 20},
	{Reward: Tip("Conseil du jour", "daily_tip"), Weight: 25},
	{Reward: XP("+500 XP JACKPOT", 500), Weight: 5},
	{Reward: Badge("Badge exclusif", "wheel_exclusive"), Weight: 5},
}

// Source supplies uniform values in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the runtime's randomly seeded, goroutine-safe
// generator.
var DefaultSource Source = globalSource{}

// Wheel is an immutable weighted reward table.
type Wheel struct {
	entries []Entry
	total   int
}

// New validates entries and builds a wheel.
func New(entries []Entry) (*Wheel, error) {
	if len(entries) == 0 {
		return nil, shared.ErrEmptyWheel
	}

	total := 0
	for i, e := range entries {
		if e.Weight <= 0 {
			return nil, fmt.Errorf("wheel entry %d (%s) must have a positive weight", i, e.Reward.Label)
		}
		if err := e.Reward.Validate(); err != nil {
			return nil, fmt.Errorf("wheel entry %d: %w", i, err)
		}
		total += e.Weight
	}

	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Wheel{entries: cp, total: total}, nil
}

// TotalWeight returns the sum of all weights.
func (w *Wheel) TotalWeight() int {
	return w.total
}

// Entries returns a copy of the table in draw order.
func (w *Wheel) Entries() []Entry {
	cp := make([]Entry, len(w.entries))
	copy(cp, w.entries)
	return cp
}

// Draw picks a winner: r is uniform on [0, total), each entry's weight is
// subtracted in order and the first entry leaving r <= 0 wins.
func (w *Wheel) Draw(src Source) (int, Entry) {
	if src == nil {
		src = DefaultSource
	}

	r := src.Float64() * float64(w.total)
	for i, e := range w.entries {
		r -= float64(e.Weight)
		if r <= 0 {
			return i, e
		}
	}

	// Unreachable for r < total; guards float rounding.
	last := len(w.entries) - 1
	return last, w.entries[last]
}

// ══════════════════════════════════════════════════════════════════════════════
// SPIN BUDGET
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSpinThreshold is the number of qualifying sessions per earned spin.
const DefaultSpinThreshold = 5

// Budget is the wheel portion of a user's gamification progress.
type Budget struct {
	Available              int
	TotalSpins             int
	TrainingsSinceLastSpin int
}

// RecordTraining counts a qualifying session and grants a spin when the
// counter reaches threshold.
func (b Budget) RecordTraining(threshold int) (Budget, bool) {
	b.TrainingsSinceLastSpin++
	if threshold > 0 && b.TrainingsSinceLastSpin >= threshold {
		b.Available++
		b.TrainingsSinceLastSpin = 0
		return b, true
	}
	return b, false
}

// Consume spends one spin.
func (b Budget) Consume() (Budget, error) {
	if b.Available <= 0 {
		return b, shared.ErrNoSpinsAvailable
	}
	b.Available--
	b.TotalSpins++
	return b, nil
}

// TrainingsUntilNextSpin returns how many more sessions earn the next spin.
func (b Budget) TrainingsUntilNextSpin(threshold int) int {
	if threshold <= 0 {
		return 0
	}
	n := threshold - b.TrainingsSinceLastSpin
	if n < 0 {
		return 0
	}
	return n
}
