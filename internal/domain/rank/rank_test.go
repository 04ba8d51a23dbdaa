package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPForLevel(t *testing.T) {
	r := Default()

	assert.Equal(t, 100, r.XPForLevel(1))
	assert.Equal(t, 282, r.XPForLevel(2))
	assert.Equal(t, 800, r.XPForLevel(4))
	assert.Equal(t, 519, r.XPForLevel(3))
	assert.Equal(t, 100, r.XPForLevel(0))
}

func TestLevelFor_RoundTrip(t *testing.T) {
	r := Default()

	for level := 1; level <= 100; level++ {
		threshold := r.XPForLevel(level)
		assert.Equal(t, level, r.LevelFor(threshold), "level %d", level)
		if level > 1 {
			assert.Equal(t, level-1, r.LevelFor(threshold-1), "just below level %d", level)
		}
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	r := Default()

	prev := r.LevelFor(0)
	for xp := 1; xp <= 200000; xp += 37 {
		lvl := r.LevelFor(xp)
		require.GreaterOrEqual(t, lvl, prev, "xp %d", xp)
		prev = lvl
	}
}

func TestLevelFor_LowTotals(t *testing.T) {
	r := Default()

	assert.Equal(t, 1, r.LevelFor(-5))
	assert.Equal(t, 1, r.LevelFor(0))
	assert.Equal(t, 1, r.LevelFor(99))
	assert.Equal(t, 1, r.LevelFor(281))
	assert.Equal(t, 2, r.LevelFor(282))
}

func TestRankFor(t *testing.T) {
	r := Default()

	tests := []struct {
		level int
		want  string
	}{
		{0, "apprenti"},
		{1, "apprenti"},
		{5, "apprenti"},
		{6, "initie"},
		{10, "initie"},
		{11, "maitre"},
		{15, "maitre"},
		{16, "grand_maitre"},
		{20, "grand_maitre"},
		{500, "grand_maitre"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, r.RankFor(tt.level).ID, "level %d", tt.level)
	}
}

func TestRankFor_MonotonicAcrossLevels(t *testing.T) {
	r := Default()
	order := map[string]int{}
	for i, tier := range r.Tiers() {
		order[tier.ID] = i
	}

	prev := 0
	for level := 1; level <= 200; level++ {
		idx := order[r.RankFor(level).ID]
		require.GreaterOrEqual(t, idx, prev)
		prev = idx
	}
}

func TestProgressFor(t *testing.T) {
	r := Default()

	p := r.ProgressFor(50)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.XPIntoLevel)
	assert.Equal(t, 182, p.XPForNextLevel)

	p = r.ProgressFor(382)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 100, p.XPIntoLevel)
	assert.Equal(t, 519-282, p.XPForNextLevel)
	assert.Equal(t, "apprenti", p.Rank.ID)
}

func TestValidateTiers(t *testing.T) {
	assert.NoError(t, ValidateTiers(DefaultTiers))

	gap := []Tier{
		{ID: "a", MinLevel: 1, MaxLevel: 5},
		{ID: "b", MinLevel: 7},
	}
	assert.Error(t, ValidateTiers(gap))

	openMiddle := []Tier{
		{ID: "a", MinLevel: 1},
		{ID: "b", MinLevel: 6},
	}
	assert.Error(t, ValidateTiers(openMiddle))

	lateStart := []Tier{{ID: "a", MinLevel: 2}}
	assert.Error(t, ValidateTiers(lateStart))

	_, err := NewResolver(Curve{Base: 0, Exponent: 1.5}, DefaultTiers)
	assert.Error(t, err)
}
