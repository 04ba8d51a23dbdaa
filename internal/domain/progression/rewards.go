package progression

import "fmt"

// XPRewards is the XP reward table.
type XPRewards struct {
	CompleteSession  int `yaml:"complete_session"`
	CompleteAllSteps int `yaml:"complete_all_steps"`
	MoveTrickToReady int `yaml:"move_trick_to_ready"`
	StreakBonus      int `yaml:"streak_bonus"`
	RateConfidence   int `yaml:"rate_confidence"`
}

// DefaultXPRewards is the production reward table.
var DefaultXPRewards = XPRewards{
	CompleteSession:  50,
	CompleteAllSteps: 100,
	MoveTrickToReady: 200,
	StreakBonus:      25,
	RateConfidence:   15,
}

// Validate rejects negative rewards.
func (r XPRewards) Validate() error {
	for name, v := range map[string]int{
		"complete_session":    r.CompleteSession,
		"complete_all_steps":  r.CompleteAllSteps,
		"move_trick_to_ready": r.MoveTrickToReady,
		"streak_bonus":        r.StreakBonus,
		"rate_confidence":     r.RateConfidence,
	} {
		if v < 0 {
			return fmt.Errorf("xp reward %s cannot be negative", name)
		}
	}
	return nil
}

// DefaultMinSessionSeconds is the anti-cheat minimum for a whole session.
const DefaultMinSessionSeconds = 30
