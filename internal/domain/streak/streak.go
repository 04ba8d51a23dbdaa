// Package streak implements the day-boundary streak state machine.
//
// All dates are UTC civil dates (see pkg/timeutil). The transition function is
// pure: the caller loads the state, applies an activity timestamp and persists
// the result inside the same transaction.
package streak

import (
	"time"

	"github.com/ledojo/progression-engine/pkg/timeutil"
)

// DefaultMilestones are the streak lengths that earn a bonus.
var DefaultMilestones = []int{3, 7, 14, 30, 60, 100}

// State is the persisted streak portion of a profile.
type State struct {
	Current  int
	Longest  int
	LastDate *time.Time // nil until the first qualifying activity
	Shield   bool
}

// Transition names what happened on an activity.
type Transition string

const (
	// TransitionStarted is the first activity ever.
	TransitionStarted Transition = "started"
	// TransitionSameDay means the streak was already counted today.
	TransitionSameDay Transition = "same_day"
	// TransitionExtended is activity on the day after the last one.
	TransitionExtended Transition = "extended"
	// TransitionShielded means a gap was bridged by consuming the shield.
	TransitionShielded Transition = "shielded"
	// TransitionReset means a gap without a shield restarted the streak.
	TransitionReset Transition = "reset"
)

// Result is the outcome of applying an activity.
type Result struct {
	State      State
	Transition Transition
	// Milestone is the milestone reached by this transition, 0 if none.
	Milestone int
}

// Changed reports whether the state needs to be written back.
func (r Result) Changed() bool {
	return r.Transition != TransitionSameDay
}

// Tracker applies activities against a milestone table.
type Tracker struct {
	milestones map[int]bool
}

// NewTracker creates a tracker. Pass nil for no milestone bonuses.
func NewTracker(milestones []int) *Tracker {
	m := make(map[int]bool, len(milestones))
	for _, v := range milestones {
		if v > 0 {
			m[v] = true
		}
	}
	return &Tracker{milestones: m}
}

// OnActivity computes the streak after a qualifying activity at now.
func (t *Tracker) OnActivity(s State, now time.Time) Result {
	today := timeutil.CivilDate(now)
	next := s

	if s.LastDate == nil {
		next.Current = 1
		next.Longest = max(s.Longest, 1)
		next.LastDate = &today
		return t.result(s, next, TransitionStarted)
	}

	gap := timeutil.DaysBetween(*s.LastDate, today)
	switch {
	case gap <= 0:
		// Same day, or a clock that went backwards: nothing to count.
		return Result{State: s, Transition: TransitionSameDay}

	case gap == 1:
		next.Current = s.Current + 1
		next.Longest = max(s.Longest, next.Current)
		next.LastDate = &today
		return t.result(s, next, TransitionExtended)

	case s.Shield:
		next.Shield = false
		next.Longest = max(s.Longest, s.Current)
		next.LastDate = &today
		return t.result(s, next, TransitionShielded)

	default:
		next.Current = 1
		next.Longest = max(s.Longest, 1)
		next.LastDate = &today
		return t.result(s, next, TransitionReset)
	}
}

func (t *Tracker) result(prev, next State, tr Transition) Result {
	r := Result{State: next, Transition: tr}
	if next.Current > prev.Current && t.milestones[next.Current] {
		r.Milestone = next.Current
	}
	return r
}

// GrantShield arms the shield. The shield is a flag and does not stack.
func GrantShield(s State) State {
	s.Shield = true
	return s
}

// IsAtRisk reports whether the streak breaks unless there is activity today.
func IsAtRisk(s State, now time.Time) bool {
	if s.LastDate == nil || s.Current == 0 {
		return false
	}
	return timeutil.DaysBetween(*s.LastDate, now) == 1
}
