// Package progression holds the persisted aggregates of the engine and the
// store port the application layer runs its transactions through.
package progression

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the numeric progression aggregate of a user.
// Level is always derived from TotalXP and written in the same transaction.
type Profile struct {
	UserID           shared.UserID
	TotalXP          int
	Level            int
	CurrentStreak    int
	LongestStreak    int
	LastTrainingDate *time.Time
	TrainingCount    int
	TricksMastered   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewProfile returns the zeroed aggregate created at signup.
func NewProfile(userID shared.UserID, now time.Time) *Profile {
	return &Profile{
		UserID:    userID,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Gamification is the wheel and shield state of a user.
type Gamification struct {
	UserID                 shared.UserID
	WheelSpinsAvailable    int
	TotalWheelSpins        int
	TrainingsSinceLastSpin int
	StreakShield           bool
	UpdatedAt              time.Time
}

// NewGamification returns the zeroed gamification row created at signup.
func NewGamification(userID shared.UserID, now time.Time) *Gamification {
	return &Gamification{UserID: userID, UpdatedAt: now}
}

// Budget returns the spin budget view.
func (g *Gamification) Budget() wheel.Budget {
	return wheel.Budget{
		Available:              g.WheelSpinsAvailable,
		TotalSpins:             g.TotalWheelSpins,
		TrainingsSinceLastSpin: g.TrainingsSinceLastSpin,
	}
}

// StreakState combines the profile streak fields with the shield flag.
func StreakState(p *Profile, g *Gamification) streak.State {
	s := streak.State{
		Current:  p.CurrentStreak,
		Longest:  p.LongestStreak,
		LastDate: p.LastTrainingDate,
	}
	if g != nil {
		s.Shield = g.StreakShield
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// APPEND-ONLY RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// TSVPSteps is the number of steps of a full training cycle
// (technique, script, video, practice).
const TSVPSteps = 4

// TrainingSession is the audit record of a completed session. It is written
// even when the anti-cheat gate denied XP.
type TrainingSession struct {
	ID              uuid.UUID
	UserID          shared.UserID
	TrickID         shared.TrickID
	DurationSeconds int
	StepCount       int
	CompletedSteps  []string
	XPEarned        int
	CompletedAt     time.Time
}

// Qualified reports whether the session earned XP.
func (s *TrainingSession) Qualified() bool {
	return s.XPEarned > 0
}

// FullCycle reports whether every TSVP step was completed on a qualifying session.
func (s *TrainingSession) FullCycle() bool {
	return s.Qualified() && IsFullCycle(s.CompletedSteps)
}

// IsFullCycle reports whether steps covers a whole TSVP cycle. Entries are
// counted as reported, so the session reward and the full_cycle_sessions
// statistic always agree.
func IsFullCycle(steps []string) bool {
	return len(steps) >= TSVPSteps
}

// Reason tags an XP ledger entry.
type Reason string

const (
	ReasonSessionComplete  Reason = "session_complete"
	ReasonSessionAllSteps  Reason = "session_all_steps"
	ReasonWheelReward      Reason = "wheel_reward"
	ReasonAchievement      Reason = "achievement"
	ReasonSkillPurchase    Reason = "skill_purchase"
	ReasonStreakMilestone  Reason = "streak_milestone"
	ReasonConfidenceRating Reason = "confidence_rating"
	ReasonTrickReady       Reason = "trick_ready"
)

// LedgerEntry is one row of the XP history.
type LedgerEntry struct {
	ID           uuid.UUID
	UserID       shared.UserID
	Delta        int
	Reason       Reason
	Ref          string
	BalanceAfter int
	CreatedAt    time.Time
}

// SpinRecord is the persisted outcome of a wheel spin.
type SpinRecord struct {
	ID          uuid.UUID
	UserID      shared.UserID
	WinnerIndex int
	Reward      wheel.Reward
	SpunAt      time.Time
}

// ConfidenceRating is a self-assessment after performing a trick.
type ConfidenceRating struct {
	ID           uuid.UUID
	UserID       shared.UserID
	TrickID      shared.TrickID
	Rating       shared.Rating
	Context      string
	AudienceType string
	CreatedAt    time.Time
}

// LibraryTrick is a trick the user added to their library.
type LibraryTrick struct {
	UserID   shared.UserID
	TrickID  shared.TrickID
	Category shared.TrickCategory
	AddedAt  time.Time
}

// MasteredTrick marks a trick as ready for an audience.
type MasteredTrick struct {
	UserID   shared.UserID
	TrickID  shared.TrickID
	Category shared.TrickCategory
	ReadyAt  time.Time
}
