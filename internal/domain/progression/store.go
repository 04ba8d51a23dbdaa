package progression

import (
	"context"
	"time"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE PORT
// Implementations live in infrastructure/persistence (postgres, memory).
// Every numeric mutation is an atomic increment on the store side; nothing
// here accepts a precomputed total.
// ══════════════════════════════════════════════════════════════════════════════

// Store runs a function inside a single transaction. If fn returns an error
// nothing it did is applied.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Aggregates
	// ─────────────────────────────────────────────────────────────────────────

	// CreateProfile inserts the zeroed profile and gamification rows if absent.
	// Returns false when the user was already initialized.
	CreateProfile(ctx context.Context, userID shared.UserID, now time.Time) (bool, error)

	// GetProfile reads the profile. Returns ErrProfileNotInitialized if absent.
	GetProfile(ctx context.Context, userID shared.UserID) (*Profile, error)

	// LockProfile reads the profile and holds a row lock until the end of the
	// transaction. Returns ErrProfileNotInitialized if absent.
	LockProfile(ctx context.Context, userID shared.UserID) (*Profile, error)

	// GetGamification reads the wheel/shield row.
	GetGamification(ctx context.Context, userID shared.UserID) (*Gamification, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Atomic counters
	// ─────────────────────────────────────────────────────────────────────────

	// AddXP applies total_xp = total_xp + delta and returns the new total.
	// Returns ErrInsufficientXP if the result would be negative.
	AddXP(ctx context.Context, userID shared.UserID, delta int) (int, error)

	// SetLevel stores the level derived from the total returned by AddXP.
	SetLevel(ctx context.Context, userID shared.UserID, level int) error

	// IncrementTrainingCount adds one qualifying session and returns the count.
	IncrementTrainingCount(ctx context.Context, userID shared.UserID) (int, error)

	// IncrementTricksMastered adds one ready trick and returns the count.
	IncrementTricksMastered(ctx context.Context, userID shared.UserID) (int, error)

	// RecordTrainingForSpin increments trainings_since_last_spin and, when it
	// reaches threshold, grants one spin and resets the counter.
	RecordTrainingForSpin(ctx context.Context, userID shared.UserID, threshold int) (wheel.Budget, bool, error)

	// ConsumeSpin decrements wheel_spins_available and increments
	// total_wheel_spins. Returns ErrNoSpinsAvailable when none are left.
	ConsumeSpin(ctx context.Context, userID shared.UserID) (wheel.Budget, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Streak
	// ─────────────────────────────────────────────────────────────────────────

	// SaveStreak writes current/longest/last date and the shield flag.
	// Callers hold the profile lock.
	SaveStreak(ctx context.Context, userID shared.UserID, s streak.State) error

	// SetShield arms or clears the streak shield.
	SetShield(ctx context.Context, userID shared.UserID, armed bool) error

	// ─────────────────────────────────────────────────────────────────────────
	// Insert-if-absent sets
	// ─────────────────────────────────────────────────────────────────────────

	// InsertSkill records ownership. Returns false if already owned.
	InsertSkill(ctx context.Context, userID shared.UserID, nodeID string, at time.Time) (bool, error)

	// ListSkills returns the persisted ownership set.
	ListSkills(ctx context.Context, userID shared.UserID) ([]string, error)

	// InsertAchievement logs an unlock. Returns false if already logged.
	InsertAchievement(ctx context.Context, userID shared.UserID, achievementID string, at time.Time) (bool, error)

	// ListAchievements returns logged achievement ids.
	ListAchievements(ctx context.Context, userID shared.UserID) ([]string, error)

	// InsertLibraryTrick adds a trick to the library. Returns false if it was
	// already there.
	InsertLibraryTrick(ctx context.Context, t *LibraryTrick) (bool, error)

	// InsertMasteredTrick marks a trick ready. Returns false if already ready.
	InsertMasteredTrick(ctx context.Context, t *MasteredTrick) (bool, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Append-only records
	// ─────────────────────────────────────────────────────────────────────────

	InsertTrainingSession(ctx context.Context, s *TrainingSession) error
	InsertSpin(ctx context.Context, r *SpinRecord) error
	InsertConfidenceRating(ctx context.Context, r *ConfidenceRating) error
	AppendLedger(ctx context.Context, e *LedgerEntry) error

	// ListLedger returns the most recent ledger entries, newest first.
	ListLedger(ctx context.Context, userID shared.UserID, limit int) ([]LedgerEntry, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Stats
	// ─────────────────────────────────────────────────────────────────────────

	// LoadStats builds the achievement snapshot from the current rows.
	LoadStats(ctx context.Context, userID shared.UserID) (achievement.Stats, error)
}
