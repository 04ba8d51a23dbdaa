package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Pool().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insert := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insert, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every known migration with its applied flag.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progression", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progression_records", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_library_tricks", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROFILE AND GAMIFICATION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS progression_profiles (
    user_id UUID PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_training_date DATE,
    training_count INTEGER NOT NULL DEFAULT 0,
    tricks_mastered INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE TABLE IF NOT EXISTS user_gamification (
    user_id UUID PRIMARY KEY REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    wheel_spins_available INTEGER NOT NULL DEFAULT 0,
    total_wheel_spins INTEGER NOT NULL DEFAULT 0,
    trainings_since_last_spin INTEGER NOT NULL DEFAULT 0,
    streak_shield BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_spins CHECK (wheel_spins_available >= 0)
);

CREATE TABLE IF NOT EXISTS user_skills (
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    skill_id VARCHAR(100) NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, skill_id)
);

CREATE TABLE IF NOT EXISTS user_achievements (
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    achievement_id VARCHAR(100) NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, achievement_id)
);
`

const migration001Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS user_skills;
DROP TABLE IF EXISTS user_gamification;
DROP TABLE IF EXISTS progression_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: APPEND-ONLY RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS training_sessions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    trick_id VARCHAR(100) NOT NULL,
    duration_seconds INTEGER NOT NULL,
    step_count INTEGER NOT NULL DEFAULT 0,
    completed_steps TEXT[] NOT NULL DEFAULT '{}',
    xp_earned INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_duration CHECK (duration_seconds >= 0)
);

CREATE INDEX IF NOT EXISTS idx_training_sessions_user ON training_sessions(user_id, completed_at DESC);

CREATE TABLE IF NOT EXISTS mastered_tricks (
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    trick_id VARCHAR(100) NOT NULL,
    category VARCHAR(30) NOT NULL,
    ready_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, trick_id)
);

CREATE TABLE IF NOT EXISTS wheel_spins (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    winner_index INTEGER NOT NULL,
    reward JSONB NOT NULL,
    spun_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wheel_spins_user ON wheel_spins(user_id, spun_at DESC);

CREATE TABLE IF NOT EXISTS confidence_ratings (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    trick_id VARCHAR(100) NOT NULL,
    rating INTEGER NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    audience_type VARCHAR(50) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_rating CHECK (rating BETWEEN 1 AND 10)
);

CREATE TABLE IF NOT EXISTS xp_ledger (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    delta INTEGER NOT NULL,
    reason VARCHAR(50) NOT NULL,
    ref VARCHAR(100) NOT NULL DEFAULT '',
    balance_after INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_balance CHECK (balance_after >= 0)
);

CREATE INDEX IF NOT EXISTS idx_xp_ledger_user ON xp_ledger(user_id, seq DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS xp_ledger;
DROP TABLE IF EXISTS confidence_ratings;
DROP TABLE IF EXISTS wheel_spins;
DROP TABLE IF EXISTS mastered_tricks;
DROP TABLE IF EXISTS training_sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: TRICK LIBRARY
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS library_tricks (
    user_id UUID NOT NULL REFERENCES progression_profiles(user_id) ON DELETE CASCADE,
    trick_id VARCHAR(100) NOT NULL,
    category VARCHAR(30) NOT NULL,
    added_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, trick_id)
);

INSERT INTO library_tricks (user_id, trick_id, category, added_at)
SELECT user_id, trick_id, category, ready_at FROM mastered_tricks
ON CONFLICT (user_id, trick_id) DO NOTHING;
`

const migration003Down = `
DROP TABLE IF EXISTS library_tricks;
`
