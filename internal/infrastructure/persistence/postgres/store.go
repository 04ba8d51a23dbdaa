package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements progression.Store on a PostgreSQL pool.
type Store struct {
	conn *Connection
}

// NewStore creates a store on conn.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// WithinTx implements progression.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progression.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(ptx pgx.Tx) error {
		return fn(ctx, &tx{q: ptx})
	})
	return classify("WithinTx", err)
}

// querier is the subset of pgx.Tx the transaction methods use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type tx struct {
	q querier
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregates
// ─────────────────────────────────────────────────────────────────────────────

func (t *tx) CreateProfile(ctx context.Context, userID shared.UserID, now time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO progression_profiles (user_id, level, created_at, updated_at)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID.String(), now)
	if err != nil {
		return false, classify("CreateProfile", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO user_gamification (user_id, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID.String(), now)
	if err != nil {
		return false, classify("CreateProfile", err)
	}
	return true, nil
}

const profileColumns = `
	user_id, total_xp, level, current_streak, longest_streak, last_training_date,
	training_count, tricks_mastered, created_at, updated_at`

func (t *tx) GetProfile(ctx context.Context, userID shared.UserID) (*progression.Profile, error) {
	row := t.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM progression_profiles WHERE user_id = $1`, userID.String())
	return scanProfile("GetProfile", row)
}

func (t *tx) LockProfile(ctx context.Context, userID shared.UserID) (*progression.Profile, error) {
	row := t.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM progression_profiles WHERE user_id = $1 FOR UPDATE`, userID.String())
	return scanProfile("LockProfile", row)
}

func scanProfile(op string, row pgx.Row) (*progression.Profile, error) {
	var (
		p      progression.Profile
		id     string
		lastDt *time.Time
	)
	err := row.Scan(
		&id, &p.TotalXP, &p.Level, &p.CurrentStreak, &p.LongestStreak, &lastDt,
		&p.TrainingCount, &p.TricksMastered, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotInitialized
		}
		return nil, classify(op, err)
	}
	p.UserID = shared.UserID(id)
	if lastDt != nil {
		day := lastDt.UTC()
		p.LastTrainingDate = &day
	}
	return &p, nil
}

func (t *tx) GetGamification(ctx context.Context, userID shared.UserID) (*progression.Gamification, error) {
	var (
		g  progression.Gamification
		id string
	)
	err := t.q.QueryRow(ctx, `
		SELECT user_id, wheel_spins_available, total_wheel_spins, trainings_since_last_spin,
		       streak_shield, updated_at
		FROM user_gamification WHERE user_id = $1
	`, userID.String()).Scan(
		&id, &g.WheelSpinsAvailable, &g.TotalWheelSpins, &g.TrainingsSinceLastSpin,
		&g.StreakShield, &g.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotInitialized
		}
		return nil, classify("GetGamification", err)
	}
	g.UserID = shared.UserID(id)
	return &g, nil
}

// exists distinguishes "no such user" from "guard rejected the update".
func (t *tx) exists(ctx context.Context, table string, userID shared.UserID) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE user_id = $1)`, userID.String()).Scan(&ok)
	return ok, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic counters
// ─────────────────────────────────────────────────────────────────────────────

func (t *tx) AddXP(ctx context.Context, userID shared.UserID, delta int) (int, error) {
	var total int
	err := t.q.QueryRow(ctx, `
		UPDATE progression_profiles
		SET total_xp = total_xp + $2, updated_at = NOW()
		WHERE user_id = $1 AND total_xp + $2 >= 0
		RETURNING total_xp
	`, userID.String(), delta).Scan(&total)
	if err == nil {
		return total, nil
	}
	if !IsNoRows(err) {
		return 0, classify("AddXP", err)
	}

	ok, err := t.exists(ctx, "progression_profiles", userID)
	if err != nil {
		return 0, classify("AddXP", err)
	}
	if !ok {
		return 0, shared.ErrProfileNotInitialized
	}
	return 0, shared.ErrInsufficientXP
}

func (t *tx) SetLevel(ctx context.Context, userID shared.UserID, level int) error {
	return t.execOne(ctx, "SetLevel", `UPDATE progression_profiles SET level = $2 WHERE user_id = $1`, userID.String(), level)
}

func (t *tx) IncrementTrainingCount(ctx context.Context, userID shared.UserID) (int, error) {
	return t.increment(ctx, "IncrementTrainingCount", "training_count", userID)
}

func (t *tx) IncrementTricksMastered(ctx context.Context, userID shared.UserID) (int, error) {
	return t.increment(ctx, "IncrementTricksMastered", "tricks_mastered", userID)
}

func (t *tx) increment(ctx context.Context, op, column string, userID shared.UserID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, fmt.Sprintf(`
		UPDATE progression_profiles SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING %[1]s
	`, column), userID.String()).Scan(&n)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrProfileNotInitialized
		}
		return 0, classify(op, err)
	}
	return n, nil
}

func (t *tx) RecordTrainingForSpin(ctx context.Context, userID shared.UserID, threshold int) (wheel.Budget, bool, error) {
	var (
		b       wheel.Budget
		granted bool
	)
	err := t.q.QueryRow(ctx, `
		UPDATE user_gamification SET
			wheel_spins_available = wheel_spins_available +
				CASE WHEN $2 > 0 AND trainings_since_last_spin + 1 >= $2 THEN 1 ELSE 0 END,
			trainings_since_last_spin =
				CASE WHEN $2 > 0 AND trainings_since_last_spin + 1 >= $2 THEN 0 ELSE trainings_since_last_spin + 1 END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING wheel_spins_available, total_wheel_spins, trainings_since_last_spin,
		          $2 > 0 AND trainings_since_last_spin = 0
	`, userID.String(), threshold).Scan(&b.Available, &b.TotalSpins, &b.TrainingsSinceLastSpin, &granted)
	if err != nil {
		if IsNoRows(err) {
			return wheel.Budget{}, false, shared.ErrProfileNotInitialized
		}
		return wheel.Budget{}, false, classify("RecordTrainingForSpin", err)
	}
	return b, granted, nil
}

func (t *tx) ConsumeSpin(ctx context.Context, userID shared.UserID) (wheel.Budget, error) {
	var b wheel.Budget
	err := t.q.QueryRow(ctx, `
		UPDATE user_gamification SET
			wheel_spins_available = wheel_spins_available - 1,
			total_wheel_spins = total_wheel_spins + 1,
			updated_at = NOW()
		WHERE user_id = $1 AND wheel_spins_available > 0
		RETURNING wheel_spins_available, total_wheel_spins, trainings_since_last_spin
	`, userID.String()).Scan(&b.Available, &b.TotalSpins, &b.TrainingsSinceLastSpin)
	if err == nil {
		return b, nil
	}
	if !IsNoRows(err) {
		return wheel.Budget{}, classify("ConsumeSpin", err)
	}

	ok, err := t.exists(ctx, "user_gamification", userID)
	if err != nil {
		return wheel.Budget{}, classify("ConsumeSpin", err)
	}
	if !ok {
		return wheel.Budget{}, shared.ErrProfileNotInitialized
	}
	return wheel.Budget{}, shared.ErrNoSpinsAvailable
}

// ─────────────────────────────────────────────────────────────────────────────
// Streak
// ─────────────────────────────────────────────────────────────────────────────

func (t *tx) SaveStreak(ctx context.Context, userID shared.UserID, s streak.State) error {
	var last *time.Time
	if s.LastDate != nil {
		day := s.LastDate.UTC()
		last = &day
	}
	err := t.execOne(ctx, "SaveStreak", `
		UPDATE progression_profiles SET
			current_streak = $2,
			longest_streak = $3,
			last_training_date = COALESCE($4::date, last_training_date),
			updated_at = NOW()
		WHERE user_id = $1
	`, userID.String(), s.Current, s.Longest, last)
	if err != nil {
		return err
	}
	return t.SetShield(ctx, userID, s.Shield)
}

func (t *tx) SetShield(ctx context.Context, userID shared.UserID, armed bool) error {
	return t.execOne(ctx, "SetShield",
		`UPDATE user_gamification SET streak_shield = $2, updated_at = NOW() WHERE user_id = $1`,
		userID.String(), armed)
}

// execOne runs an UPDATE that must touch exactly the user's row.
func (t *tx) execOne(ctx context.Context, op, sql string, args ...interface{}) error {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotInitialized
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Insert-if-absent sets
// ─────────────────────────────────────────────────────────────────────────────

func (t *tx) InsertSkill(ctx context.Context, userID shared.UserID, nodeID string, at time.Time) (bool, error) {
	return t.insertOnce(ctx, "InsertSkill", `
		INSERT INTO user_skills (user_id, skill_id, unlocked_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, skill_id) DO NOTHING
	`, userID.String(), nodeID, at)
}

func (t *tx) ListSkills(ctx context.Context, userID shared.UserID) ([]string, error) {
	return t.listIDs(ctx, "ListSkills",
		`SELECT skill_id FROM user_skills WHERE user_id = $1 ORDER BY skill_id`, userID)
}

func (t *tx) InsertAchievement(ctx context.Context, userID shared.UserID, achievementID string, at time.Time) (bool, error) {
	return t.insertOnce(ctx, "InsertAchievement", `
		INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, userID.String(), achievementID, at)
}

func (t *tx) ListAchievements(ctx context.Context, userID shared.UserID) ([]string, error) {
	return t.listIDs(ctx, "ListAchievements",
		`SELECT achievement_id FROM user_achievements WHERE user_id = $1 ORDER BY achievement_id`, userID)
}

func (t *tx) InsertLibraryTrick(ctx context.Context, l *progression.LibraryTrick) (bool, error) {
	return t.insertOnce(ctx, "InsertLibraryTrick", `
		INSERT INTO library_tricks (user_id, trick_id, category, added_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, trick_id) DO NOTHING
	`, l.UserID.String(), l.TrickID.String(), string(l.Category), l.AddedAt)
}

func (t *tx) InsertMasteredTrick(ctx context.Context, m *progression.MasteredTrick) (bool, error) {
	return t.insertOnce(ctx, "InsertMasteredTrick", `
		INSERT INTO mastered_tricks (user_id, trick_id, category, ready_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, trick_id) DO NOTHING
	`, m.UserID.String(), m.TrickID.String(), string(m.Category), m.ReadyAt)
}

func (t *tx) insertOnce(ctx context.Context, op, sql string, args ...interface{}) (bool, error) {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return false, classify(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) listIDs(ctx context.Context, op, sql string, userID shared.UserID) ([]string, error) {
	rows, err := t.q.Query(ctx, sql, userID.String())
	if err != nil {
		return nil, classify(op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(op, err)
	}
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Append-only records
// ─────────────────────────────────────────────────────────────────────────────

func (t *tx) InsertTrainingSession(ctx context.Context, s *progression.TrainingSession) error {
	steps := s.CompletedSteps
	if steps == nil {
		steps = []string{}
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO training_sessions (
			id, user_id, trick_id, duration_seconds, step_count, completed_steps, xp_earned, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID.String(), s.UserID.String(), s.TrickID.String(), s.DurationSeconds, s.StepCount, steps, s.XPEarned, s.CompletedAt)
	return classify("InsertTrainingSession", err)
}

func (t *tx) InsertSpin(ctx context.Context, r *progression.SpinRecord) error {
	reward, err := json.Marshal(r.Reward)
	if err != nil {
		return fmt.Errorf("failed to marshal reward: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO wheel_spins (id, user_id, winner_index, reward, spun_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID.String(), r.UserID.String(), r.WinnerIndex, reward, r.SpunAt)
	return classify("InsertSpin", err)
}

func (t *tx) InsertConfidenceRating(ctx context.Context, r *progression.ConfidenceRating) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO confidence_ratings (id, user_id, trick_id, rating, context, audience_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID.String(), r.UserID.String(), r.TrickID.String(), int(r.Rating), r.Context, r.AudienceType, r.CreatedAt)
	return classify("InsertConfidenceRating", err)
}

func (t *tx) AppendLedger(ctx context.Context, e *progression.LedgerEntry) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO xp_ledger (id, user_id, delta, reason, ref, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID.String(), e.UserID.String(), e.Delta, string(e.Reason), e.Ref, e.BalanceAfter, e.CreatedAt)
	return classify("AppendLedger", err)
}

func (t *tx) ListLedger(ctx context.Context, userID shared.UserID, limit int) ([]progression.LedgerEntry, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, user_id, delta, reason, ref, balance_after, created_at
		FROM xp_ledger
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT NULLIF($2::int, 0)
	`, userID.String(), limit)
	if err != nil {
		return nil, classify("ListLedger", err)
	}
	defer rows.Close()

	var out []progression.LedgerEntry
	for rows.Next() {
		var (
			e        progression.LedgerEntry
			id, user string
			reason   string
		)
		if err := rows.Scan(&id, &user, &e.Delta, &reason, &e.Ref, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, classify("ListLedger", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, classify("ListLedger", err)
		}
		e.UserID = shared.UserID(user)
		e.Reason = progression.Reason(reason)
		out = append(out, e)
	}
	return out, classify("ListLedger", rows.Err())
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats
// ─────────────────────────────────────────────────────────────────────────────

func (t *tx) LoadStats(ctx context.Context, userID shared.UserID) (achievement.Stats, error) {
	stats := achievement.Stats{ReadyByCategory: make(map[shared.TrickCategory]int)}

	err := t.q.QueryRow(ctx, `
		SELECT p.training_count, p.current_streak, p.longest_streak, p.tricks_mastered, p.level,
		       (SELECT COUNT(*) FROM user_skills s WHERE s.user_id = p.user_id),
		       (SELECT COUNT(*) FROM library_tricks l WHERE l.user_id = p.user_id),
		       (SELECT COALESCE(SUM(duration_seconds), 0) FROM training_sessions ts
		         WHERE ts.user_id = p.user_id AND ts.xp_earned > 0),
		       (SELECT COUNT(*) FROM training_sessions ts
		         WHERE ts.user_id = p.user_id AND ts.xp_earned > 0 AND cardinality(ts.completed_steps) >= $2),
		       (SELECT COUNT(*) FROM confidence_ratings c WHERE c.user_id = p.user_id),
		       (SELECT COALESCE(MAX(rating), 0) FROM confidence_ratings c WHERE c.user_id = p.user_id)
		FROM progression_profiles p
		WHERE p.user_id = $1
	`, userID.String(), progression.TSVPSteps).Scan(
		&stats.TrainingCount, &stats.CurrentStreak, &stats.LongestStreak, &stats.TricksMastered, &stats.Level,
		&stats.SkillsUnlocked, &stats.LibrarySize, &stats.TotalTrainingSeconds, &stats.FullCycleSessions,
		&stats.ConfidenceRatings, &stats.MaxConfidence,
	)
	if err != nil {
		if IsNoRows(err) {
			return achievement.Stats{}, shared.ErrProfileNotInitialized
		}
		return achievement.Stats{}, classify("LoadStats", err)
	}

	rows, err := t.q.Query(ctx, `
		SELECT category, COUNT(*) FROM mastered_tricks WHERE user_id = $1 GROUP BY category
	`, userID.String())
	if err != nil {
		return achievement.Stats{}, classify("LoadStats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return achievement.Stats{}, classify("LoadStats", err)
		}
		stats.ReadyByCategory[shared.TrickCategory(category)] = n
	}
	if err := rows.Err(); err != nil {
		return achievement.Stats{}, classify("LoadStats", err)
	}
	return stats, nil
}

var _ progression.Store = (*Store)(nil)
