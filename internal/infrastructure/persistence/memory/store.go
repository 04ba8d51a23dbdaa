// Package memory implements the progression store in process memory.
//
// Transactions are serialized by one mutex and run against a copy of the
// dataset; the copy replaces the live dataset only when the function returns
// nil, so a failed transaction leaves no trace. Used by tests and by the
// engine when no database URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/streak"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
)

// Store is an in-memory progression.Store.
type Store struct {
	mu   sync.Mutex
	data *dataset

	// failures injected by tests, keyed by operation name.
	failures map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data:     newDataset(),
		failures: make(map[string]error),
	}
}

// FailNext makes the next call to op inside a transaction return err.
// Operation names match the Tx method names (e.g. "AddXP").
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// WithinTx implements progression.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progression.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return shared.StorageError("memory", "WithinTx", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	t := &tx{data: work, store: s}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Sessions returns a copy of all recorded training sessions for a user.
func (s *Store) Sessions(userID shared.UserID) []progression.TrainingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []progression.TrainingSession
	for _, sess := range s.data.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out
}

// Spins returns a copy of all recorded spins for a user.
func (s *Store) Spins(userID shared.UserID) []progression.SpinRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []progression.SpinRecord
	for _, r := range s.data.spins {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// DATASET
// ══════════════════════════════════════════════════════════════════════════════

type dataset struct {
	profiles     map[shared.UserID]progression.Profile
	gamification map[shared.UserID]progression.Gamification
	skills       map[shared.UserID]map[string]time.Time
	achievements map[shared.UserID]map[string]time.Time
	library      map[shared.UserID]map[shared.TrickID]progression.LibraryTrick
	mastered     map[shared.UserID]map[shared.TrickID]progression.MasteredTrick
	sessions     []progression.TrainingSession
	spins        []progression.SpinRecord
	ratings      []progression.ConfidenceRating
	ledger       []progression.LedgerEntry
}

func newDataset() *dataset {
	return &dataset{
		profiles:     make(map[shared.UserID]progression.Profile),
		gamification: make(map[shared.UserID]progression.Gamification),
		skills:       make(map[shared.UserID]map[string]time.Time),
		achievements: make(map[shared.UserID]map[string]time.Time),
		library:      make(map[shared.UserID]map[shared.TrickID]progression.LibraryTrick),
		mastered:     make(map[shared.UserID]map[shared.TrickID]progression.MasteredTrick),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.profiles {
		if v.LastTrainingDate != nil {
			day := *v.LastTrainingDate
			v.LastTrainingDate = &day
		}
		c.profiles[k] = v
	}
	for k, v := range d.gamification {
		c.gamification[k] = v
	}
	for k, set := range d.skills {
		c.skills[k] = cloneSet(set)
	}
	for k, set := range d.achievements {
		c.achievements[k] = cloneSet(set)
	}
	for k, set := range d.library {
		m := make(map[shared.TrickID]progression.LibraryTrick, len(set))
		for id, t := range set {
			m[id] = t
		}
		c.library[k] = m
	}
	for k, set := range d.mastered {
		m := make(map[shared.TrickID]progression.MasteredTrick, len(set))
		for id, t := range set {
			m[id] = t
		}
		c.mastered[k] = m
	}
	c.sessions = append([]progression.TrainingSession(nil), d.sessions...)
	c.spins = append([]progression.SpinRecord(nil), d.spins...)
	c.ratings = append([]progression.ConfidenceRating(nil), d.ratings...)
	c.ledger = append([]progression.LedgerEntry(nil), d.ledger...)
	return c
}

func cloneSet(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TX
// ══════════════════════════════════════════════════════════════════════════════

type tx struct {
	data  *dataset
	store *Store
}

// fail pops an injected failure for op. The store mutex is already held.
func (t *tx) fail(op string) error {
	if err, ok := t.store.failures[op]; ok {
		delete(t.store.failures, op)
		return shared.StorageError("memory", op, err)
	}
	return nil
}

func (t *tx) profile(op string, userID shared.UserID) (progression.Profile, error) {
	if err := t.fail(op); err != nil {
		return progression.Profile{}, err
	}
	p, ok := t.data.profiles[userID]
	if !ok {
		return progression.Profile{}, shared.ErrProfileNotInitialized
	}
	return p, nil
}

func (t *tx) gam(op string, userID shared.UserID) (progression.Gamification, error) {
	if err := t.fail(op); err != nil {
		return progression.Gamification{}, err
	}
	g, ok := t.data.gamification[userID]
	if !ok {
		return progression.Gamification{}, shared.ErrProfileNotInitialized
	}
	return g, nil
}

func (t *tx) CreateProfile(_ context.Context, userID shared.UserID, now time.Time) (bool, error) {
	if err := t.fail("CreateProfile"); err != nil {
		return false, err
	}
	if _, ok := t.data.profiles[userID]; ok {
		return false, nil
	}
	t.data.profiles[userID] = *progression.NewProfile(userID, now)
	t.data.gamification[userID] = *progression.NewGamification(userID, now)
	return true, nil
}

func (t *tx) GetProfile(_ context.Context, userID shared.UserID) (*progression.Profile, error) {
	p, err := t.profile("GetProfile", userID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LockProfile is GetProfile: the store mutex already serializes transactions.
func (t *tx) LockProfile(_ context.Context, userID shared.UserID) (*progression.Profile, error) {
	p, err := t.profile("LockProfile", userID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *tx) GetGamification(_ context.Context, userID shared.UserID) (*progression.Gamification, error) {
	g, err := t.gam("GetGamification", userID)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (t *tx) AddXP(_ context.Context, userID shared.UserID, delta int) (int, error) {
	p, err := t.profile("AddXP", userID)
	if err != nil {
		return 0, err
	}
	if p.TotalXP+delta < 0 {
		return 0, shared.ErrInsufficientXP
	}
	p.TotalXP += delta
	p.UpdatedAt = time.Now().UTC()
	t.data.profiles[userID] = p
	return p.TotalXP, nil
}

func (t *tx) SetLevel(_ context.Context, userID shared.UserID, level int) error {
	p, err := t.profile("SetLevel", userID)
	if err != nil {
		return err
	}
	p.Level = level
	t.data.profiles[userID] = p
	return nil
}

func (t *tx) IncrementTrainingCount(_ context.Context, userID shared.UserID) (int, error) {
	p, err := t.profile("IncrementTrainingCount", userID)
	if err != nil {
		return 0, err
	}
	p.TrainingCount++
	t.data.profiles[userID] = p
	return p.TrainingCount, nil
}

func (t *tx) IncrementTricksMastered(_ context.Context, userID shared.UserID) (int, error) {
	p, err := t.profile("IncrementTricksMastered", userID)
	if err != nil {
		return 0, err
	}
	p.TricksMastered++
	t.data.profiles[userID] = p
	return p.TricksMastered, nil
}

func (t *tx) RecordTrainingForSpin(_ context.Context, userID shared.UserID, threshold int) (wheel.Budget, bool, error) {
	g, err := t.gam("RecordTrainingForSpin", userID)
	if err != nil {
		return wheel.Budget{}, false, err
	}
	b, granted := g.Budget().RecordTraining(threshold)
	g.WheelSpinsAvailable = b.Available
	g.TrainingsSinceLastSpin = b.TrainingsSinceLastSpin
	t.data.gamification[userID] = g
	return b, granted, nil
}

func (t *tx) ConsumeSpin(_ context.Context, userID shared.UserID) (wheel.Budget, error) {
	g, err := t.gam("ConsumeSpin", userID)
	if err != nil {
		return wheel.Budget{}, err
	}
	b, err := g.Budget().Consume()
	if err != nil {
		return b, err
	}
	g.WheelSpinsAvailable = b.Available
	g.TotalWheelSpins = b.TotalSpins
	t.data.gamification[userID] = g
	return b, nil
}

func (t *tx) SaveStreak(_ context.Context, userID shared.UserID, s streak.State) error {
	p, err := t.profile("SaveStreak", userID)
	if err != nil {
		return err
	}
	g, err := t.gam("SaveStreak", userID)
	if err != nil {
		return err
	}
	p.CurrentStreak = s.Current
	p.LongestStreak = s.Longest
	if s.LastDate != nil {
		day := *s.LastDate
		p.LastTrainingDate = &day
	}
	g.StreakShield = s.Shield
	t.data.profiles[userID] = p
	t.data.gamification[userID] = g
	return nil
}

func (t *tx) SetShield(_ context.Context, userID shared.UserID, armed bool) error {
	g, err := t.gam("SetShield", userID)
	if err != nil {
		return err
	}
	g.StreakShield = armed
	t.data.gamification[userID] = g
	return nil
}

func (t *tx) InsertSkill(_ context.Context, userID shared.UserID, nodeID string, at time.Time) (bool, error) {
	if err := t.fail("InsertSkill"); err != nil {
		return false, err
	}
	return insertOnce(t.data.skills, userID, nodeID, at), nil
}

func (t *tx) ListSkills(_ context.Context, userID shared.UserID) ([]string, error) {
	if err := t.fail("ListSkills"); err != nil {
		return nil, err
	}
	return sortedKeys(t.data.skills[userID]), nil
}

func (t *tx) InsertAchievement(_ context.Context, userID shared.UserID, achievementID string, at time.Time) (bool, error) {
	if err := t.fail("InsertAchievement"); err != nil {
		return false, err
	}
	return insertOnce(t.data.achievements, userID, achievementID, at), nil
}

func (t *tx) ListAchievements(_ context.Context, userID shared.UserID) ([]string, error) {
	if err := t.fail("ListAchievements"); err != nil {
		return nil, err
	}
	return sortedKeys(t.data.achievements[userID]), nil
}

func (t *tx) InsertLibraryTrick(_ context.Context, l *progression.LibraryTrick) (bool, error) {
	if err := t.fail("InsertLibraryTrick"); err != nil {
		return false, err
	}
	set, ok := t.data.library[l.UserID]
	if !ok {
		set = make(map[shared.TrickID]progression.LibraryTrick)
		t.data.library[l.UserID] = set
	}
	if _, exists := set[l.TrickID]; exists {
		return false, nil
	}
	set[l.TrickID] = *l
	return true, nil
}

func (t *tx) InsertMasteredTrick(_ context.Context, m *progression.MasteredTrick) (bool, error) {
	if err := t.fail("InsertMasteredTrick"); err != nil {
		return false, err
	}
	set, ok := t.data.mastered[m.UserID]
	if !ok {
		set = make(map[shared.TrickID]progression.MasteredTrick)
		t.data.mastered[m.UserID] = set
	}
	if _, exists := set[m.TrickID]; exists {
		return false, nil
	}
	set[m.TrickID] = *m
	return true, nil
}

func (t *tx) InsertTrainingSession(_ context.Context, s *progression.TrainingSession) error {
	if err := t.fail("InsertTrainingSession"); err != nil {
		return err
	}
	cp := *s
	cp.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	t.data.sessions = append(t.data.sessions, cp)
	return nil
}

func (t *tx) InsertSpin(_ context.Context, r *progression.SpinRecord) error {
	if err := t.fail("InsertSpin"); err != nil {
		return err
	}
	t.data.spins = append(t.data.spins, *r)
	return nil
}

func (t *tx) InsertConfidenceRating(_ context.Context, r *progression.ConfidenceRating) error {
	if err := t.fail("InsertConfidenceRating"); err != nil {
		return err
	}
	t.data.ratings = append(t.data.ratings, *r)
	return nil
}

func (t *tx) AppendLedger(_ context.Context, e *progression.LedgerEntry) error {
	if err := t.fail("AppendLedger"); err != nil {
		return err
	}
	t.data.ledger = append(t.data.ledger, *e)
	return nil
}

func (t *tx) ListLedger(_ context.Context, userID shared.UserID, limit int) ([]progression.LedgerEntry, error) {
	if err := t.fail("ListLedger"); err != nil {
		return nil, err
	}
	var out []progression.LedgerEntry
	for i := len(t.data.ledger) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if e := t.data.ledger[i]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) LoadStats(_ context.Context, userID shared.UserID) (achievement.Stats, error) {
	p, err := t.profile("LoadStats", userID)
	if err != nil {
		return achievement.Stats{}, err
	}

	stats := achievement.Stats{
		TrainingCount:   p.TrainingCount,
		CurrentStreak:   p.CurrentStreak,
		LongestStreak:   p.LongestStreak,
		LibrarySize:     len(t.data.library[userID]),
		TricksMastered:  p.TricksMastered,
		Level:           p.Level,
		SkillsUnlocked:  len(t.data.skills[userID]),
		ReadyByCategory: make(map[shared.TrickCategory]int),
	}

	for i := range t.data.sessions {
		s := &t.data.sessions[i]
		if s.UserID != userID || !s.Qualified() {
			continue
		}
		stats.TotalTrainingSeconds += s.DurationSeconds
		if s.FullCycle() {
			stats.FullCycleSessions++
		}
	}
	for _, m := range t.data.mastered[userID] {
		stats.ReadyByCategory[m.Category]++
	}
	for _, r := range t.data.ratings {
		if r.UserID != userID {
			continue
		}
		stats.ConfidenceRatings++
		if int(r.Rating) > stats.MaxConfidence {
			stats.MaxConfidence = int(r.Rating)
		}
	}
	return stats, nil
}

func insertOnce(sets map[shared.UserID]map[string]time.Time, userID shared.UserID, id string, at time.Time) bool {
	set, ok := sets[userID]
	if !ok {
		set = make(map[string]time.Time)
		sets[userID] = set
	}
	if _, exists := set[id]; exists {
		return false
	}
	set[id] = at
	return true
}

func sortedKeys(set map[string]time.Time) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ progression.Store = (*Store)(nil)
