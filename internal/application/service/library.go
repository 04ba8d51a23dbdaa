package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledojo/progression-engine/internal/domain/achievement"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/pkg/logger"
)

// TrickLibrary credits progress made in the trick library: adding a trick,
// moving it to "ready" and rating confidence after a performance.
type TrickLibrary struct {
	rewards      progression.XPRewards
	ledger       *Ledger
	achievements *AchievementEvaluator
	log          *logger.Logger
}

// NewTrickLibrary creates the component.
func NewTrickLibrary(rewards progression.XPRewards, ledger *Ledger, achievements *AchievementEvaluator, log *logger.Logger) *TrickLibrary {
	if log == nil {
		log = logger.Nop()
	}
	return &TrickLibrary{rewards: rewards, ledger: ledger, achievements: achievements, log: log.With(logger.Component("library"))}
}

// AddOutcome is the result of AddTrick.
type AddOutcome struct {
	AlreadyInLibrary bool
	Achievements     []achievement.Definition
}

// AddTrick puts a trick in the library once. Adding carries no XP of its own;
// library-size achievements are re-evaluated on every new entry.
func (l *TrickLibrary) AddTrick(ctx context.Context, tx progression.Tx, t *progression.LibraryTrick, out *Outbox) (*AddOutcome, error) {
	if _, err := tx.LockProfile(ctx, t.UserID); err != nil {
		return nil, shared.StorageError("library", "LockProfile", err)
	}

	inserted, err := tx.InsertLibraryTrick(ctx, t)
	if err != nil {
		return nil, shared.StorageError("library", "InsertLibraryTrick", err)
	}
	if !inserted {
		return &AddOutcome{AlreadyInLibrary: true}, nil
	}

	out.Add(shared.NewProgressEvent(shared.EventTrickAdded, t.UserID.String(), map[string]interface{}{
		"trick_id": t.TrickID.String(),
		"category": string(t.Category),
	}))

	unlocked, err := l.achievements.Reevaluate(ctx, tx, t.UserID, out)
	if err != nil {
		return nil, err
	}
	l.log.Debug("trick added", logger.UserID(t.UserID.String()), logger.TrickID(t.TrickID.String()))
	return &AddOutcome{Achievements: unlocked}, nil
}

// ReadyOutcome is the result of MarkReady.
type ReadyOutcome struct {
	AlreadyReady bool
	XPEarned     int
	Achievements []achievement.Definition
}

// MarkReady marks a trick ready once. Repeated calls change nothing. A ready
// trick is always part of the library.
func (l *TrickLibrary) MarkReady(ctx context.Context, tx progression.Tx, m *progression.MasteredTrick, out *Outbox) (*ReadyOutcome, error) {
	if _, err := tx.LockProfile(ctx, m.UserID); err != nil {
		return nil, shared.StorageError("library", "LockProfile", err)
	}

	inserted, err := tx.InsertMasteredTrick(ctx, m)
	if err != nil {
		return nil, shared.StorageError("library", "InsertMasteredTrick", err)
	}
	if !inserted {
		return &ReadyOutcome{AlreadyReady: true}, nil
	}

	if _, err := tx.InsertLibraryTrick(ctx, &progression.LibraryTrick{
		UserID: m.UserID, TrickID: m.TrickID, Category: m.Category, AddedAt: m.ReadyAt,
	}); err != nil {
		return nil, shared.StorageError("library", "InsertLibraryTrick", err)
	}
	if _, err := tx.IncrementTricksMastered(ctx, m.UserID); err != nil {
		return nil, shared.StorageError("library", "IncrementTricksMastered", err)
	}

	outcome := &ReadyOutcome{}
	if l.rewards.MoveTrickToReady > 0 {
		if _, err := l.ledger.ApplyCredit(ctx, tx, m.UserID, l.rewards.MoveTrickToReady, progression.ReasonTrickReady, m.TrickID.String(), out); err != nil {
			return nil, err
		}
		outcome.XPEarned = l.rewards.MoveTrickToReady
	}

	out.Add(shared.NewProgressEvent(shared.EventTrickMastered, m.UserID.String(), map[string]interface{}{
		"trick_id": m.TrickID.String(),
		"category": string(m.Category),
	}))

	unlocked, err := l.achievements.Reevaluate(ctx, tx, m.UserID, out)
	if err != nil {
		return nil, err
	}
	outcome.Achievements = unlocked
	return outcome, nil
}

// RatingOutcome is the result of RateConfidence.
type RatingOutcome struct {
	RatingID     uuid.UUID
	XPEarned     int
	Achievements []achievement.Definition
}

// RateConfidence appends a rating and credits the rating reward.
func (l *TrickLibrary) RateConfidence(ctx context.Context, tx progression.Tx, r *progression.ConfidenceRating, now time.Time, out *Outbox) (*RatingOutcome, error) {
	if _, err := tx.LockProfile(ctx, r.UserID); err != nil {
		return nil, shared.StorageError("library", "LockProfile", err)
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if err := tx.InsertConfidenceRating(ctx, r); err != nil {
		return nil, shared.StorageError("library", "InsertConfidenceRating", err)
	}

	outcome := &RatingOutcome{RatingID: r.ID}
	if l.rewards.RateConfidence > 0 {
		if _, err := l.ledger.ApplyCredit(ctx, tx, r.UserID, l.rewards.RateConfidence, progression.ReasonConfidenceRating, r.ID.String(), out); err != nil {
			return nil, err
		}
		outcome.XPEarned = l.rewards.RateConfidence
	}

	out.Add(shared.NewProgressEvent(shared.EventConfidenceRated, r.UserID.String(), map[string]interface{}{
		"trick_id": r.TrickID.String(),
		"rating":   int(r.Rating),
	}))

	unlocked, err := l.achievements.Reevaluate(ctx, tx, r.UserID, out)
	if err != nil {
		return nil, err
	}
	outcome.Achievements = unlocked

	l.log.Debug("confidence rated", logger.UserID(r.UserID.String()), logger.TrickID(r.TrickID.String()), logger.Int("rating", int(r.Rating)))
	return outcome, nil
}
