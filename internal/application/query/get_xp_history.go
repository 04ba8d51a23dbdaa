package query

import (
	"context"
	"fmt"
	"time"

	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
)

// GetXPHistoryQuery lists the newest ledger entries of a user.
type GetXPHistoryQuery struct {
	UserID string
	Limit  int
}

// Validate validates the query and clamps Limit to [1, 200], default 50.
func (q *GetXPHistoryQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	if q.Limit < 0 {
		return shared.NewDomainError("history", "Validate", shared.ErrNegativeValue, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// XPHistoryEntryDTO is one credit or debit.
type XPHistoryEntryDTO struct {
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason"`
	Ref          string    `json:"ref,omitempty"`
	BalanceAfter int       `json:"balanceAfter"`
	At           time.Time `json:"at"`
}

// GetXPHistoryHandler handles GetXPHistoryQuery.
type GetXPHistoryHandler struct {
	store progression.Store
}

// NewGetXPHistoryHandler creates the handler.
func NewGetXPHistoryHandler(store progression.Store) *GetXPHistoryHandler {
	return &GetXPHistoryHandler{store: store}
}

// Handle returns entries newest first.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, q GetXPHistoryQuery) ([]XPHistoryEntryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}
	userID, _ := shared.NewUserID(q.UserID)

	var out []XPHistoryEntryDTO
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		if _, err := tx.GetProfile(ctx, userID); err != nil {
			return shared.StorageError("history", "GetProfile", err)
		}
		entries, err := tx.ListLedger(ctx, userID, q.Limit)
		if err != nil {
			return shared.StorageError("history", "ListLedger", err)
		}
		out = make([]XPHistoryEntryDTO, 0, len(entries))
		for _, e := range entries {
			out = append(out, XPHistoryEntryDTO{
				Delta:        e.Delta,
				Reason:       string(e.Reason),
				Ref:          e.Ref,
				BalanceAfter: e.BalanceAfter,
				At:           e.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}
	return out, nil
}
