package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_KindMatching(t *testing.T) {
	assert.True(t, IsInsufficientResource(ErrNoSpinsAvailable))
	assert.True(t, IsInsufficientResource(ErrSkillInsufficientXP))
	assert.True(t, IsPrerequisiteNotMet(ErrSkillPrerequisite))
	assert.True(t, IsAlreadyExists(ErrSkillAlreadyUnlocked))
	assert.True(t, IsValidation(ErrInvalidDuration))
	assert.True(t, IsNotInitialized(ErrProfileNotInitialized))
	assert.False(t, IsValidation(ErrNoSpinsAvailable))
}

func TestDomainError_WrappedByFmt(t *testing.T) {
	err := fmt.Errorf("spin: %w", ErrNoSpinsAvailable)

	assert.True(t, errors.Is(err, ErrInsufficientResource))
	assert.Equal(t, "spin: wheel.Spin: no wheel spins available", err.Error())
}

func TestStorageError(t *testing.T) {
	assert.Nil(t, StorageError("ledger", "Credit", nil))

	raw := errors.New("connection reset")
	err := StorageError("ledger", "Credit", raw)
	assert.True(t, IsStorage(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, raw)

	// Domain errors pass through untouched.
	assert.Same(t, ErrInsufficientXP, StorageError("ledger", "Debit", ErrInsufficientXP))
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID(" 3F2504E0-4F89-11D3-9A0C-0305E82C3301 ")
	assert.NoError(t, err)
	assert.Equal(t, UserID("3f2504e0-4f89-11d3-9a0c-0305e82c3301"), id)

	_, err = NewUserID("mock-user-1")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestNewRatingAndCategory(t *testing.T) {
	_, err := NewRating(11)
	assert.True(t, IsValidation(err))

	c, err := NewTrickCategory("Cards")
	assert.NoError(t, err)
	assert.Equal(t, CategoryCards, c)

	_, err = NewTrickCategory("juggling")
	assert.True(t, IsValidation(err))
}
