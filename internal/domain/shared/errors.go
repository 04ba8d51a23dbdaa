// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound       = errors.New("entity not found")
	ErrAlreadyExists  = errors.New("entity already exists")
	ErrNotInitialized = errors.New("entity not initialized")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Rule errors
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrPrerequisiteNotMet   = errors.New("prerequisite not met")

	// Storage errors
	ErrStorage                = errors.New("storage failure")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "wheel", "skill"
	Op      string // Operation that failed, e.g., "Spin", "Unlock"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StorageError wraps a store failure. A nil err yields nil.
func StorageError(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrStorage, "store operation failed", err)
}

// Profile / ledger errors
var (
	ErrProfileNotInitialized = NewDomainError("ledger", "Load", ErrNotInitialized, "progression profile is not initialized")
	ErrInvalidUserID         = NewDomainError("ledger", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidCreditAmount   = NewDomainError("ledger", "Credit", ErrNegativeValue, "credit amount must be positive")
	ErrInvalidDebitAmount    = NewDomainError("ledger", "Debit", ErrNegativeValue, "debit amount must be positive")
	ErrInsufficientXP        = NewDomainError("ledger", "Debit", ErrInsufficientResource, "not enough XP")
)

// Training session errors
var (
	ErrInvalidDuration  = NewDomainError("session", "Validate", ErrValidation, "duration_seconds must be a non-negative number")
	ErrInvalidStepCount = NewDomainError("session", "Validate", ErrValidation, "step counts cannot be negative")
	ErrInvalidTrickID   = NewDomainError("session", "Validate", ErrInvalidID, "invalid trick ID")
	ErrInvalidRating    = NewDomainError("session", "RateConfidence", ErrValueOutOfRange, "rating must be between 1 and 10")
	ErrInvalidCategory  = NewDomainError("session", "MarkReady", ErrInvalidInput, "unknown trick category")
)

// Reward wheel errors
var (
	ErrNoSpinsAvailable = NewDomainError("wheel", "Spin", ErrInsufficientResource, "no wheel spins available")
	ErrEmptyWheel       = NewDomainError("wheel", "Draw", ErrInvalidInput, "wheel has no rewards")
)

// Skill tree errors
var (
	ErrSkillNotFound        = NewDomainError("skill", "Find", ErrNotFound, "skill node not found")
	ErrSkillAlreadyUnlocked = NewDomainError("skill", "Unlock", ErrAlreadyExists, "skill already unlocked")
	ErrSkillPrerequisite    = NewDomainError("skill", "Unlock", ErrPrerequisiteNotMet, "parent skill is not unlocked")
	ErrSkillInsufficientXP  = NewDomainError("skill", "Unlock", ErrInsufficientResource, "not enough XP to unlock this skill")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsNotInitialized checks if the error reports a missing aggregate.
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInsufficientResource checks if the request was rejected for lack of XP or spins.
func IsInsufficientResource(err error) bool {
	return errors.Is(err, ErrInsufficientResource)
}

// IsPrerequisiteNotMet checks if a prerequisite was missing.
func IsPrerequisiteNotMet(err error) bool {
	return errors.Is(err, ErrPrerequisiteNotMet)
}

// IsStorage checks if the error came from the durable store.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrConcurrentModification)
}
