// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents the owning user of every aggregate (UUID format).
type UserID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// TrickID identifies a trick in the user's library. The library itself is
// owned by another service, so only the shape is checked.
type TrickID string

// Trick ID format: lowercase letters, digits, '-' and '_'.
var trickIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// IsValid checks if the trick ID format is valid.
func (t TrickID) IsValid() bool {
	return trickIDRegex.MatchString(string(t))
}

// String returns the string representation.
func (t TrickID) String() string {
	return string(t)
}

// NewTrickID creates a new TrickID with validation.
func NewTrickID(id string) (TrickID, error) {
	tid := TrickID(strings.TrimSpace(id))
	if !tid.IsValid() {
		return "", ErrInvalidTrickID
	}
	return tid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Trick categories
// ═══════════════════════════════════════════════════════════════════════════

// TrickCategory is the library category of a trick.
type TrickCategory string

const (
	CategoryCards     TrickCategory = "cards"
	CategoryCoins     TrickCategory = "coins"
	CategoryMentalism TrickCategory = "mentalism"
	CategoryObjects   TrickCategory = "objects"
	CategoryRopes     TrickCategory = "ropes"
	CategoryBills     TrickCategory = "bills"
	CategoryCloseUp   TrickCategory = "close_up"
	CategoryStage     TrickCategory = "stage"
	CategoryImpromptu TrickCategory = "impromptu"
	CategoryOther     TrickCategory = "other"
)

// IsValid checks if the category is known.
func (c TrickCategory) IsValid() bool {
	switch c {
	case CategoryCards, CategoryCoins, CategoryMentalism, CategoryObjects, CategoryRopes,
		CategoryBills, CategoryCloseUp, CategoryStage, CategoryImpromptu, CategoryOther:
		return true
	}
	return false
}

// NewTrickCategory creates a TrickCategory with validation.
func NewTrickCategory(value string) (TrickCategory, error) {
	c := TrickCategory(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Confidence rating
// ═══════════════════════════════════════════════════════════════════════════

// Rating represents a self-assessed confidence rating after a performance (1-10).
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 10
)

// IsValid checks if the rating is within valid range.
func (r Rating) IsValid() bool {
	return r >= MinRating && r <= MaxRating
}

// NewRating creates a new Rating with validation.
func NewRating(value int) (Rating, error) {
	if value < int(MinRating) || value > int(MaxRating) {
		return 0, ErrInvalidRating
	}
	return Rating(value), nil
}
