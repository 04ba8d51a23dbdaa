// Package timeutil provides the calendar-date policy used by the progression engine.
// All day boundaries are UTC civil dates: a "day" starts at 00:00:00 UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// DateLayout is the wire/storage format of a civil date.
const DateLayout = "2006-01-02"

// Clock abstracts the current time so day-boundary logic can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}

// Date creates a UTC midnight for the given civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CivilDate truncates t to its UTC civil date (midnight UTC).
func CivilDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsSameDay checks if two instants fall on the same UTC civil date.
func IsSameDay(t1, t2 time.Time) bool {
	return CivilDate(t1).Equal(CivilDate(t2))
}

// IsConsecutiveDay checks if t2 falls on the UTC civil date right after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return CivilDate(t1).AddDate(0, 0, 1).Equal(CivilDate(t2))
}

// DaysBetween returns the signed number of civil days from t1 to t2.
// AddDate-based stepping is not needed: UTC has no DST, so every day is 24h.
func DaysBetween(t1, t2 time.Time) int {
	return int(CivilDate(t2).Sub(CivilDate(t1)).Hours() / 24)
}

// FormatDate formats the civil date of t.
func FormatDate(t time.Time) string {
	return CivilDate(t).Format(DateLayout)
}

// ParseDate parses a civil date string into UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}
