package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCivilDate_UsesUTC(t *testing.T) {
	// 23:30 at UTC-5 is already the next day in UTC.
	ny := time.FixedZone("EST", -5*60*60)
	local := time.Date(2025, 3, 10, 23, 30, 0, 0, ny)

	assert.Equal(t, Date(2025, 3, 11), CivilDate(local))
}

func TestDaysBetween(t *testing.T) {
	day1 := time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC)
	day5 := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, DaysBetween(day1, day2))
	assert.Equal(t, 4, DaysBetween(day1, day5))
	assert.Equal(t, -4, DaysBetween(day5, day1))
	assert.True(t, IsConsecutiveDay(day1, day2))
	assert.False(t, IsSameDay(day1, day2))
}

func TestParseAndFormatDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", FormatDate(d.Add(13*time.Hour)))
	assert.Equal(t, time.UTC, d.Location())
}
