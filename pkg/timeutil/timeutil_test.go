package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendar_DaysBetween(t *testing.T) {
	cal := UTC
	jan1 := time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC)
	jan2 := time.Date(2025, 1, 2, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 1, cal.DaysBetween(jan1, jan2))
	assert.Equal(t, -1, cal.DaysBetween(jan2, jan1))
	assert.True(t, cal.IsConsecutiveDay(jan1, jan2))
	assert.False(t, cal.IsSameDay(jan1, jan2))
}

func TestCalendar_DaysBetweenAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	cal := NewCalendar(loc)

	before := time.Date(2025, 3, 29, 12, 0, 0, 0, loc)
	after := time.Date(2025, 3, 31, 12, 0, 0, 0, loc)
	assert.Equal(t, 2, cal.DaysBetween(before, after))
}

func TestCalendar_ParseDate(t *testing.T) {
	cal := UTC

	d, err := cal.ParseDate("2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), d)

	ts, err := cal.ParseDate("2025-01-06T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Hour())

	_, err = cal.ParseDate("yesterday")
	assert.Error(t, err)

	_, err = cal.ParseDate("  ")
	assert.Error(t, err)
}

func TestElapsedDays(t *testing.T) {
	since := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	assert.False(t, ElapsedDays(since, since.Add(23*time.Hour), 1))
	assert.True(t, ElapsedDays(since, since.Add(24*time.Hour), 1))
	assert.False(t, ElapsedDays(since, since.Add(6*Day), 7))
	assert.True(t, ElapsedDays(since, since.Add(7*Day), 7))
}
