// Package timeutil provides calendar-day helpers for streaks and renewal windows.
// All day arithmetic is done on civil dates in a configured location, so a
// "day" is a calendar day for the household, not a 24h interval in UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Day is the length of one renewal day.
const Day = 24 * time.Hour

// Calendar performs day arithmetic in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a Calendar. A nil location means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// UTC is a calendar in UTC.
var UTC = NewCalendar(time.UTC)

// Location returns the calendar's location.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// StartOfDay returns midnight of t's civil date.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// Computed on civil dates so DST transitions never produce 23h or 25h "days".
func (c Calendar) DaysBetween(t1, t2 time.Time) int {
	a := c.StartOfDay(t1)
	b := c.StartOfDay(t2)
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / Day)
}

// AddDays shifts a date by n calendar days, keeping midnight.
func (c Calendar) AddDays(t time.Time, n int) time.Time {
	return c.StartOfDay(t).AddDate(0, 0, n)
}

// IsSameDay checks if two times fall on the same civil date.
func (c Calendar) IsSameDay(t1, t2 time.Time) bool {
	return c.DaysBetween(t1, t2) == 0
}

// IsConsecutiveDay checks if t2 is the day after t1.
func (c Calendar) IsConsecutiveDay(t1, t2 time.Time) bool {
	return c.DaysBetween(t1, t2) == 1
}

// ParseDate parses either a YYYY-MM-DD date (interpreted in the calendar's
// location) or a full RFC 3339 timestamp.
func (c Calendar) ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("timeutil: empty date")
	}
	if t, err := time.ParseInLocation(FormatDate, value, c.Location()); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: parse date %q: %w", value, err)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD in the calendar's location.
func (c Calendar) FormatDate(t time.Time) string {
	return t.In(c.Location()).Format(FormatDate)
}

// ElapsedDays reports whether at least n renewal days have passed between
// since and now. Renewal windows are measured as elapsed time, not civil dates.
func ElapsedDays(since, now time.Time, n int) bool {
	return now.Sub(since) >= time.Duration(n)*Day
}
