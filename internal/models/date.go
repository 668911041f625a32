package models

import (
	"fmt"
	"time"
)

// DayOf truncates t to midnight in its own location. All day-granularity
// comparisons in this package go through it.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DateKey formats a time as the canonical YYYY-MM-DD day key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseClock parses an "HH:MM" wall-clock string.
func ParseClock(clock string) (hour, min int, err error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ClockOn places an "HH:MM" wall-clock string on the given calendar day,
// in that day's location. The clock string must already be validated.
func ClockOn(day time.Time, clock string) time.Time {
	hour, min, err := ParseClock(clock)
	if err != nil {
		return DayOf(day)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, day.Location())
}
