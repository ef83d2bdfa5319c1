package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a local wall-clock time expressed in minutes since midnight.
// 24:00 (1440) is valid as the end of a rule.
type TimeOfDay int

const (
	Midnight  TimeOfDay = 0
	EndOfDay  TimeOfDay = 24 * 60
	minOfHour           = 60
)

// ParseTimeOfDay parses "HH:MM" (24h clock)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("time of day must be HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if minute < 0 || minute >= minOfHour || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return TimeOfDay(hour*minOfHour + minute), nil
}

// MustParseTimeOfDay panics on malformed input; use for literals
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / minOfHour }
func (t TimeOfDay) Minute() int { return int(t) % minOfHour }

// IsValid reports whether t is within [00:00, 24:00]
func (t TimeOfDay) IsValid() bool {
	return t >= Midnight && t <= EndOfDay
}

// On returns the instant at this wall-clock time on the given local date.
// 24:00 rolls over to midnight of the following day.
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}
