package timeparser

import (
	"fmt"
	"time"
)

// ParseAPITimestamp attempts to parse an API timestamp with multiple ISO-8601 formats.
// Timestamps without an offset are interpreted as UTC.
func ParseAPITimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,                // 2006-01-02T15:04:05.999999999Z07:00
		"2006-01-02T15:04:05.999999999", // naive, fractional seconds optional
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// DayKey returns the calendar date of t in t's own location.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
