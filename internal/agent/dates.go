package agent

import (
	"strings"
	"time"
)

// Layouts without an offset are read in the owner's zone.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads the datetime formats models produce. Anything it cannot
// read is reported as absent, never as an error.
func ParseTime(raw *string, loc *time.Location) *time.Time {
	if raw == nil {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" || strings.EqualFold(value, "null") || strings.EqualFold(value, "none") {
		return nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return &t
	}
	// "2025-03-01T09:00:00+0300" style offsets.
	if t, err := time.Parse("2006-01-02T15:04:05Z0700", value); err == nil {
		return &t
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return &t
		}
	}
	return nil
}
