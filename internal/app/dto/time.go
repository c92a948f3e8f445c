package dto

import (
	"strings"
	"time"

	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

// LocalLayout renders naive wall-clock values without a zone suffix.
const LocalLayout = "2006-01-02T15:04:05"

var inputLayouts = []string{time.RFC3339Nano, LocalLayout, "2006-01-02T15:04", time.DateOnly}

// ParseLocal accepts RFC 3339, zone-less timestamps and plain dates and keeps
// the wall clock as written.
func ParseLocal(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return daterange.Naive(t), nil
		}
	}
	return time.Time{}, apperr.Validation("dto", "%s: cannot parse %q as a date or timestamp", field, raw)
}

func FormatLocal(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(LocalLayout)
}

func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return daterange.DayKey(t)
}
