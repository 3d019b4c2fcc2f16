// Package timefmt renders instants in the dashboard display format,
// "1st April 2021 - 9:30 PM UTC". Both the push and pull-request parsing
// paths share this single formatter.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// layouts accepted for source timestamps. GitHub delivers RFC 3339 values,
// with and without a zone designator depending on the payload field.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Format renders t in the fixed display pattern. The instant is normalized
// to UTC before formatting.
func Format(t time.Time) string {
	t = t.UTC()

	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "AM"
	if t.Hour() >= 12 {
		meridiem = "PM"
	}

	return fmt.Sprintf("%d%s %s %d - %d:%02d %s UTC",
		t.Day(),
		OrdinalSuffix(t.Day()),
		t.Month().String(),
		t.Year(),
		hour,
		t.Minute(),
		meridiem,
	)
}

// FormatISO parses an ISO-8601 value and renders it with Format. When the
// value is absent or unparseable it falls back to now() so ingestion is not
// blocked by a cosmetic input defect; the second return is false in that
// degraded case so callers can log it.
func FormatISO(value string, now func() time.Time) (string, bool) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Format(now()), false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return Format(t), true
		}
	}
	return Format(now()), false
}

// FormatUnix renders an epoch-seconds instant, used for the push payload's
// repository.pushed_at field.
func FormatUnix(seconds int64) string {
	return Format(time.Unix(seconds, 0).UTC())
}

// OrdinalSuffix returns the English day-of-month suffix: 11-13 always take
// "th", otherwise the last digit decides.
func OrdinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}
