package utils

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDateLayouts are tried in order when parsing transaction dates.
// Day-first slashes follow the Brazilian locale the sales exports come from.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// DaysPerMonth is the fixed month length used for time offsets.
const DaysPerMonth = 30.0

// ParseDate parses s with the first layout that accepts it. Times without a
// zone are read as UTC; a zone offset in s is kept so the sale stays on its
// local calendar day. A nil or empty layouts slice uses DefaultDateLayouts.
func ParseDate(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q matches none of the layouts %v", s, layouts)
}

// MonthStart returns midnight UTC on the first day of the calendar month t
// falls in at its own location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthOffset returns the whole days elapsed from first to t divided by 30.
func MonthOffset(first, t time.Time) float64 {
	days := int(t.Sub(first).Hours() / 24)
	return float64(days) / DaysPerMonth
}

// FormatMonth formats a month as "2006-01".
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}
