package core

import (
	"strings"
	"time"
)

const isoMonth = "2006-01"

// MonthRange is an inclusive [first day, last day] window for one calendar
// month, derived from a "YYYY-MM" string.
type MonthRange struct {
	Month string
	First Date
	Last  Date
}

// ParseMonth parses "YYYY-MM" into its inclusive date range. Anything that
// is not a four-digit year plus a month in [1, 12] is a validation error.
func ParseMonth(s string) (MonthRange, error) {
	t, err := time.Parse(isoMonth, strings.TrimSpace(s))
	if err != nil {
		return MonthRange{}, Validationf("month %q must be YYYY-MM", s)
	}
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return MonthRange{
		Month: first.Format(isoMonth),
		First: Date{Time: first},
		Last:  Date{Time: last},
	}, nil
}

// Contains reports whether d falls inside the range.
func (r MonthRange) Contains(d Date) bool {
	return !d.Before(r.First.Time) && !d.After(r.Last.Time)
}
