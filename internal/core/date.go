package core

import (
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// Date is a calendar date with no time-of-day. The zero value is "no date".
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoDate, strings.TrimSpace(s))
	if err != nil {
		return Date{}, Validationf("date %q must be YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

// ISO renders the date as "YYYY-MM-DD".
func (d Date) ISO() string {
	return d.Format(isoDate)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.ISO() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
