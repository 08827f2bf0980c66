// Package datefmt holds the calendar-date helpers shared by the section
// extractor and the artifact writers.
package datefmt

import (
	"fmt"
	"strings"
	"time"
)

// Layouts used across the services.
const (
	HeadingLayout   = "20060102"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Date is a calendar date without a time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Of returns the calendar date of t in t's location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseHeading parses a heading token strictly as YYYYMMDD.
// Surrounding whitespace is ignored; anything else that is not exactly eight
// ASCII digits forming a real calendar date is rejected.
func ParseHeading(text string) (Date, bool) {
	s := strings.TrimSpace(text)
	if len(s) != len(HeadingLayout) {
		return Date{}, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Date{}, false
		}
	}
	t, err := time.Parse(HeadingLayout, s)
	if err != nil {
		return Date{}, false
	}
	return Of(t), true
}

// AddDays returns d shifted by n days (n may be negative).
func (d Date) AddDays(n int) Date {
	return Of(d.Time(time.UTC).AddDate(0, 0, n))
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// String renders d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Heading renders d as YYYYMMDD.
func (d Date) Heading() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// Timestamp formats t as YYYY-MM-DD HH:MM:SS, the artifact timestamp format.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
