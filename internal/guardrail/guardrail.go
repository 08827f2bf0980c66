// Package guardrail decides whether scheduled work may run right now.
//
// The decision is a pure function of the wall-clock time, the configured
// window and two bypass flags. It performs no I/O and keeps no state, so the
// caller owns both the clock and the logging of the outcome.
package guardrail

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults for the allowed window.
const (
	DefaultAnchor    = "23:00"
	DefaultTolerance = 5 * time.Minute
)

// Exit statuses carried by a Decision.
const (
	ExitOK      = 0
	ExitBlocked = 2
)

// Outcome is the tri-state result of a guardrail check.
type Outcome int

const (
	Proceed Outcome = iota
	Blocked
	Bypassed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case Blocked:
		return "blocked"
	case Bypassed:
		return "bypassed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses an HH:MM string.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	if len(hh) == 0 || len(hh) > 2 || !allDigits(hh) {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	if len(mm) != 2 || !allDigits(mm) {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	c := ClockTime{Hour: h, Minute: m}
	if err := c.validate(); err != nil {
		return ClockTime{}, err
	}
	return c, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (c ClockTime) validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("hour %d out of range", c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("minute %d out of range", c.Minute)
	}
	return nil
}

// String renders c as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns c on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// Window is the allowed execution interval: Anchor ± Tolerance.
// A window may span midnight; Decide then uses the adjacent day's anchor.
type Window struct {
	Anchor    ClockTime
	Tolerance time.Duration
	// Weekdays restricts the anchor to the listed days. Empty means every day.
	Weekdays []time.Weekday
}

// DefaultWindow returns the 23:00 ± 5 minute window on every day.
func DefaultWindow() Window {
	return Window{Anchor: ClockTime{Hour: 23}, Tolerance: DefaultTolerance}
}

// ErrInvalidWindow wraps every window validation failure.
var ErrInvalidWindow = errors.New("invalid guardrail window")

// Validate reports configurations that cannot describe a sane window. It is
// meant to run before Decide, which trusts its input.
func (w Window) Validate() error {
	if err := w.Anchor.validate(); err != nil {
		return fmt.Errorf("%w: anchor: %v", ErrInvalidWindow, err)
	}
	if w.Tolerance < 0 {
		return fmt.Errorf("%w: negative tolerance %s inverts the window", ErrInvalidWindow, w.Tolerance)
	}
	if 2*w.Tolerance >= 24*time.Hour {
		return fmt.Errorf("%w: tolerance %s covers the whole day", ErrInvalidWindow, w.Tolerance)
	}
	for _, d := range w.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidWindow, int(d))
		}
	}
	return nil
}

// Bounds returns the window anchored on the calendar day of day.
func (w Window) Bounds(day time.Time) (start, end time.Time) {
	anchor := w.Anchor.On(day)
	return anchor.Add(-w.Tolerance), anchor.Add(w.Tolerance)
}

func (w Window) allows(day time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, d := range w.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// Overrides are the bypass switches derived from the command line.
type Overrides struct {
	// ExplicitBypass is set by --run-anyway.
	ExplicitBypass bool
	// ServiceSelected is set when an individual service was requested.
	ServiceSelected bool
}

// Decision is the result of a guardrail evaluation.
type Decision struct {
	Outcome     Outcome
	Now         time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Reason      string
}

// ExitCode is the process exit status implied by the decision.
func (d Decision) ExitCode() int {
	if d.Outcome == Blocked {
		return ExitBlocked
	}
	return ExitOK
}

// Allowed reports whether the caller may continue.
func (d Decision) Allowed() bool {
	return d.Outcome != Blocked
}

// Decide evaluates now against w. The window is resolved on now's calendar
// day; when now falls in a window that straddles midnight from the previous
// or the next day, that window is reported instead.
func Decide(now time.Time, w Window, o Overrides) Decision {
	start, end := w.Bounds(now)
	anchorDay := now
	for _, shift := range []int{-1, 1} {
		if inside(now, start, end) {
			break
		}
		day := now.AddDate(0, 0, shift)
		if s, e := w.Bounds(day); inside(now, s, e) {
			start, end, anchorDay = s, e, day
		}
	}

	d := Decision{Now: now, WindowStart: start, WindowEnd: end}

	switch {
	case o.ExplicitBypass:
		d.Outcome = Bypassed
		d.Reason = "explicit bypass requested"
	case o.ServiceSelected:
		d.Outcome = Bypassed
		d.Reason = "individual service selected"
	case !inside(now, start, end):
		d.Outcome = Blocked
		d.Reason = fmt.Sprintf("outside allowed window %s-%s", start.Format("15:04"), end.Format("15:04"))
	case !w.allows(anchorDay.Weekday()):
		d.Outcome = Blocked
		d.Reason = fmt.Sprintf("%s is not an allowed day", anchorDay.Weekday())
	default:
		d.Outcome = Proceed
		d.Reason = "inside allowed window"
	}
	return d
}

func inside(now, start, end time.Time) bool {
	return !now.Before(start) && !now.After(end)
}

// ParseWeekdays parses names such as "sunday" or "Sun".
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidWindow, n)
		}
		days = append(days, d)
	}
	return days, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}
