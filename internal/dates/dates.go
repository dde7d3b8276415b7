package dates

import (
	"fmt"
	"time"
)

// Layout is the CLI date format (%Y%m%d in the original tooling).
const Layout = "20060102"

// Range is a half-open calendar date range [Start, End).
// Both bounds are UTC midnights.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseRange parses start and end in Layout format and validates them.
// start == end is a valid empty range; start > end is an error.
func ParseRange(start, end string) (Range, error) {
	s, err := time.ParseInLocation(Layout, start, time.UTC)
	if err != nil {
		return Range{}, fmt.Errorf("invalid start date %q: expected format %s", start, Layout)
	}

	e, err := time.ParseInLocation(Layout, end, time.UTC)
	if err != nil {
		return Range{}, fmt.Errorf("invalid end date %q: expected format %s", end, Layout)
	}

	return NewRange(s, e)
}

// NewRange builds a Range from two times, truncating both to UTC midnight.
func NewRange(start, end time.Time) (Range, error) {
	s := DateOf(start)
	e := DateOf(end)

	if e.Before(s) {
		return Range{}, fmt.Errorf("invalid range: start %s is after end %s",
			s.Format(Layout), e.Format(Layout))
	}

	return Range{Start: s, End: e}, nil
}

// DateOf truncates t to its UTC calendar date (midnight).
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Days returns one entry per calendar date in [Start, End).
// An empty range returns an empty (non-nil) slice.
func (r Range) Days() []time.Time {
	days := make([]time.Time, 0, r.Len())
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Len returns the number of calendar dates in the range.
func (r Range) Len() int {
	if !r.Start.Before(r.End) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Contains reports whether t's calendar date falls inside [Start, End).
func (r Range) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(r.Start) && d.Before(r.End)
}

// IsZero reports whether the range is the zero value.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// String formats the range as [start, end) for logs.
func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(Layout), r.End.Format(Layout))
}
