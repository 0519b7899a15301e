// Package compare derives period-over-period comparison windows.
package compare

import (
	"time"
)

// Mode selects how the comparison window is derived.
type Mode string

const (
	PreviousPeriod Mode = "previous_period"
	PreviousYear   Mode = "previous_year"
)

// DateLayout is the wire format of range bounds.
const DateLayout = "2006-01-02"

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == PreviousPeriod || m == PreviousYear
}

// Range is an inclusive date window.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Days returns the inclusive day count, or 0 when the range cannot be parsed.
func (r Range) Days() int {
	start, end, ok := parse(r.Start, r.End)
	if !ok {
		return 0
	}
	return daysBetween(start, end) + 1
}

// Build returns the comparison window for [dateFrom, dateTo] or nil when no
// comparison applies: unknown mode, unparseable dates or an inverted range.
func Build(dateFrom, dateTo string, mode Mode) *Range {
	start, end, ok := parse(dateFrom, dateTo)
	if !ok || end.Before(start) {
		return nil
	}
	switch mode {
	case PreviousPeriod:
		diffDays := daysBetween(start, end) + 1
		newEnd := start.AddDate(0, 0, -1)
		newStart := newEnd.AddDate(0, 0, -(diffDays - 1))
		return &Range{Start: newStart.Format(DateLayout), End: newEnd.Format(DateLayout)}
	case PreviousYear:
		return &Range{Start: shiftYear(start).Format(DateLayout), End: shiftYear(end).Format(DateLayout)}
	default:
		return nil
	}
}

// shiftYear moves t back one calendar year. Feb 29 maps to Feb 28 instead of
// rolling over into March.
func shiftYear(t time.Time) time.Time {
	if t.Month() == time.February && t.Day() == 29 {
		return time.Date(t.Year()-1, time.February, 28, 0, 0, 0, 0, time.UTC)
	}
	return t.AddDate(-1, 0, 0)
}

func parse(from, to string) (time.Time, time.Time, bool) {
	start, err := time.ParseInLocation(DateLayout, from, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := time.ParseInLocation(DateLayout, to, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func daysBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}
