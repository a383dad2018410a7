package revenue

import (
	"strings"
	"time"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod maps a keyword onto a Period. Unknown keywords fall back to
// PeriodMonth.
func ParsePeriod(s string) Period {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p
	default:
		return PeriodMonth
	}
}

// Window is an inclusive range of calendar dates. Start and End are
// midnights in the anchor's location.
type Window struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

func WindowFor(period Period, anchor time.Time) Window {
	day := midnight(anchor)
	y, m, _ := day.Date()
	loc := day.Location()

	switch period {
	case PeriodDay:
		return Window{Start: day, End: day}
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Window{Start: start, End: start.AddDate(0, 0, 6)}
	case PeriodYear:
		return Window{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			End:   time.Date(y, time.December, 31, 0, 0, 0, 0, loc),
		}
	default:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Window{Start: start, End: start.AddDate(0, 1, -1)}
	}
}

// Bounds returns the half-open instant range [from, to) covering the window.
func (w Window) Bounds() (from, to time.Time) {
	return w.Start, w.End.AddDate(0, 0, 1)
}

func (w Window) Contains(t time.Time) bool {
	d := midnight(t.In(w.Start.Location()))
	return !d.Before(w.Start) && !d.After(w.End)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
