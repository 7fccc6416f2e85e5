package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

// ErrInvalidView is returned by ParseView for unknown view names.
var ErrInvalidView = errors.New("schedule: invalid view")

// View is the calendar mode of the agenda.
type View string

const (
	Daily   View = "daily"
	Weekly  View = "weekly"
	Monthly View = "monthly"
)

// ParseView accepts the English names and the clinic's Portuguese ones.
// Empty input selects the weekly view.
func ParseView(s string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "weekly", "week", "semanal":
		return Weekly, nil
	case "daily", "day", "diaria", "diária":
		return Daily, nil
	case "monthly", "month", "mensal":
		return Monthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidView, s)
	}
}

// WeekStart returns the Monday of d's week.
func WeekStart(d appointments.Date) appointments.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// VisibleDates returns the dates rendered for anchor in view: the anchor
// alone (daily), Monday through Sunday (weekly), or the anchor month padded
// to whole Sunday-started weeks (monthly).
func VisibleDates(anchor appointments.Date, view View) []appointments.Date {
	switch view {
	case Daily:
		return []appointments.Date{anchor}
	case Monthly:
		return monthGridDates(anchor)
	default:
		start := WeekStart(anchor)
		out := make([]appointments.Date, 7)
		for i := range out {
			out[i] = start.AddDays(i)
		}
		return out
	}
}

func monthGridDates(anchor appointments.Date) []appointments.Date {
	first := anchor.StartOfMonth()
	last := anchor.EndOfMonth()
	start := first.AddDays(-int(first.Weekday()))
	end := last.AddDays(int(time.Saturday - last.Weekday()))

	var out []appointments.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
