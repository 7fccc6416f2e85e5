package schedule

import (
	"fmt"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

// Step moves anchor by one view unit in direction dir (+1 or -1): a day,
// a week, or a calendar month with the day clamped to the month length.
func Step(view View, anchor appointments.Date, dir int) appointments.Date {
	switch view {
	case Daily:
		return anchor.AddDays(dir)
	case Monthly:
		return anchor.AddMonths(dir)
	default:
		return anchor.AddDays(7 * dir)
	}
}

// PrevDisabled reports whether moving back from anchor would land before
// today. Monthly compares month starts; the other views compare the stepped
// date with today.
func PrevDisabled(view View, anchor, today appointments.Date) bool {
	prev := Step(view, anchor, -1)
	if view == Monthly {
		return prev.StartOfMonth().Before(today.StartOfMonth())
	}
	return prev.Before(today)
}

// HeaderLabel is the title shown above the grid.
func HeaderLabel(view View, anchor appointments.Date) string {
	switch view {
	case Daily:
		return anchor.In(nil).Format("Monday, 2 January 2006")
	case Monthly:
		return anchor.In(nil).Format("January 2006")
	default:
		start := WeekStart(anchor)
		end := start.AddDays(6)
		return fmt.Sprintf("%02d/%02d - %02d/%02d", start.Day, int(start.Month), end.Day, int(end.Month))
	}
}
