package schedule

import (
	"fmt"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

// MonthDay is one square of the monthly grid.
type MonthDay struct {
	Date      appointments.Date `json:"date"`
	InMonth   bool              `json:"in_month"`
	Today     bool              `json:"today"`
	Past      bool              `json:"past"`
	Closed    bool              `json:"closed"`
	Count     int               `json:"count"`
	Clickable bool              `json:"clickable"`
	Label     string            `json:"label"`
}

// BuildMonth classifies every day of the monthly grid for anchor. A day is
// clickable when it belongs to the anchor month and is neither past nor a
// weekend day.
func BuildMonth(anchor, today appointments.Date, idx *Index) []MonthDay {
	dates := VisibleDates(anchor, Monthly)
	out := make([]MonthDay, len(dates))
	for i, d := range dates {
		day := MonthDay{
			Date:    d,
			InMonth: d.Month == anchor.Month && d.Year == anchor.Year,
			Today:   d == today,
			Past:    d.Before(today),
			Closed:  d.IsWeekend(),
			Count:   idx.CountByDate(d),
		}
		day.Clickable = day.InMonth && !day.Past && !day.Closed
		day.Label = monthDayLabel(day)
		out[i] = day
	}
	return out
}

func monthDayLabel(d MonthDay) string {
	switch {
	case d.Count == 1:
		return "1 appointment"
	case d.Count > 1:
		return fmt.Sprintf("%d appointments", d.Count)
	case d.Closed:
		return "Closed"
	case d.Past:
		return "Finished"
	default:
		return "Free"
	}
}
