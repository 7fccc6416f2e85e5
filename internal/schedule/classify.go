package schedule

import (
	"time"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

// State is the render state of one (day, slot) cell.
type State string

const (
	Open   State = "open"
	Booked State = "booked"
	Closed State = "closed"
	Past   State = "past"
)

// Cell is a classified (day, slot) pair.
type Cell struct {
	Date        appointments.Date         `json:"date"`
	Slot        appointments.TimeOfDay    `json:"slot"`
	State       State                     `json:"state"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
}

// Clickable reports whether the cell reacts to a click: open cells start a
// booking and booked cells open the appointment.
func (c Cell) Clickable() bool {
	return c.State == Open || c.State == Booked
}

// Classify returns the state of (day, slot) at now. Booked wins over closed,
// closed over past, past over open. The slot instant is taken in now's
// location.
func Classify(day appointments.Date, slot appointments.TimeOfDay, now time.Time, idx *Index) Cell {
	cell := Cell{Date: day, Slot: slot}
	if appt, ok := idx.At(day, slot); ok {
		cell.State = Booked
		cell.Appointment = &appt
		return cell
	}
	if day.IsWeekend() {
		cell.State = Closed
		return cell
	}
	if slot.On(day, now.Location()).Before(now) {
		cell.State = Past
		return cell
	}
	cell.State = Open
	return cell
}

// ClassifyRows classifies every slot (rows) for every date (columns).
func ClassifyRows(dates []appointments.Date, slots []appointments.TimeOfDay, now time.Time, idx *Index) [][]Cell {
	rows := make([][]Cell, len(slots))
	for r, slot := range slots {
		row := make([]Cell, len(dates))
		for c, day := range dates {
			row[c] = Classify(day, slot, now, idx)
		}
		rows[r] = row
	}
	return rows
}
