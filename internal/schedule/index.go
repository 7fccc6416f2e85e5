package schedule

import (
	"sort"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

type cellKey struct {
	date appointments.Date
	slot appointments.TimeOfDay
}

// Index maps appointments onto (date, slot) cells. An Index is immutable;
// build a new one whenever the collection changes.
type Index struct {
	source    []appointments.Appointment
	cells     map[cellKey]appointments.Appointment
	perDate   map[appointments.Date]int
	conflicts []appointments.Appointment
	unplaced  []appointments.Appointment
}

// NewIndex builds an index over appts. Times between slot boundaries land in
// the slot whose window contains them. When several appointments share a
// cell the lowest id wins and the others are reported by Conflicts.
func NewIndex(appts []appointments.Appointment, slots SlotConfig) *Index {
	sorted := make([]appointments.Appointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := &Index{
		source:  sorted,
		cells:   make(map[cellKey]appointments.Appointment, len(sorted)),
		perDate: make(map[appointments.Date]int),
	}
	for _, a := range sorted {
		if a.Date.IsZero() {
			idx.unplaced = append(idx.unplaced, a)
			continue
		}
		idx.perDate[a.Date]++
		slot, ok := slots.SlotFor(a.Time)
		if !ok {
			idx.unplaced = append(idx.unplaced, a)
			continue
		}
		key := cellKey{date: a.Date, slot: slot}
		if _, taken := idx.cells[key]; taken {
			idx.conflicts = append(idx.conflicts, a)
			continue
		}
		idx.cells[key] = a
	}
	return idx
}

// At returns the appointment occupying (date, slot).
func (i *Index) At(date appointments.Date, slot appointments.TimeOfDay) (appointments.Appointment, bool) {
	if i == nil {
		return appointments.Appointment{}, false
	}
	a, ok := i.cells[cellKey{date: date, slot: slot}]
	return a, ok
}

// CountByDate returns how many dated appointments fall on date, including
// ones hidden by a conflict or outside the slot grid.
func (i *Index) CountByDate(date appointments.Date) int {
	if i == nil {
		return 0
	}
	return i.perDate[date]
}

// Conflicts lists appointments that lost their cell to a lower id.
func (i *Index) Conflicts() []appointments.Appointment {
	if i == nil {
		return nil
	}
	return i.conflicts
}

// Unplaced lists appointments with no usable date or with a time outside
// the slot grid.
func (i *Index) Unplaced() []appointments.Appointment {
	if i == nil {
		return nil
	}
	return i.unplaced
}

// Appointments returns the indexed collection ordered by id.
func (i *Index) Appointments() []appointments.Appointment {
	if i == nil {
		return nil
	}
	return i.source
}

// Len returns the number of indexed appointments.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.source)
}
