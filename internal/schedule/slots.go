// Package schedule holds the calendar-grid rules of the clinic agenda: the
// bookable slot set, visible date ranges, the appointment index, and slot
// classification. Everything here is pure; the current time is always an
// argument.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

// ErrInvalidSlotConfig is returned by ParseSlotConfig for unusable layouts.
var ErrInvalidSlotConfig = errors.New("schedule: invalid slot config")

// SlotConfig describes the bookable time-of-day layout shared by every day.
type SlotConfig struct {
	// Open is the first slot.
	Open appointments.TimeOfDay
	// Close is the end of the working day; the last slot starts before it.
	Close appointments.TimeOfDay
	Step  time.Duration
	// BlackoutStart and BlackoutEnd bound the lunch break, both inclusive.
	BlackoutStart appointments.TimeOfDay
	BlackoutEnd   appointments.TimeOfDay
}

// DefaultSlotConfig is 08:00-18:00 every 30 minutes with 11:30-13:00 blacked
// out.
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{
		Open:          appointments.NewTimeOfDay(8, 0),
		Close:         appointments.NewTimeOfDay(18, 0),
		Step:          30 * time.Minute,
		BlackoutStart: appointments.NewTimeOfDay(11, 30),
		BlackoutEnd:   appointments.NewTimeOfDay(13, 0),
	}
}

// ParseSlotConfig builds a SlotConfig from "HH:MM" strings. Empty blackout
// bounds disable the blackout.
func ParseSlotConfig(open, close string, step time.Duration, blackoutStart, blackoutEnd string) (SlotConfig, error) {
	cfg := SlotConfig{Step: step, BlackoutStart: appointments.InvalidTime, BlackoutEnd: appointments.InvalidTime}

	var err error
	if cfg.Open, err = appointments.ParseTimeOfDay(open); err != nil {
		return SlotConfig{}, fmt.Errorf("%w: open: %v", ErrInvalidSlotConfig, err)
	}
	if cfg.Close, err = appointments.ParseTimeOfDay(close); err != nil {
		return SlotConfig{}, fmt.Errorf("%w: close: %v", ErrInvalidSlotConfig, err)
	}
	if blackoutStart != "" || blackoutEnd != "" {
		if cfg.BlackoutStart, err = appointments.ParseTimeOfDay(blackoutStart); err != nil {
			return SlotConfig{}, fmt.Errorf("%w: blackout start: %v", ErrInvalidSlotConfig, err)
		}
		if cfg.BlackoutEnd, err = appointments.ParseTimeOfDay(blackoutEnd); err != nil {
			return SlotConfig{}, fmt.Errorf("%w: blackout end: %v", ErrInvalidSlotConfig, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return SlotConfig{}, err
	}
	return cfg, nil
}

// Validate checks that the layout yields a sane slot list.
func (c SlotConfig) Validate() error {
	switch {
	case c.Step < time.Minute || c.Step%time.Minute != 0:
		return fmt.Errorf("%w: step must be a whole number of minutes", ErrInvalidSlotConfig)
	case !c.Open.Valid() || !c.Close.Valid() || c.Close <= c.Open:
		return fmt.Errorf("%w: close must be after open", ErrInvalidSlotConfig)
	case c.hasBlackout() && c.BlackoutEnd < c.BlackoutStart:
		return fmt.Errorf("%w: blackout end before start", ErrInvalidSlotConfig)
	}
	return nil
}

func (c SlotConfig) stepMinutes() int {
	return int(c.Step / time.Minute)
}

func (c SlotConfig) hasBlackout() bool {
	return c.BlackoutStart.Valid() && c.BlackoutEnd.Valid()
}

func (c SlotConfig) blackedOut(t appointments.TimeOfDay) bool {
	return c.hasBlackout() && t >= c.BlackoutStart && t <= c.BlackoutEnd
}

// Slots returns the sorted bookable times of day.
func (c SlotConfig) Slots() []appointments.TimeOfDay {
	step := c.stepMinutes()
	if step <= 0 {
		return nil
	}
	out := make([]appointments.TimeOfDay, 0, (int(c.Close)-int(c.Open))/step)
	for t := c.Open; t < c.Close; t += appointments.TimeOfDay(step) {
		if c.blackedOut(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// IsSlot reports whether t is one of the bookable slots.
func (c SlotConfig) IsSlot(t appointments.TimeOfDay) bool {
	slot, ok := c.SlotFor(t)
	return ok && slot == t
}

// SlotFor returns the slot whose window [slot, slot+step) contains t.
func (c SlotConfig) SlotFor(t appointments.TimeOfDay) (appointments.TimeOfDay, bool) {
	step := c.stepMinutes()
	if !t.Valid() || step <= 0 || t < c.Open || t >= c.Close {
		return appointments.InvalidTime, false
	}
	slot := c.Open + appointments.TimeOfDay((int(t-c.Open)/step)*step)
	if c.blackedOut(slot) {
		return appointments.InvalidTime, false
	}
	return slot, true
}
