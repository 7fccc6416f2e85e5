package agenda

import (
	"context"
	"fmt"

	"github.com/wolfman30/dental-agenda/internal/appointments"
)

// DetailMode is the sub-view of the appointment detail.
type DetailMode string

const (
	DetailView    DetailMode = "details"
	ConfirmDelete DetailMode = "confirmDelete"
)

// Detail is the open appointment and the status picked for it.
type Detail struct {
	Appointment appointments.Appointment `json:"appointment"`
	Patient     string                   `json:"patient"`
	Status      appointments.Status      `json:"status"`
	Mode        DetailMode               `json:"mode"`
	Busy        bool                     `json:"busy"`
	Error       string                   `json:"error,omitempty"`
}

// OpenDetail opens the loaded appointment with the given id.
func (a *Agenda) OpenDetail(id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	for _, appt := range a.appts {
		if appt.ID == id {
			a.detail = &Detail{
				Appointment: appt,
				Patient:     a.patientNameLocked(appt),
				Status:      appt.Status,
				Mode:        DetailView,
			}
			a.form = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownAppointment, id)
}

// Detail returns a snapshot of the open appointment.
func (a *Agenda) Detail() (Detail, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detail == nil {
		return Detail{}, false
	}
	return *a.detail, true
}

// CloseDetail clears the selected appointment.
func (a *Agenda) CloseDetail() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detail = nil
}

// SelectStatus picks the status SaveStatus will send. Any status may follow
// any other.
func (a *Agenda) SelectStatus(status appointments.Status) error {
	return a.editDetail(func(d *Detail) error {
		if _, err := status.MarshalText(); err != nil || status == "" {
			return fmt.Errorf("%w: %q", appointments.ErrInvalidStatus, string(status))
		}
		d.Status = status
		return nil
	})
}

// RequestDelete switches the detail to its confirmation step.
func (a *Agenda) RequestDelete() error {
	return a.editDetail(func(d *Detail) error {
		d.Mode = ConfirmDelete
		return nil
	})
}

// CancelDelete leaves the confirmation step.
func (a *Agenda) CancelDelete() error {
	return a.editDetail(func(d *Detail) error {
		d.Mode = DetailView
		return nil
	})
}

func (a *Agenda) editDetail(fn func(*Detail) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detail == nil {
		return ErrNoSelection
	}
	if a.detail.Busy {
		return ErrBusy
	}
	return fn(a.detail)
}

// SaveStatus sends the selected status. On success the local record is
// replaced by the server's representation and the detail closes.
func (a *Agenda) SaveStatus(ctx context.Context) error {
	detail, err := a.beginDetail(func(*Detail) error { return nil })
	if err != nil {
		return err
	}
	id, status := detail.Appointment.ID, detail.Status

	updated, err := a.api.UpdateStatus(ctx, id, status)
	a.metrics.ObserveMutation("status", err == nil)
	if err != nil {
		a.failDetail(detail, err)
		return fmt.Errorf("save status: %w", err)
	}

	a.mu.Lock()
	detail.Busy = false
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	// Responses to refetches started before the patch are now stale.
	a.gen++
	patched := make([]appointments.Appointment, 0, len(a.appts))
	for _, appt := range a.appts {
		if appt.ID == id {
			appt = *updated
		}
		patched = append(patched, appt)
	}
	a.setAppointmentsLocked(patched)
	if a.detail == detail {
		a.detail = nil
	}
	a.mu.Unlock()

	a.notifier.Success("Status updated to " + updated.Status.Label() + ".")
	return nil
}

// ConfirmDelete deletes the open appointment. It must follow RequestDelete.
// On success the appointment is removed locally without a refetch.
func (a *Agenda) ConfirmDelete(ctx context.Context) error {
	detail, err := a.beginDetail(func(d *Detail) error {
		if d.Mode != ConfirmDelete {
			return ErrConfirmationRequired
		}
		return nil
	})
	if err != nil {
		return err
	}
	id := detail.Appointment.ID

	err = a.api.DeleteAppointment(ctx, id)
	a.metrics.ObserveMutation("delete", err == nil)
	if err != nil {
		a.failDetail(detail, err)
		return fmt.Errorf("delete appointment: %w", err)
	}

	a.mu.Lock()
	detail.Busy = false
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	remaining := make([]appointments.Appointment, 0, len(a.appts))
	for _, appt := range a.appts {
		if appt.ID != id {
			remaining = append(remaining, appt)
		}
	}
	a.setAppointmentsLocked(remaining)
	if a.detail == detail {
		a.detail = nil
	}
	a.mu.Unlock()

	a.logger.Info("appointment deleted", "id", id)
	a.notifier.Success("Appointment deleted.")
	return nil
}

// beginDetail marks the open detail busy after check passes.
func (a *Agenda) beginDetail(check func(*Detail) error) (*Detail, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	if a.detail == nil {
		return nil, ErrNoSelection
	}
	if a.detail.Busy {
		return nil, ErrBusy
	}
	if err := check(a.detail); err != nil {
		return nil, err
	}
	a.detail.Busy = true
	a.detail.Error = ""
	return a.detail, nil
}

func (a *Agenda) failDetail(detail *Detail, err error) {
	msg := appointments.MessageFor(err)
	a.mu.Lock()
	detail.Busy = false
	if a.detail == detail {
		detail.Error = msg
	}
	a.mu.Unlock()
	a.notifier.Failure(msg)
}
