package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/schedule"
)

// PatientMode selects how the form identifies the patient.
type PatientMode string

const (
	ModeRegistered PatientMode = "registered"
	ModeAdHoc      PatientMode = "adhoc"
)

// Form is the pending new-appointment input.
type Form struct {
	Mode      PatientMode              `json:"mode"`
	PatientID int64                    `json:"patient_id,omitempty"`
	Name      string                   `json:"name,omitempty"`
	Date      appointments.Date        `json:"date"`
	Time      appointments.TimeOfDay   `json:"time"`
	Notes     string                   `json:"notes,omitempty"`
	Busy      bool                     `json:"busy"`
	Error     string                   `json:"error,omitempty"`
	Patients  []appointments.Patient   `json:"patients,omitempty"`
	Slots     []appointments.TimeOfDay `json:"slots,omitempty"`
}

// OpenForm opens the booking form pre-filled with date and slot (either may
// be zero) and loads the patient list.
func (a *Agenda) OpenForm(ctx context.Context, date appointments.Date, slot appointments.TimeOfDay) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if !slot.Valid() {
		slot = appointments.InvalidTime
	}
	a.form = &Form{Mode: ModeRegistered, Date: date, Time: slot}
	a.detail = nil
	a.mu.Unlock()

	if err := a.loadPatients(ctx); err != nil {
		a.logger.Warn("failed to load patients for form", "error", err)
		a.notifier.Failure("Could not load patients: " + appointments.MessageFor(err))
	}
	return nil
}

// Form returns a snapshot of the open form.
func (a *Agenda) Form() (Form, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.form == nil {
		return Form{}, false
	}
	f := *a.form
	f.Patients = sortedPatients(a.patients)
	f.Slots = a.slots.Slots()
	return f, true
}

// CloseForm discards the form input.
func (a *Agenda) CloseForm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.form = nil
}

// SetPatientMode switches between a registered patient and a free-text
// name. Both patient fields are cleared.
func (a *Agenda) SetPatientMode(mode PatientMode) error {
	return a.editForm(func(f *Form) {
		f.Mode = mode
		f.PatientID = 0
		f.Name = ""
	})
}

func (a *Agenda) SelectPatient(id int64) error {
	return a.editForm(func(f *Form) { f.PatientID = id })
}

func (a *Agenda) SetAdHocName(name string) error {
	return a.editForm(func(f *Form) { f.Name = name })
}

func (a *Agenda) SetFormDate(d appointments.Date) error {
	return a.editForm(func(f *Form) { f.Date = d })
}

func (a *Agenda) SetFormTime(t appointments.TimeOfDay) error {
	return a.editForm(func(f *Form) { f.Time = t })
}

func (a *Agenda) SetNotes(notes string) error {
	return a.editForm(func(f *Form) { f.Notes = notes })
}

func (a *Agenda) editForm(fn func(*Form)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.form == nil {
		return ErrFormClosed
	}
	if a.form.Busy {
		return ErrBusy
	}
	fn(a.form)
	return nil
}

// SubmitForm validates the form locally and books the appointment. On
// success the form closes and the collection is refetched; on failure the
// form keeps its input and carries the error message.
func (a *Agenda) SubmitForm(ctx context.Context) error {
	now := a.now()

	a.mu.Lock()
	form := a.form
	if form == nil {
		a.mu.Unlock()
		return ErrFormClosed
	}
	if form.Busy {
		a.mu.Unlock()
		return ErrBusy
	}
	// Busy from here until the create returns; resolving the user id may block.
	form.Busy = true
	form.Error = ""
	input := *form
	a.mu.Unlock()

	req, err := a.validateForm(ctx, input, appointments.DateOf(now))
	if err != nil {
		a.mu.Lock()
		form.Busy = false
		a.mu.Unlock()
		a.failForm(form, err)
		return err
	}

	a.mu.Lock()
	if a.closed || a.form != form {
		form.Busy = false
		a.mu.Unlock()
		return ErrFormClosed
	}
	a.mu.Unlock()

	created, err := a.api.CreateAppointment(ctx, req)
	a.metrics.ObserveMutation("create", err == nil)

	a.mu.Lock()
	form.Busy = false
	if a.closed || a.form != form {
		a.mu.Unlock()
		if err != nil {
			return fmt.Errorf("submit form: %w", err)
		}
		return nil
	}
	if err != nil {
		a.mu.Unlock()
		a.failForm(form, err)
		return fmt.Errorf("submit form: %w", err)
	}
	a.form = nil
	a.mu.Unlock()

	a.logger.Info("appointment created", "id", created.ID, "date", created.Date.String(), "time", created.Time.String())
	a.notifier.Success("Appointment booked.")
	if err := a.refetch(ctx); err != nil && !errors.Is(err, ErrClosed) {
		a.logger.Warn("refetch after create failed", "error", err)
	}
	return nil
}

func (a *Agenda) failForm(form *Form, err error) {
	msg := appointments.MessageFor(err)
	a.mu.Lock()
	if a.form == form {
		form.Error = msg
	}
	a.mu.Unlock()
	a.notifier.Failure(msg)
}

type validationEnv struct {
	today appointments.Date
	slots schedule.SlotConfig
}

type validationEnvKey struct{}

// formDraft is the validated shape of the form.
type formDraft struct {
	Mode      string `validate:"required,oneof=registered adhoc"`
	PatientID int64  `validate:"required_if=Mode registered"`
	Name      string `validate:"required_if=Mode adhoc"`
	Date      string `validate:"required,weekday,notpast"`
	Time      string `validate:"required,slot"`
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		d, err := appointments.ParseDate(fl.Field().String())
		return err == nil && !d.IsWeekend()
	})
	_ = v.RegisterValidationCtx("notpast", func(ctx context.Context, fl validator.FieldLevel) bool {
		env, ok := ctx.Value(validationEnvKey{}).(validationEnv)
		if !ok {
			return true
		}
		d, err := appointments.ParseDate(fl.Field().String())
		return err == nil && !d.Before(env.today)
	})
	_ = v.RegisterValidationCtx("slot", func(ctx context.Context, fl validator.FieldLevel) bool {
		env, ok := ctx.Value(validationEnvKey{}).(validationEnv)
		if !ok {
			return false
		}
		t, err := appointments.ParseTimeOfDay(fl.Field().String())
		return err == nil && env.slots.IsSlot(t)
	})
	return v
}

var formMessages = map[string]string{
	"Mode.required":         "Choose how to identify the patient.",
	"Mode.oneof":            "Choose how to identify the patient.",
	"PatientID.required_if": "Select a patient.",
	"Name.required_if":      "Enter the patient's name.",
	"Date.required":         "Date is required.",
	"Date.weekday":          "Appointments cannot be booked on Saturdays or Sundays.",
	"Date.notpast":          "Date cannot be in the past.",
	"Time.required":         "Time is required.",
	"Time.slot":             "Choose one of the available times.",
}

func (a *Agenda) validateForm(ctx context.Context, f Form, today appointments.Date) (appointments.CreateRequest, error) {
	draft := formDraft{
		Mode:      string(f.Mode),
		PatientID: f.PatientID,
		Name:      strings.TrimSpace(f.Name),
	}
	if !f.Date.IsZero() {
		draft.Date = f.Date.String()
	}
	if f.Time.Valid() {
		draft.Time = f.Time.String()
	}

	vctx := context.WithValue(ctx, validationEnvKey{}, validationEnv{today: today, slots: a.slots})
	if err := formValidator.StructCtx(vctx, draft); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			msg, ok := formMessages[first.Field()+"."+first.Tag()]
			if !ok {
				msg = first.Error()
			}
			return appointments.CreateRequest{}, &ValidationError{Field: first.Field(), Message: msg}
		}
		return appointments.CreateRequest{}, fmt.Errorf("validate form: %w", err)
	}

	if a.sess == nil {
		return appointments.CreateRequest{}, &ValidationError{Field: "User", Message: "User ID not found. Please log in again."}
	}
	userID, err := a.sess.UserID(ctx)
	if err != nil || userID <= 0 {
		return appointments.CreateRequest{}, &ValidationError{Field: "User", Message: "User ID not found. Please log in again."}
	}

	req := appointments.CreateRequest{
		Date:   f.Date,
		Time:   f.Time,
		Notes:  strings.TrimSpace(f.Notes),
		UserID: userID,
	}
	if f.Mode == ModeAdHoc {
		req.Patient = appointments.AdHoc(draft.Name)
	} else {
		req.Patient = appointments.Registered(f.PatientID)
	}
	return req, nil
}

func sortedPatients(byID map[int64]appointments.Patient) []appointments.Patient {
	out := make([]appointments.Patient, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
