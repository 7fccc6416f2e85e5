// Package appointments contains the clinic API client and its wire types.
package appointments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusRescheduled}

// The clinic API speaks Portuguese status values.
var (
	statusToWire = map[Status]string{
		StatusPending:     "pendente",
		StatusConfirmed:   "confirmado",
		StatusCancelled:   "cancelado",
		StatusRescheduled: "reagendado",
	}
	statusFromWire = map[string]Status{
		"pendente":   StatusPending,
		"confirmado": StatusConfirmed,
		"cancelado":  StatusCancelled,
		"reagendado": StatusRescheduled,
	}
)

// ParseStatus accepts either the English or the wire (Portuguese) value.
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return StatusPending, nil
	}
	if st, ok := statusFromWire[key]; ok {
		return st, nil
	}
	if _, ok := statusToWire[Status(key)]; ok {
		return Status(key), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Label returns a human-readable label.
func (s Status) Label() string {
	switch s {
	case StatusConfirmed:
		return "Confirmed"
	case StatusCancelled:
		return "Cancelled"
	case StatusRescheduled:
		return "Rescheduled"
	default:
		return "Pending"
	}
}

// MarshalText encodes the wire value.
func (s Status) MarshalText() ([]byte, error) {
	wire, ok := statusToWire[s]
	if !ok {
		if s == "" {
			return []byte(statusToWire[StatusPending]), nil
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
	return []byte(wire), nil
}

// UnmarshalText decodes either representation; unknown values are rejected.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// PatientKind tags which half of a PatientRef is populated.
type PatientKind int

const (
	PatientUnknown PatientKind = iota
	PatientRegistered
	PatientAdHoc
)

// PatientRef identifies who an appointment is for: a registered patient id
// or a free-text name for someone without a patient record.
type PatientRef struct {
	Kind PatientKind
	ID   int64
	Name string
}

// Registered refers to a patient record.
func Registered(id int64) PatientRef {
	return PatientRef{Kind: PatientRegistered, ID: id}
}

// AdHoc refers to an unregistered patient by name.
func AdHoc(name string) PatientRef {
	return PatientRef{Kind: PatientAdHoc, Name: strings.TrimSpace(name)}
}

// Patient is the lookup subset of a patient record.
type Patient struct {
	ID   int64  `json:"id_paciente"`
	Name string `json:"nome"`
}

// Appointment is a single booking as returned by the clinic API.
type Appointment struct {
	ID      int64
	Patient PatientRef
	// PatientName is set when the API inlines the patient object.
	PatientName string
	Date        Date
	Time        TimeOfDay
	Status      Status
	Notes       string
	UserID      int64
}

// Schedulable reports whether the appointment has a usable date and time.
func (a Appointment) Schedulable() bool {
	return !a.Date.IsZero() && a.Time.Valid()
}

type wireAppointment struct {
	ID       int64           `json:"id_consulta"`
	Patient  json.RawMessage `json:"paciente"`
	TempName *string         `json:"nome_paciente_temp"`
	Date     string          `json:"data_consulta"`
	Time     string          `json:"horario_consulta"`
	Status   string          `json:"status"`
	Notes    *string         `json:"observacoes"`
	UserID   *int64          `json:"usuario,omitempty"`
}

type wirePatient struct {
	ID      int64  `json:"id_paciente"`
	AltID   int64  `json:"id"`
	Name    string `json:"nome"`
	AltName string `json:"name"`
}

// UnmarshalJSON decodes the API record. Unparseable dates or times leave the
// appointment unschedulable instead of failing the whole collection.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var w wireAppointment
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Appointment{ID: w.ID, Time: InvalidTime}
	if d, err := ParseDate(w.Date); err == nil {
		out.Date = d
	}
	if t, err := ParseTimeOfDay(w.Time); err == nil {
		out.Time = t
	}
	if st, err := ParseStatus(w.Status); err == nil {
		out.Status = st
	} else {
		out.Status = StatusPending
	}
	if w.Notes != nil {
		out.Notes = *w.Notes
	}
	if w.UserID != nil {
		out.UserID = *w.UserID
	}

	raw := bytes.TrimSpace(w.Patient)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '{':
		var p wirePatient
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode paciente: %w", err)
		}
		id := p.ID
		if id == 0 {
			id = p.AltID
		}
		name := p.Name
		if name == "" {
			name = p.AltName
		}
		out.Patient = Registered(id)
		out.PatientName = name
	default:
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return fmt.Errorf("decode paciente: %w", err)
		}
		out.Patient = Registered(id)
	}

	if out.Patient.Kind == PatientUnknown && w.TempName != nil && strings.TrimSpace(*w.TempName) != "" {
		out.Patient = AdHoc(*w.TempName)
	}

	*a = out
	return nil
}

// MarshalJSON encodes the record in the API's shape.
func (a Appointment) MarshalJSON() ([]byte, error) {
	w := wireAppointment{
		ID:     a.ID,
		Date:   a.Date.String(),
		Time:   a.Time.String(),
		Status: statusToWire[a.Status],
	}
	if w.Status == "" {
		w.Status = statusToWire[StatusPending]
	}
	switch a.Patient.Kind {
	case PatientRegistered:
		if a.PatientName != "" {
			raw, err := json.Marshal(Patient{ID: a.Patient.ID, Name: a.PatientName})
			if err != nil {
				return nil, err
			}
			w.Patient = raw
		} else {
			w.Patient = json.RawMessage(fmt.Sprintf("%d", a.Patient.ID))
		}
	case PatientAdHoc:
		w.Patient = json.RawMessage("null")
		name := a.Patient.Name
		w.TempName = &name
	default:
		w.Patient = json.RawMessage("null")
	}
	if a.Notes != "" {
		notes := a.Notes
		w.Notes = &notes
	}
	if a.UserID != 0 {
		uid := a.UserID
		w.UserID = &uid
	}
	return json.Marshal(w)
}

// CreateRequest is the body of POST /api/agendamentos/.
type CreateRequest struct {
	Patient PatientRef
	Date    Date
	Time    TimeOfDay
	Notes   string
	UserID  int64
}

type wireCreateRequest struct {
	Patient  *int64  `json:"paciente"`
	TempName *string `json:"nome_paciente_temp"`
	Date     string  `json:"data_consulta"`
	Time     string  `json:"horario_consulta"`
	Notes    *string `json:"observacoes"`
	UserID   int64   `json:"usuario"`
}

// MarshalJSON encodes exactly one of paciente / nome_paciente_temp.
func (r CreateRequest) MarshalJSON() ([]byte, error) {
	w := wireCreateRequest{
		Date:   r.Date.String(),
		Time:   r.Time.String(),
		UserID: r.UserID,
	}
	switch r.Patient.Kind {
	case PatientRegistered:
		id := r.Patient.ID
		w.Patient = &id
	case PatientAdHoc:
		name := r.Patient.Name
		w.TempName = &name
	default:
		return nil, ErrMissingPatient
	}
	if notes := strings.TrimSpace(r.Notes); notes != "" {
		w.Notes = &notes
	}
	return json.Marshal(w)
}

// UnmarshalJSON is used by the fake API to read create bodies.
func (r *CreateRequest) UnmarshalJSON(data []byte) error {
	var w wireCreateRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := CreateRequest{UserID: w.UserID}
	switch {
	case w.Patient != nil && w.TempName != nil && strings.TrimSpace(*w.TempName) != "":
		return ErrAmbiguousPatient
	case w.Patient != nil:
		out.Patient = Registered(*w.Patient)
	case w.TempName != nil && strings.TrimSpace(*w.TempName) != "":
		out.Patient = AdHoc(*w.TempName)
	}
	var err error
	if out.Date, err = ParseDate(w.Date); err != nil {
		return err
	}
	if out.Time, err = ParseTimeOfDay(w.Time); err != nil {
		return err
	}
	if w.Notes != nil {
		out.Notes = *w.Notes
	}
	*r = out
	return nil
}

// StatusUpdate is the body of PATCH /api/agendamentos/{id}/.
type StatusUpdate struct {
	Status Status `json:"status"`
}

// ListFilter narrows GET /api/agendamentos/.
type ListFilter struct {
	// Date, when set, is sent as the data_consulta equality filter.
	Date *Date
}

type envelope[T any] struct {
	Results *[]T `json:"results"`
}

// decodeList accepts a bare JSON array or a paginated {"results": [...]}.
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	case '{':
		var env envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if env.Results == nil {
			return nil, ErrUnexpectedPayload
		}
		return *env.Results, nil
	default:
		return nil, ErrUnexpectedPayload
	}
}
