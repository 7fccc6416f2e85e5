package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// Handler serves the agenda over HTTP. Each request gets its own Agenda
// bound to the caller's session.
type Handler struct {
	newAPI  func(session.Context) API
	slots   schedule.SlotConfig
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.AgendaMetrics
}

// NewHandler creates the agenda HTTP handler on top of client.
func NewHandler(client *appointments.Client, slots schedule.SlotConfig, logger *logging.Logger, m *metrics.AgendaMetrics) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		newAPI:  func(s session.Context) API { return client.WithTokens(s) },
		slots:   slots,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// Routes returns a chi router with the agenda routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetGrid)
	r.Get("/patients", h.ListPatients)
	r.Post("/appointments", h.CreateAppointment)
	r.Patch("/appointments/{id}/status", h.UpdateStatus)
	r.Delete("/appointments/{id}", h.DeleteAppointment)
	return r
}

// noticeRecorder keeps the notices raised while serving one request.
type noticeRecorder struct {
	mu       sync.Mutex
	Messages []string `json:"messages,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func (n *noticeRecorder) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, msg)
}

func (n *noticeRecorder) Failure(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Errors = append(n.Errors, msg)
}

func (h *Handler) agendaFor(r *http.Request, notes Notifier, opts ...Option) (*Agenda, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return nil, false
	}
	base := []Option{
		WithClock(h.now),
		WithLogger(h.logger),
		WithMetrics(h.metrics),
		WithSlots(h.slots),
		WithNotifier(notes),
	}
	return New(h.newAPI(sess), sess, append(base, opts...)...), true
}

// GetGrid returns the render state of one view.
// GET /agenda?view=weekly&date=2026-10-14
func (h *Handler) GetGrid(w http.ResponseWriter, r *http.Request) {
	view, err := schedule.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := []Option{WithView(view)}
	if raw := r.URL.Query().Get("date"); raw != "" {
		anchor, err := appointments.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		opts = append(opts, WithAnchor(anchor))
	}

	notes := &noticeRecorder{}
	ag, ok := h.agendaFor(r, notes, opts...)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing session")
		return
	}
	defer ag.Close()

	if err := ag.Load(r.Context()); err != nil {
		h.writeAgendaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag.Grid())
}

// ListPatients returns the patient lookup list.
// GET /agenda/patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing session")
		return
	}
	patients, err := h.newAPI(sess).ListPatients(r.Context())
	if err != nil {
		h.writeAgendaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": patients})
}

// BookRequest is the body of POST /agenda/appointments.
type BookRequest struct {
	Mode      PatientMode            `json:"mode"`
	PatientID int64                  `json:"patient_id"`
	Name      string                 `json:"name"`
	Date      appointments.Date      `json:"date"`
	Time      appointments.TimeOfDay `json:"time"`
	Notes     string                 `json:"notes"`
}

// CreateAppointment validates and books an appointment, then returns the
// weekly grid of the booked date.
// POST /agenda/appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	req := BookRequest{Time: appointments.InvalidTime}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Mode == "" {
		req.Mode = ModeRegistered
		if req.PatientID == 0 && req.Name != "" {
			req.Mode = ModeAdHoc
		}
	}

	notes := &noticeRecorder{}
	opts := []Option{WithView(schedule.Weekly)}
	if !req.Date.IsZero() {
		opts = append(opts, WithAnchor(req.Date))
	}
	ag, ok := h.agendaFor(r, notes, opts...)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing session")
		return
	}
	defer ag.Close()

	ctx := r.Context()
	if err := ag.OpenForm(ctx, req.Date, req.Time); err != nil {
		h.writeAgendaError(w, err)
		return
	}
	for _, set := range []func() error{
		func() error { return ag.SetPatientMode(req.Mode) },
		func() error { return ag.SelectPatient(req.PatientID) },
		func() error { return ag.SetAdHocName(req.Name) },
		func() error { return ag.SetNotes(req.Notes) },
	} {
		if err := set(); err != nil {
			h.writeAgendaError(w, err)
			return
		}
	}
	if err := ag.SubmitForm(ctx); err != nil {
		h.writeAgendaError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"notices": notes,
		"grid":    ag.Grid(),
	})
}

// UpdateStatus changes an appointment's status.
// PATCH /agenda/appointments/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAppointmentID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := appointments.ParseStatus(body.Status)
	if err != nil || body.Status == "" {
		writeJSONError(w, http.StatusBadRequest, "status must be one of pending, confirmed, cancelled, rescheduled")
		return
	}

	ag, ok := h.agendaFor(r, &noticeRecorder{})
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing session")
		return
	}
	defer ag.Close()

	err = h.withDetail(r.Context(), ag, id, func() error {
		if err := ag.SelectStatus(status); err != nil {
			return err
		}
		return ag.SaveStatus(r.Context())
	})
	if err != nil {
		h.writeAgendaError(w, err)
		return
	}
	for _, appt := range ag.Appointments() {
		if appt.ID == id {
			writeJSON(w, http.StatusOK, appt)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAppointment deletes an appointment. The caller must pass
// confirm=true, standing in for the confirmation step.
// DELETE /agenda/appointments/{id}?confirm=true
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAppointmentID(w, r)
	if !ok {
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirmed {
		writeJSONError(w, http.StatusConflict, "confirmation required")
		return
	}

	ag, ok := h.agendaFor(r, &noticeRecorder{})
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing session")
		return
	}
	defer ag.Close()

	err := h.withDetail(r.Context(), ag, id, func() error {
		if err := ag.RequestDelete(); err != nil {
			return err
		}
		return ag.ConfirmDelete(r.Context())
	})
	if err != nil {
		h.writeAgendaError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withDetail(ctx context.Context, ag *Agenda, id int64, fn func() error) error {
	if err := ag.Load(ctx); err != nil {
		return err
	}
	if err := ag.OpenDetail(id); err != nil {
		return err
	}
	return fn()
}

func (h *Handler) writeAgendaError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var apiErr *appointments.APIError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, appointments.ErrUnauthorized), errors.Is(err, session.ErrNoSession):
		writeJSONError(w, http.StatusUnauthorized, appointments.MessageFor(err))
	case errors.Is(err, ErrUnknownAppointment), errors.Is(err, appointments.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrConfirmationRequired), errors.Is(err, ErrBusy):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appointments.ErrInvalidStatus):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError:
		writeJSONError(w, http.StatusBadRequest, apiErr.Message())
	default:
		h.logger.Error("agenda request failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, appointments.MessageFor(err))
	}
}

func parseAppointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
