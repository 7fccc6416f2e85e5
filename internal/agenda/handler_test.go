package agenda

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/appointments/fakeapi"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

type handlerEnv struct {
	fake   *fakeapi.Server
	router http.Handler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	fake := fakeapi.New(fakeapi.Options{Paginate: true}, logging.Discard())
	fake.AddPatient(appointments.Patient{ID: 1, Name: "Ana Souza"})
	ts := httptest.NewServer(fake.Routes())
	t.Cleanup(ts.Close)

	client := appointments.NewClient(ts.URL, nil, logging.Discard())
	h := NewHandler(client, schedule.DefaultSlotConfig(), logging.Discard(), nil)
	h.now = wednesdayMorning

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Test-Anonymous") != "" {
				next.ServeHTTP(w, r)
				return
			}
			sess := session.New(session.NewMemoryStore(session.Record{Token: "tok", UserID: 3}), logging.Discard())
			next.ServeHTTP(w, r.WithContext(session.WithContext(r.Context(), sess)))
		})
	})
	r.Mount("/agenda", h.Routes())
	return &handlerEnv{fake: fake, router: r}
}

func (e *handlerEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerGetGrid(t *testing.T) {
	env := newHandlerEnv(t)
	env.fake.AddAppointment(appointments.Appointment{Patient: appointments.Registered(1), Date: thursday, Time: tod(9, 0)})

	rec := env.do(t, http.MethodGet, "/agenda?view=weekly&date=2026-10-14", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var grid struct {
		View   string `json:"view"`
		Header string `json:"header"`
		Dates  []string
		Rows   [][]struct {
			Date    string `json:"date"`
			Slot    string `json:"slot"`
			State   string `json:"state"`
			Patient string `json:"patient"`
		} `json:"rows"`
		PrevDisabled bool `json:"prev_disabled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	assert.Equal(t, "weekly", grid.View)
	assert.Equal(t, "12/10 - 18/10", grid.Header)
	assert.True(t, grid.PrevDisabled)
	require.Len(t, grid.Rows, 16)

	nine := grid.Rows[2]
	assert.Equal(t, "09:00", nine[3].Slot)
	assert.Equal(t, "2026-10-15", nine[3].Date)
	assert.Equal(t, "booked", nine[3].State)
	assert.Equal(t, "Ana Souza", nine[3].Patient)
	assert.Equal(t, "closed", nine[5].State)
}

func TestHandlerGetGridBadInput(t *testing.T) {
	env := newHandlerEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/agenda?view=yearly", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/agenda?date=14/10/2026", nil).Code)
}

func TestHandlerRequiresSession(t *testing.T) {
	env := newHandlerEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/agenda", nil)
	req.Header.Set("X-Test-Anonymous", "1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCreateAppointment(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/agenda/appointments", map[string]any{
		"name": "Maria",
		"date": "2026-10-15",
		"time": "09:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	appts := env.fake.Appointments()
	require.Len(t, appts, 1)
	assert.Equal(t, appointments.AdHoc("Maria"), appts[0].Patient)
	assert.Equal(t, int64(3), appts[0].UserID)
	assert.Contains(t, rec.Body.String(), "Appointment booked.")
}

func TestHandlerCreateAppointmentValidation(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/agenda/appointments", map[string]any{
		"patient_id": 1,
		"date":       "2026-10-17",
		"time":       "09:30",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Saturdays or Sundays")

	rec = env.do(t, http.MethodPost, "/agenda/appointments", map[string]any{
		"patient_id": 1,
		"date":       "2026-10-15",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Time is required.")
	assert.Empty(t, env.fake.Appointments())
}

func TestHandlerCreateAppointmentAPIError(t *testing.T) {
	env := newHandlerEnv(t)
	env.fake.AddAppointment(appointments.Appointment{Patient: appointments.Registered(1), Date: thursday, Time: tod(9, 0)})

	rec := env.do(t, http.MethodPost, "/agenda/appointments", map[string]any{
		"patient_id": 1,
		"date":       "2026-10-15",
		"time":       "09:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Já existe uma consulta neste horário.")
}

func TestHandlerUpdateStatus(t *testing.T) {
	env := newHandlerEnv(t)
	appt := env.fake.AddAppointment(appointments.Appointment{Patient: appointments.Registered(1), Date: thursday, Time: tod(9, 0)})

	rec := env.do(t, http.MethodPatch, "/agenda/appointments/"+itoa(appt.ID)+"/status", map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, appointments.StatusConfirmed, env.fake.Appointments()[0].Status)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/agenda/appointments/"+itoa(appt.ID)+"/status", map[string]string{"status": "lost"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/agenda/appointments/999/status", map[string]string{"status": "confirmed"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/agenda/appointments/abc/status", map[string]string{"status": "confirmed"}).Code)
}

func TestHandlerDeleteRequiresConfirmation(t *testing.T) {
	env := newHandlerEnv(t)
	appt := env.fake.AddAppointment(appointments.Appointment{Patient: appointments.Registered(1), Date: thursday, Time: tod(9, 0)})
	target := "/agenda/appointments/" + itoa(appt.ID)

	rec := env.do(t, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, env.fake.Appointments(), 1)

	rec = env.do(t, http.MethodDelete, target+"?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.fake.Appointments())
}

func TestHandlerListPatients(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, http.MethodGet, "/agenda/patients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[{"id_paciente":1,"nome":"Ana Souza"}]}`, rec.Body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
