package fakeapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }
func (s staticToken) Expire(context.Context) error          { return nil }

func newFake(t *testing.T, opts Options, token string) (*Server, *appointments.Client) {
	t.Helper()
	srv := New(opts, logging.Discard())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, appointments.NewClient(ts.URL, staticToken(token), logging.Discard())
}

func TestFakeAPI_CreateAndList(t *testing.T) {
	srv, client := newFake(t, Options{Paginate: true, EmbedPatients: true}, "any")
	srv.AddPatient(appointments.Patient{ID: 1, Name: "Ana"})
	ctx := context.Background()
	day := appointments.NewDate(2026, time.October, 20)

	created, err := client.CreateAppointment(ctx, appointments.CreateRequest{
		Patient: appointments.Registered(1),
		Date:    day,
		Time:    appointments.NewTimeOfDay(9, 0),
		UserID:  7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", created.PatientName)

	_, err = client.CreateAppointment(ctx, appointments.CreateRequest{
		Patient: appointments.AdHoc("Walk In"),
		Date:    day.AddDays(1),
		Time:    appointments.NewTimeOfDay(9, 0),
		UserID:  7,
	})
	require.NoError(t, err)

	all, err := client.ListAppointments(ctx, appointments.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := client.ListAppointments(ctx, appointments.ListFilter{Date: &day})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, created.ID, filtered[0].ID)
}

func TestFakeAPI_RejectsConflictAndUnknownPatient(t *testing.T) {
	srv, client := newFake(t, Options{}, "any")
	srv.AddPatient(appointments.Patient{ID: 1, Name: "Ana"})
	ctx := context.Background()
	req := appointments.CreateRequest{
		Patient: appointments.Registered(1),
		Date:    appointments.NewDate(2026, time.October, 20),
		Time:    appointments.NewTimeOfDay(9, 0),
		UserID:  1,
	}
	_, err := client.CreateAppointment(ctx, req)
	require.NoError(t, err)

	_, err = client.CreateAppointment(ctx, req)
	require.Error(t, err)
	assert.Equal(t, "Já existe uma consulta neste horário.", appointments.MessageFor(err))

	req.Patient = appointments.Registered(99)
	req.Time = appointments.NewTimeOfDay(10, 0)
	_, err = client.CreateAppointment(ctx, req)
	require.Error(t, err)
	assert.Equal(t, `paciente: Invalid pk "99" - object does not exist.`, appointments.MessageFor(err))
}

func TestFakeAPI_StatusAndDelete(t *testing.T) {
	srv, client := newFake(t, Options{}, "any")
	appt := srv.AddAppointment(appointments.Appointment{
		Patient: appointments.AdHoc("Maria"),
		Date:    appointments.NewDate(2026, time.October, 20),
		Time:    appointments.NewTimeOfDay(14, 0),
	})
	ctx := context.Background()

	updated, err := client.UpdateStatus(ctx, appt.ID, appointments.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusConfirmed, updated.Status)

	require.NoError(t, client.DeleteAppointment(ctx, appt.ID))
	assert.Empty(t, srv.Appointments())

	err = client.DeleteAppointment(ctx, appt.ID)
	require.ErrorIs(t, err, appointments.ErrNotFound)
}

func TestFakeAPI_RequiresSignedToken(t *testing.T) {
	_, client := newFake(t, Options{Secret: "s3cret"}, "garbage")
	_, err := client.ListPatients(context.Background())
	require.ErrorIs(t, err, appointments.ErrUnauthorized)

	token, err := IssueToken("s3cret", 4, time.Hour)
	require.NoError(t, err)
	_, signed := newFake(t, Options{Secret: "s3cret"}, token)
	_, err = signed.ListPatients(context.Background())
	require.NoError(t, err)
}

func TestFakeAPI_MissingBearer(t *testing.T) {
	srv := New(Options{}, logging.Discard())
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pacientes/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken("", 1, time.Hour)
	require.Error(t, err)
}
