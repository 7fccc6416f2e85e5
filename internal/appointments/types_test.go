package appointments

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentUnmarshal_PatientShapes(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantRef  PatientRef
		wantName string
	}{
		{
			name:    "registered id",
			payload: `{"id_consulta":1,"paciente":7,"nome_paciente_temp":null,"data_consulta":"2026-10-15","horario_consulta":"09:00:00","status":"confirmado"}`,
			wantRef: Registered(7),
		},
		{
			name:     "embedded patient",
			payload:  `{"id_consulta":2,"paciente":{"id_paciente":8,"nome":"Ana Souza"},"data_consulta":"2026-10-15","horario_consulta":"09:30","status":"pendente"}`,
			wantRef:  Registered(8),
			wantName: "Ana Souza",
		},
		{
			name:    "ad-hoc name",
			payload: `{"id_consulta":3,"paciente":null,"nome_paciente_temp":"  Walk In ","data_consulta":"2026-10-15","horario_consulta":"10:00","status":"pendente"}`,
			wantRef: AdHoc("Walk In"),
		},
		{
			name:    "nobody",
			payload: `{"id_consulta":4,"paciente":null,"nome_paciente_temp":"","data_consulta":"2026-10-15","horario_consulta":"10:00"}`,
			wantRef: PatientRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appt Appointment
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &appt))
			assert.Equal(t, tt.wantRef, appt.Patient)
			assert.Equal(t, tt.wantName, appt.PatientName)
			assert.True(t, appt.Schedulable())
		})
	}
}

func TestAppointmentUnmarshal_Fields(t *testing.T) {
	var appt Appointment
	payload := `{"id_consulta":9,"paciente":3,"data_consulta":"2026-10-16","horario_consulta":"14:30:00","status":"reagendado","observacoes":"bring x-ray","usuario":5}`
	require.NoError(t, json.Unmarshal([]byte(payload), &appt))

	assert.Equal(t, int64(9), appt.ID)
	assert.Equal(t, NewDate(2026, time.October, 16), appt.Date)
	assert.Equal(t, NewTimeOfDay(14, 30), appt.Time)
	assert.Equal(t, StatusRescheduled, appt.Status)
	assert.Equal(t, "bring x-ray", appt.Notes)
	assert.Equal(t, int64(5), appt.UserID)
}

func TestAppointmentUnmarshal_BadDateIsUnschedulable(t *testing.T) {
	var appt Appointment
	payload := `{"id_consulta":1,"paciente":1,"data_consulta":"not-a-date","horario_consulta":"25:99","status":"???"}`
	require.NoError(t, json.Unmarshal([]byte(payload), &appt))

	assert.False(t, appt.Schedulable())
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, "--:--", appt.Time.String())
}

func TestAppointmentMarshal_AdHoc(t *testing.T) {
	appt := Appointment{
		ID:      12,
		Patient: AdHoc("Maria"),
		Date:    NewDate(2026, time.October, 19),
		Time:    NewTimeOfDay(8, 0),
		Status:  StatusConfirmed,
	}
	raw, err := json.Marshal(appt)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Nil(t, doc["paciente"])
	assert.Equal(t, "Maria", doc["nome_paciente_temp"])
	assert.Equal(t, "2026-10-19", doc["data_consulta"])
	assert.Equal(t, "08:00", doc["horario_consulta"])
	assert.Equal(t, "confirmado", doc["status"])
	assert.Nil(t, doc["observacoes"])
}

func TestCreateRequestMarshal(t *testing.T) {
	t.Run("registered sends id only", func(t *testing.T) {
		raw, err := json.Marshal(CreateRequest{
			Patient: Registered(4),
			Date:    NewDate(2026, time.October, 20),
			Time:    NewTimeOfDay(9, 30),
			Notes:   "  ",
			UserID:  2,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"paciente":4,"nome_paciente_temp":null,"data_consulta":"2026-10-20","horario_consulta":"09:30","observacoes":null,"usuario":2}`, string(raw))
	})

	t.Run("ad-hoc sends name only", func(t *testing.T) {
		raw, err := json.Marshal(CreateRequest{
			Patient: AdHoc("João"),
			Date:    NewDate(2026, time.October, 20),
			Time:    NewTimeOfDay(9, 30),
			Notes:   "first visit",
			UserID:  2,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"paciente":null,"nome_paciente_temp":"João","data_consulta":"2026-10-20","horario_consulta":"09:30","observacoes":"first visit","usuario":2}`, string(raw))
	})

	t.Run("no patient", func(t *testing.T) {
		_, err := json.Marshal(CreateRequest{Date: NewDate(2026, time.October, 20)})
		require.ErrorIs(t, err, ErrMissingPatient)
	})
}

func TestCreateRequestUnmarshal_Ambiguous(t *testing.T) {
	var req CreateRequest
	err := json.Unmarshal([]byte(`{"paciente":1,"nome_paciente_temp":"Both","data_consulta":"2026-10-20","horario_consulta":"09:00","usuario":1}`), &req)
	require.ErrorIs(t, err, ErrAmbiguousPatient)
}

func TestParseStatus(t *testing.T) {
	for input, want := range map[string]Status{
		"pendente":  StatusPending,
		"Confirmed": StatusConfirmed,
		"cancelado": StatusCancelled,
		"":          StatusPending,
	} {
		got, err := ParseStatus(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseStatus("archived")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDecodeList(t *testing.T) {
	bare, err := decodeList[Patient]([]byte(`[{"id_paciente":1,"nome":"A"}]`))
	require.NoError(t, err)
	assert.Equal(t, []Patient{{ID: 1, Name: "A"}}, bare)

	paged, err := decodeList[Patient]([]byte(`{"count":1,"next":null,"results":[{"id_paciente":2,"nome":"B"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []Patient{{ID: 2, Name: "B"}}, paged)

	empty, err := decodeList[Patient]([]byte(``))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = decodeList[Patient]([]byte(`{"detail":"nope"}`))
	require.ErrorIs(t, err, ErrUnexpectedPayload)
}
