package results

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
)

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func decode(t *testing.T, body string) Notification {
	t.Helper()
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(body), &n))
	return n
}

func TestInterpret(t *testing.T) {
	loc := madrid(t)
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, loc)

	cases := []struct {
		name    string
		body    string
		outcome outcome.Outcome
		level1  string
		level2  string
	}{
		{"appointment with pack", `{"telefono":"600112233","nuevaCita":"25/10/2025","horaCita":"17:00","conPack":"true"}`,
			outcome.Success, leads.LevelAppointment, SubWithPack},
		{"appointment without pack", `{"telefono":"600112233","nuevaCita":"2025-10-25","conPack":false}`,
			outcome.Success, leads.LevelAppointment, SubWithoutPack},
		{"appointment from level and date", `{"telefono":"600112233","status_level_1":"Cita Agendada","fechaDeseada":"25-10-2025"}`,
			outcome.Success, leads.LevelAppointment, SubScheduled},
		{"appointment from preferences", `{"telefono":"600112233","fechaDeseada":"25-10-2025","preferenciaMT":"MORNING"}`,
			outcome.Success, leads.LevelAppointment, SubScheduled},
		{"refusal code", `{"telefono":"600112233","codigoNoInteres":"descontento"}`,
			outcome.Success, leads.LevelNotInterested, "Descontento con Adeslas"},
		{"refusal code list", `{"telefono":"600112233","codigoNoInteres":["bajaProxima"]}`,
			outcome.Success, leads.LevelNotInterested, "Próxima baja"},
		{"refusal unknown code", `{"telefono":"600112233","codigoNoInteres":"raro"}`,
			outcome.Success, leads.LevelNotInterested, SubNoReason},
		{"refusal by level", `{"telefono":"600112233","status_level_1":"No Interesado","status_level_2":"Ya tiene dentista"}`,
			outcome.Success, leads.LevelNotInterested, "Ya tiene dentista"},
		{"will call back", `{"telefono":"600112233","codigoNoInteres":"llamara_cuando_este_interesado"}`,
			outcome.Success, leads.LevelCallBack, SubWillCallBack},
		{"voicemail", `{"telefono":"600112233","buzon":true}`,
			outcome.NoAnswer, leads.LevelCallBack, SubVoicemail},
		{"technical problem", `{"telefono":"600112233","errorTecnico":1}`,
			outcome.NoAnswer, leads.LevelCallBack, SubTechnical},
		{"call back code", `{"telefono":"600112233","codigoVolverLlamar":"proble_tecnico"}`,
			outcome.NoAnswer, leads.LevelCallBack, SubTechnical},
		{"call back default", `{"telefono":"600112233","volverALlamar":"si"}`,
			outcome.NoAnswer, leads.LevelCallBack, SubUnavailable},
		{"phone only", `{"telefono":"600112233"}`,
			outcome.HangUp, leads.LevelCallBack, SubCutOff},
		{"unrecognised fields", `{"telefono":"600112233","status_level_1":"Otro","status_level_2":"x"}`,
			outcome.Success, "Otro", "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := Interpret(decode(t, tc.body), loc, now)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, it.Classification.Outcome)
			assert.Equal(t, tc.level1, it.StatusLevel1)
			assert.Equal(t, tc.level2, it.StatusLevel2)
		})
	}
}

func TestInterpret_AppointmentFields(t *testing.T) {
	loc := madrid(t)
	it, err := Interpret(decode(t, `{"telefono":"600112233","nuevaCita":"25/10/2025","horaCita":"17:30","conPack":true}`), loc, time.Now())
	require.NoError(t, err)

	c := it.Classification
	require.True(t, c.HasAppointment())
	assert.Equal(t, "2025-10-25", c.Appointment.DateString())
	require.NotNil(t, c.Appointment.Time)
	assert.Equal(t, "17:30:00", c.Appointment.Time.Clock())
	require.NotNil(t, c.ConPack)
	assert.True(t, *c.ConPack)
}

func TestInterpret_InvalidDate(t *testing.T) {
	_, err := Interpret(decode(t, `{"telefono":"600112233","nuevaCita":"mañana"}`), time.UTC, time.Now())
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = Interpret(decode(t, `{"telefono":"600112233","status_level_1":"cita agendada"}`), time.UTC, time.Now())
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestInterpret_RetryAt(t *testing.T) {
	loc := madrid(t)
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, loc)

	it, err := Interpret(decode(t, `{"telefono":"600112233","horaRellamada":"08/10/2025 18:30"}`), loc, now)
	require.NoError(t, err)
	require.NotNil(t, it.RetryAt)
	assert.True(t, it.RetryAt.Equal(time.Date(2025, 10, 8, 18, 30, 0, 0, loc)))
	assert.Equal(t, outcome.NoAnswer, it.Classification.Outcome, "a callback request alone is a call-back")

	it, err = Interpret(decode(t, `{"telefono":"600112233","horaRellamada":"2025-10-09"}`), loc, now)
	require.NoError(t, err)
	require.NotNil(t, it.RetryAt)
	assert.Equal(t, 10, it.RetryAt.Hour())

	it, err = Interpret(decode(t, `{"telefono":"600112233","buzon":true,"horaRellamada":"01/10/2025 10:00"}`), loc, now)
	require.NoError(t, err)
	assert.Nil(t, it.RetryAt, "past callbacks are ignored")
}
