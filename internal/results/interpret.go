package results

import (
	"fmt"
	"strings"
	"time"

	"outbound-campaigns/internal/calendar"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
)

// Sub-status texts written to status_level_2.
const (
	SubWithPack      = "Con Pack"
	SubWithoutPack   = "Sin Pack"
	SubScheduled     = "Cita programada"
	SubNoReason      = "No da motivos"
	SubVoicemail     = "buzón"
	SubUnavailable   = "no disponible cliente"
	SubTechnical     = "Interesado. Problema técnico"
	SubCutOff        = "cortado"
	SubWillCallBack  = "Llamará cuando esté interesado"
	codeWillCallBack = "llamara_cuando_este_interesado"
)

var notInterestedCodes = map[string]string{
	"paciente_con_tratamiento":            "Paciente con tratamiento",
	"paciente_tratamiento":                "Paciente con tratamiento",
	"paciente_con_tratamiento_particular": "Paciente con tratamiento particular",
	"paciente_tratamiento_particular":     "Paciente con tratamiento particular",
	"solicitan_baja_poliza":               "Solicitan baja póliza",
	"solicita_baja":                       "Solicita baja póliza",
	"solicita_baja_poliza":                "Solicita baja póliza",
	"no_desea_informar_motivo":            "No desea informar motivo / no colabora",
	"no_colabora":                         "No quiere ser molestado / no colabora",
	"no_quiere_ser_molestado":             "No quiere ser molestado / no colabora",
	"no disponibilidad":                   "no disponibilidad cliente",
	"descontento":                         "Descontento con Adeslas",
	"bajaProxima":                         "Próxima baja",
	"otros":                               SubNoReason,
}

var callBackCodes = map[string]string{
	"buzon":          SubVoicemail,
	"interrupcion":   SubUnavailable,
	"proble tecnico": SubTechnical,
	"proble_tecnico": SubTechnical,
}

var appointmentResults = map[string]bool{
	"cita agendada":   true,
	"citaagendada":    true,
	"cita confirmada": true,
	"citaconfirmada":  true,
}

// Interpretation is what a notification means for the lead.
type Interpretation struct {
	Classification outcome.Classification
	StatusLevel1   string
	StatusLevel2   string
	RetryAt        *time.Time
}

// Interpret maps a notification onto a call outcome. First match wins:
//
//  1. a booked date (nuevaCita, or fechaDeseada with an appointment callResult,
//     a time preference or status_level_1 "Cita Agendada"): success with
//     appointment; status_level_1
//     "Cita Agendada" without a date is rejected with ErrInvalidDate
//  2. the lead will call back on their own: success, lead left open
//  3. a refusal (codigoNoInteres, noInteresado, status_level_1 "No Interesado"):
//     success, not interested
//  4. voicemail, technical problem, explicit call-back request: no_answer
//  5. nothing but the phone: hang_up, "Volver a llamar" / "cortado"
//  6. anything else: success, lead left open
//
// horaRellamada, when parseable and in the future, sets RetryAt.
func Interpret(n Notification, loc *time.Location, now time.Time) (Interpretation, error) {
	var it Interpretation
	c := &it.Classification
	c.CallResult = strings.TrimSpace(n.CallResult)
	c.PreferenceMT = strings.TrimSpace(n.PreferenciaMT)
	c.ConPack = n.ConPack.Ptr()

	if at, ok := parseRetryAt(n.HoraRellamada, loc); ok && at.After(now) {
		it.RetryAt = &at
	}

	code := string(n.CodigoNoInteres)
	level1 := strings.TrimSpace(n.StatusLevel1)

	switch {
	case n.NuevaCita != "" || isAppointmentIntent(n):
		raw := n.NuevaCita
		if raw == "" {
			raw = n.FechaDeseada
		}
		date, err := outcome.ParseDate(raw)
		if err != nil {
			return Interpretation{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
		}
		appt := &outcome.Appointment{Date: date, ConPack: c.ConPack}
		if n.HoraCita != "" {
			if tod, err := calendar.ParseTimeOfDay(n.HoraCita); err == nil {
				appt.Time = &tod
			}
		}
		c.Outcome = outcome.Success
		c.Appointment = appt
		it.StatusLevel1 = leads.LevelAppointment
		switch {
		case c.ConPack == nil:
			it.StatusLevel2 = SubScheduled
		case *c.ConPack:
			it.StatusLevel2 = SubWithPack
		default:
			it.StatusLevel2 = SubWithoutPack
		}

	case strings.EqualFold(level1, leads.LevelAppointment):
		return Interpretation{}, fmt.Errorf("%w: %s without a date", ErrInvalidDate, leads.LevelAppointment)

	case code == codeWillCallBack || bool(n.LlamaraInteresado):
		c.Outcome = outcome.Success
		it.StatusLevel1 = leads.LevelCallBack
		it.StatusLevel2 = SubWillCallBack

	case code != "" || bool(n.NoInteresado) || strings.EqualFold(level1, leads.LevelNotInterested):
		c.Outcome = outcome.Success
		c.NotInterested = true
		it.StatusLevel1 = leads.LevelNotInterested
		it.StatusLevel2 = notInterestedReason(code, n)

	case bool(n.Buzon):
		c.Outcome = outcome.NoAnswer
		it.StatusLevel1 = leads.LevelCallBack
		it.StatusLevel2 = SubVoicemail

	case bool(n.ErrorTecnico):
		c.Outcome = outcome.NoAnswer
		it.StatusLevel1 = leads.LevelCallBack
		it.StatusLevel2 = SubTechnical

	case bool(n.VolverALlamar) || n.CodigoVolverLlamar != "" ||
		strings.EqualFold(level1, leads.LevelCallBack) || it.RetryAt != nil:
		c.Outcome = outcome.NoAnswer
		it.StatusLevel1 = leads.LevelCallBack
		it.StatusLevel2 = callBackCodes[strings.TrimSpace(n.CodigoVolverLlamar)]
		if it.StatusLevel2 == "" {
			it.StatusLevel2 = strings.TrimSpace(n.StatusLevel2)
		}
		if it.StatusLevel2 == "" {
			it.StatusLevel2 = SubUnavailable
		}

	case onlyPhone(n):
		c.Outcome = outcome.HangUp
		it.StatusLevel1 = leads.LevelCallBack
		it.StatusLevel2 = SubCutOff

	default:
		c.Outcome = outcome.Success
		it.StatusLevel1 = level1
		it.StatusLevel2 = strings.TrimSpace(n.StatusLevel2)
	}
	return it, nil
}

func isAppointmentIntent(n Notification) bool {
	if strings.TrimSpace(n.FechaDeseada) == "" {
		return false
	}
	return appointmentResults[strings.ToLower(strings.TrimSpace(n.CallResult))] ||
		strings.TrimSpace(n.PreferenciaMT) != "" ||
		strings.EqualFold(strings.TrimSpace(n.StatusLevel1), leads.LevelAppointment)
}

func notInterestedReason(code string, n Notification) string {
	if r, ok := notInterestedCodes[code]; ok {
		return r
	}
	if r := strings.TrimSpace(n.RazonNoInteres); r != "" {
		return r
	}
	if r := strings.TrimSpace(n.StatusLevel2); r != "" {
		return r
	}
	return SubNoReason
}

func onlyPhone(n Notification) bool {
	return n.StatusLevel1 == "" && n.StatusLevel2 == "" && n.ConPack == nil &&
		n.NuevaCita == "" && n.HoraCita == "" && n.CodigoNoInteres == "" &&
		n.CodigoVolverLlamar == "" && n.RazonNoInteres == "" && n.HoraRellamada == "" &&
		n.CallResult == "" && n.FechaDeseada == "" && n.PreferenciaMT == ""
}

var retryLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{"02/01/2006 15:04:05", false},
	{"02/01/2006 15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"02/01/2006", true},
	{"02-01-2006", true},
	{"2006-01-02", true},
}

// callbackDefaultHour applies to date-only callback requests.
const callbackDefaultHour = 10

func parseRetryAt(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	for _, l := range retryLayouts {
		t, err := time.ParseInLocation(l.layout, s, loc)
		if err != nil {
			continue
		}
		if l.dateOnly {
			t = time.Date(t.Year(), t.Month(), t.Day(), callbackDefaultHour, 0, 0, 0, loc)
		}
		return t, true
	}
	return time.Time{}, false
}
