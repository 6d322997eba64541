package outcome

import (
	"context"
	"strings"

	"outbound-campaigns/pkg/logger"
)

// Outcome is the abstract classification of a completed call.
type Outcome string

const (
	Success      Outcome = "success"
	NoAnswer     Outcome = "no_answer"
	Busy         Outcome = "busy"
	HangUp       Outcome = "hang_up"
	InvalidPhone Outcome = "invalid_phone"
	Error        Outcome = "error"
)

func (o Outcome) Valid() bool {
	switch o {
	case Success, NoAnswer, Busy, HangUp, InvalidPhone, Error:
		return true
	default:
		return false
	}
}

// Retryable outcomes reschedule the lead while the retry budget lasts.
func (o Outcome) Retryable() bool {
	return o == NoAnswer || o == Busy || o == HangUp
}

// Provider status codes with a fixed meaning.
const (
	CodeSuccess  = 4
	CodeBusy     = 5
	CodeFailed   = 6
	CodeNoAnswer = 7
)

var codeOutcomes = map[int]Outcome{
	CodeSuccess:  Success,
	CodeBusy:     Busy,
	CodeFailed:   InvalidPhone,
	CodeNoAnswer: NoAnswer,
}

// IsTerminalCode reports whether the provider has finished with the call.
// Lower codes are queued, ringing or in conversation.
func IsTerminalCode(code int) bool {
	_, ok := codeOutcomes[code]
	return ok
}

// Keyword groups scanned in order against the provider error message.
var keywordGroups = []struct {
	outcome Outcome
	words   []string
}{
	{InvalidPhone, []string{
		"invalid", "inválido", "invalido", "wrong number", "número incorrecto", "numero incorrecto",
		"not a valid", "no válido", "no valido", "unreachable", "inalcanzable",
		"number not found", "número no encontrado", "numero no encontrado",
		"failed to connect", "connection failed", "network error", "error de red",
	}},
	{Busy, []string{"busy", "ocupado", "comunica"}},
	{NoAnswer, []string{"no answer", "no contest", "sin respuesta", "timeout", "timed out", "buzón", "buzon", "voicemail"}},
	{HangUp, []string{"hang up", "hung up", "colg", "disconnect"}},
}

var statusOutcomes = map[string]Outcome{
	"completed": Success,
	"success":   Success,
	"busy":      Busy,
	"no_answer": NoAnswer,
	"timeout":   NoAnswer,
	"rejected":  HangUp,
	"failed":    Error,
	"error":     Error,
}

// Result is the provider response for one call, reduced to the fields the
// classifier understands.
type Result struct {
	StatusCode    int
	Status        string
	ErrorMessage  string
	CollectedInfo []InfoItem
	// Raw is the untouched provider payload, logged when classification is unsure.
	Raw string
}

// Classification is the classifier output.
type Classification struct {
	Outcome       Outcome
	Appointment   *Appointment
	NotInterested bool
	ConPack       *bool
	CallResult    string
	PreferenceMT  string
}

// HasAppointment reports whether the call booked an appointment.
func (c Classification) HasAppointment() bool {
	return c.Outcome == Success && c.Appointment != nil
}

// Classify maps a provider result to an outcome, first match wins:
// status code, error message keywords, status string, then Error.
// Appointment data is only extracted for successful calls.
func Classify(ctx context.Context, r Result) Classification {
	log := logger.From(ctx)

	out := Classification{Outcome: classifyOutcome(r)}
	if out.Outcome == Error && r.StatusCode != 0 && !IsTerminalCode(r.StatusCode) {
		log.Warn("unknown provider status code", "status_code", r.StatusCode, "status", r.Status, "raw", r.Raw)
	}
	if out.Outcome != Success {
		return out
	}

	info := ParseCollectedInfo(r.CollectedInfo)
	out.ConPack = info.ConPack
	out.CallResult = info.CallResult
	out.PreferenceMT = info.PreferenceMT
	out.NotInterested = info.NotInterested

	if info.HasDate {
		appt, err := info.Appointment()
		if err != nil {
			log.Warn("malformed appointment payload", "err", err, "fecha", info.RawDate, "hora", info.RawTime, "raw", r.Raw)
		} else {
			out.Appointment = appt
			out.NotInterested = false
		}
	}
	return out
}

func classifyOutcome(r Result) Outcome {
	if o, ok := codeOutcomes[r.StatusCode]; ok {
		return o
	}
	if msg := strings.ToLower(strings.TrimSpace(r.ErrorMessage)); msg != "" {
		for _, g := range keywordGroups {
			for _, w := range g.words {
				if strings.Contains(msg, w) {
					return g.outcome
				}
			}
		}
	}
	if o, ok := statusOutcomes[strings.ToLower(strings.TrimSpace(r.Status))]; ok {
		return o
	}
	return Error
}
