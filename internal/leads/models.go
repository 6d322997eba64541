package leads

import (
	"errors"
	"time"
)

// Lead is one prospect and the aggregate state of the campaign against them.
//
// Invariants:
// - LeadStatus closed implies ClosureReason is set and no pending retry exists.
// - StatusLevel1 "Cita Agendada" implies Cita is set and the lead is closed.
// - ManualManagement leads are never dispatched by automation.
type Lead struct {
	ID        int64  `json:"id" db:"id"`
	Nombre    string `json:"nombre" db:"nombre"`
	Apellidos string `json:"apellidos" db:"apellidos"`

	// Phone and Phone2 hold the 9-digit national number (see NormalizePhone).
	Phone  string `json:"telefono" db:"telefono"`
	Phone2 string `json:"telefono2,omitempty" db:"telefono2"`

	City   string `json:"ciudad,omitempty" db:"ciudad"`
	Clinic string `json:"nombre_clinica,omitempty" db:"nombre_clinica"`

	StatusLevel1  string `json:"status_level_1,omitempty" db:"status_level_1"`
	StatusLevel2  string `json:"status_level_2,omitempty" db:"status_level_2"`
	LeadStatus    Status `json:"lead_status" db:"lead_status"`
	ClosureReason string `json:"closure_reason,omitempty" db:"closure_reason"`

	CallStatus         CallStatus `json:"call_status,omitempty" db:"call_status"`
	CallAttempts       int        `json:"call_attempts_count" db:"call_attempts_count"`
	LastCallAttempt    *time.Time `json:"last_call_attempt,omitempty" db:"last_call_attempt"`
	SelectedForCalling bool       `json:"selected_for_calling" db:"selected_for_calling"`
	ManualManagement   bool       `json:"manual_management" db:"manual_management"`

	// Cita is a calendar date (00:00 UTC); HoraCita is HH:MM:SS.
	Cita     *time.Time `json:"cita,omitempty" db:"cita"`
	HoraCita string     `json:"hora_cita,omitempty" db:"hora_cita"`
	ConPack  *bool      `json:"conPack,omitempty" db:"con_pack"`

	SourceFile            string     `json:"origen_archivo,omitempty" db:"origen_archivo"`
	AppointmentNotifiedAt *time.Time `json:"appointment_notified_at,omitempty" db:"appointment_notified_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

func (l Lead) IsClosed() bool { return l.LeadStatus == StatusClosed }

// FullName joins nombre and apellidos.
func (l Lead) FullName() string {
	switch {
	case l.Apellidos == "":
		return l.Nombre
	case l.Nombre == "":
		return l.Apellidos
	default:
		return l.Nombre + " " + l.Apellidos
	}
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CallStatus mirrors the call_status column enum.
type CallStatus string

const (
	CallStatusNone      CallStatus = ""
	CallStatusSelected  CallStatus = "selected"
	CallStatusCalling   CallStatus = "calling"
	CallStatusCompleted CallStatus = "completed"
	CallStatusBusy      CallStatus = "busy"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusError     CallStatus = "error"
)

// Coarse classification values written to status_level_1.
const (
	LevelAppointment   = "Cita Agendada"
	LevelNotInterested = "No Interesado"
	LevelCallBack      = "Volver a llamar"
	LevelWrongNumber   = "Numero erroneo"
)

// Closure reasons that are not driven by the configurable map.
const (
	ClosureAppointment   = "Cita agendada"
	ClosureNotInterested = "No interesado"
)

var (
	ErrNotFound        = errors.New("leads: not found")
	ErrInvalidArgument = errors.New("leads: invalid argument")
	ErrInvalidPhone    = errors.New("leads: invalid phone")
	ErrDuplicatePhone  = errors.New("leads: duplicate phone")
)
