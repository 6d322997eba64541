package scheduler

import (
	"errors"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
)

// ScheduledCall is one row of call_schedule.
//
// Invariants:
// - At most one pending row per lead.
// - A pending row always points at an open lead.
// - ScheduledAt of a pending row is inside a working slot.
type ScheduledCall struct {
	ID            int64     `json:"id" db:"id"`
	LeadID        int64     `json:"lead_id" db:"lead_id"`
	ScheduledAt   time.Time `json:"scheduled_at" db:"scheduled_at"`
	AttemptNumber int       `json:"attempt_number" db:"attempt_number"`
	LastOutcome   string    `json:"last_outcome,omitempty" db:"last_outcome"`
	Status        Status    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusCancelled
}

// LastOutcomeCallback marks rows created by an explicit call-back request.
const LastOutcomeCallback = "callback_requested"

// DueCall is a pending row joined with its lead.
type DueCall struct {
	ScheduledCall
	Lead leads.Lead `json:"lead"`
}

// Filter narrows List. Zero values mean "any".
type Filter struct {
	Status Status
	LeadID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// Input is one completed call for a lead.
type Input struct {
	LeadID         int64
	Classification outcome.Classification

	// Call is stored before attempts are reconciled. When nil a record with a
	// generated id is written for the lead.
	Call *calls.Record

	// Transient marks a dial that never reached the provider. An Error outcome
	// is then retried like NoAnswer until the budget is spent.
	Transient bool

	// RetryAt replaces the default reschedule delay for retryable outcomes.
	RetryAt *time.Time

	// StatusLevel1 and StatusLevel2 are written verbatim when set. Appointment
	// and refusal transitions fix StatusLevel1 themselves.
	StatusLevel1 string
	StatusLevel2 string
}

// Result reports what Apply did.
type Result struct {
	LeadID   int64          `json:"lead_id"`
	Outcome  string         `json:"outcome"`
	Action   Action         `json:"action"`
	Attempts int            `json:"call_attempts_count"`
	Reason   string         `json:"closure_reason,omitempty"`
	Schedule *ScheduledCall `json:"schedule,omitempty"`
	// Cancelled counts pending rows superseded by this call.
	Cancelled int `json:"cancelled"`
}

var (
	ErrLeadNotFound    = errors.New("scheduler: lead not found")
	ErrNotFound        = errors.New("scheduler: schedule row not found")
	ErrInvalidArgument = errors.New("scheduler: invalid argument")
	ErrLeadClosed      = errors.New("scheduler: lead is closed")
	ErrManualLead      = errors.New("scheduler: lead is manually managed")
)
