package calls

import (
	"errors"
	"strings"
	"time"

	"outbound-campaigns/internal/outcome"
)

// Record is the audit row for one attempted call (table pearl_calls).
//
// Invariants:
// - ID is the provider call id, or a "dispatch-" id for calls the provider never accepted.
// - A record is written once; later writes only fill Summary, RecordingURL,
//   EndTime and Duration when they are still empty.
// - A record stored before the provider reported a final code takes the
//   code and outcome of the first write that carries one.
type Record struct {
	ID     string `json:"call_id" db:"call_id"`
	LeadID int64  `json:"lead_id" db:"lead_id"`
	Phone  string `json:"phone_number" db:"phone_number"`

	StartTime       *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty" db:"end_time"`
	DurationSeconds int        `json:"duration,omitempty" db:"duration"`

	// StatusCode is the raw provider code; Outcome is the classifier tag.
	StatusCode int    `json:"status_code" db:"status_code"`
	Outcome    string `json:"outcome" db:"outcome"`

	Summary      string `json:"summary,omitempty" db:"summary"`
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DispatchIDPrefix marks records for dials that failed before the provider
// assigned a call id.
const DispatchIDPrefix = "dispatch-"

// IsDispatchFailure reports whether the record stands for a dial the
// provider never accepted.
func (r Record) IsDispatchFailure() bool { return strings.HasPrefix(r.ID, DispatchIDPrefix) }

// Unresolved reports whether the record was stored as an error while the
// provider was still working on the call, e.g. after the dialer stopped
// waiting. Its real outcome is known once the provider finishes.
func (r Record) Unresolved() bool {
	return !r.IsDispatchFailure() && r.Outcome == string(outcome.Error) && !outcome.IsTerminalCode(r.StatusCode)
}

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Validate checks the fields required to store a record.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" || r.LeadID <= 0 {
		return ErrInvalidArgument
	}
	return nil
}
