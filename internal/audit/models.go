package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block campaign flows on audit failures.
//
// Storage (Postgres): table audit_events, INSERT-only.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP (gin ClientIP).
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target is the config key, or the lead ids touched, depending on Type.
	Target string `json:"target,omitempty" db:"target"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeConfigChange EventType = "config_change"
	EventTypeDispatcher   EventType = "dispatcher_control"
	EventTypeLeadFlags    EventType = "lead_flags"
	EventTypeManualCall   EventType = "manual_call"
	EventTypeCallback     EventType = "lead_callback"
)

// Actor identifies who did something.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
