package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummary aggregates the call records started in a range.
// Dispatch failures are dials the provider never accepted.

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls       int            `json:"total_calls"`
	ByOutcome        map[string]int `json:"by_outcome"`
	DispatchFailures int            `json:"dispatch_failures"`
	LeadsReached     int            `json:"leads_reached"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`

	// ConnectionRate is successful calls over all provider calls.
	ConnectionRate float64 `json:"connection_rate"`
}

// LeadCounters are the campaign-wide lead aggregates.

type LeadCounters struct {
	OpenLeads          int            `json:"open_leads"`
	ClosedLeads        int            `json:"closed_leads"`
	ManualLeads        int            `json:"manual_leads"`
	ClosuresByReason   map[string]int `json:"closures_by_reason"`
	AppointmentsBooked int            `json:"appointments_booked"`
	AvgAttempts        float64        `json:"avg_attempts"`
	MaxAttempts        int            `json:"max_attempts"`
}

// SchedulerStats is the body of GET /v1/stats.

type SchedulerStats struct {
	PendingCalls   int    `json:"pending_calls"`
	ScheduledToday int    `json:"scheduled_today"`
	Slots          string `json:"slots"`
	WorkingNow     bool   `json:"working_now"`

	LeadCounters
}

// ScheduleLine is one row of the schedule export.

type ScheduleLine struct {
	ScheduleID    int64     `json:"schedule_id"`
	LeadID        int64     `json:"lead_id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Clinic        string    `json:"clinic"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	AttemptNumber int       `json:"attempt_number"`
	LastOutcome   string    `json:"last_outcome"`
	Status        string    `json:"status"`
}
