package scheduler

import (
	"strings"
	"time"

	"outbound-campaigns/internal/calendar"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/internal/settings"
)

// Action is the kind of transition a call produced.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionClose    Action = "close"
	ActionComplete Action = "complete"
	ActionSkip     Action = "skip"
)

// ClosureWrongNumber is stored when the classifier could not make sense of
// the call at all.
const ClosureWrongNumber = "Teléfono erróneo"

// Transition is the outcome of Decide: the new lead state and, for retries,
// the row to insert.
type Transition struct {
	Lead   leads.Lead
	Action Action
	Reason string
	Retry  *ScheduledCall
}

// Decide applies one call outcome to a lead snapshot. lead.CallAttempts must
// already count the call being applied. Decide is pure; Service.Apply commits
// its result.
func Decide(lead leads.Lead, in Input, snap settings.Snapshot, cal calendar.Calendar, now time.Time) Transition {
	c := in.Classification
	l := lead
	if in.StatusLevel1 != "" && !closingLevel(in.StatusLevel1) {
		l.StatusLevel1 = in.StatusLevel1
	}
	if in.StatusLevel2 != "" {
		l.StatusLevel2 = in.StatusLevel2
	}
	if c.ConPack != nil {
		l.ConPack = c.ConPack
	}
	l.CallStatus = callStatusFor(c.Outcome)

	switch {
	case c.HasAppointment():
		appt := c.Appointment
		date := appt.Date
		l.StatusLevel1 = leads.LevelAppointment
		l.Cita = &date
		l.HoraCita = ""
		if appt.Time != nil {
			l.HoraCita = appt.Time.Clock()
		}
		if appt.ConPack != nil {
			l.ConPack = appt.ConPack
		}
		return closeLead(l, leads.ClosureAppointment)

	case c.Outcome == outcome.Success && c.NotInterested:
		l.StatusLevel1 = leads.LevelNotInterested
		return closeLead(l, leads.ClosureNotInterested)

	case c.Outcome == outcome.Success:
		return Transition{Lead: l, Action: ActionComplete}

	case c.Outcome == outcome.InvalidPhone:
		return closeLead(l, snap.ClosureReason(string(outcome.InvalidPhone)))

	case c.Outcome == outcome.Error && !in.Transient:
		return closeLead(l, ClosureWrongNumber)
	}

	// no_answer, busy, hang_up, or a dial that never reached the provider.
	if l.CallAttempts >= snap.MaxAttempts {
		return closeLead(l, snap.ClosureReason(string(c.Outcome)))
	}

	target := now.Add(snap.RescheduleDelay())
	lastOutcome := string(c.Outcome)
	if in.RetryAt != nil {
		target = *in.RetryAt
		lastOutcome = LastOutcomeCallback
	}
	return Transition{
		Lead:   l,
		Action: ActionRetry,
		Retry: &ScheduledCall{
			LeadID:        l.ID,
			ScheduledAt:   cal.NextWorking(target),
			AttemptNumber: l.CallAttempts + 1,
			LastOutcome:   lastOutcome,
			Status:        StatusPending,
		},
	}
}

// closingLevel reports the statuses only a closing transition may write.
func closingLevel(level string) bool {
	return strings.EqualFold(level, leads.LevelAppointment) || strings.EqualFold(level, leads.LevelNotInterested)
}

func closeLead(l leads.Lead, reason string) Transition {
	l.LeadStatus = leads.StatusClosed
	l.ClosureReason = reason
	l.SelectedForCalling = false
	return Transition{Lead: l, Action: ActionClose, Reason: reason}
}

func callStatusFor(o outcome.Outcome) leads.CallStatus {
	switch o {
	case outcome.Success, outcome.HangUp:
		return leads.CallStatusCompleted
	case outcome.Busy:
		return leads.CallStatusBusy
	case outcome.NoAnswer:
		return leads.CallStatusNoAnswer
	default:
		return leads.CallStatusError
	}
}
