package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/settings"
	"outbound-campaigns/pkg/logger"
	"outbound-campaigns/pkg/metrics"
)

// Service owns every write to call_schedule and the campaign fields of leads.
//
// It keeps no state between calls: configuration is read from the settings
// store on every operation.
type Service struct {
	store    Store
	settings settings.Store
	loc      *time.Location
	metrics  *metrics.Metrics
	clock    func() time.Time
}

func NewService(store Store, cfg settings.Store, loc *time.Location, m *metrics.Metrics) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, settings: cfg, loc: loc, metrics: m, clock: time.Now}
}

func (s *Service) now() time.Time { return s.clock().In(s.loc) }

// SetClock replaces the time source.
func (s *Service) SetClock(fn func() time.Time) {
	if fn != nil {
		s.clock = fn
	}
}

// Snapshot loads the current configuration.
func (s *Service) Snapshot(ctx context.Context) settings.Snapshot {
	return settings.Load(ctx, s.settings, logger.From(ctx))
}

// Apply commits the result of one completed call:
// store the call record, reconcile attempts, cancel pending rows, apply
// Decide, write the lead and insert the optional retry. A missing lead is a
// logged no-op. Manually managed and closed leads keep their state apart
// from the attempt counter; stray pending rows of a closed lead are
// cancelled.
func (s *Service) Apply(ctx context.Context, in Input) (Result, error) {
	log := logger.From(ctx).With("lead_id", in.LeadID, "outcome", string(in.Classification.Outcome))
	if in.LeadID <= 0 || !in.Classification.Outcome.Valid() {
		return Result{}, ErrInvalidArgument
	}

	snap := s.Snapshot(ctx)
	cal := snap.Calendar(s.loc)
	now := s.now()

	res := Result{LeadID: in.LeadID, Outcome: string(in.Classification.Outcome)}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		res = Result{LeadID: in.LeadID, Outcome: string(in.Classification.Outcome)}

		lead, err := tx.LockLead(ctx, in.LeadID)
		if err != nil {
			return err
		}

		rec := s.callRecord(in, lead, now)
		created, err := tx.RecordCall(ctx, rec)
		if err != nil {
			return fmt.Errorf("record call %s: %w", rec.ID, err)
		}
		count, err := tx.CountCalls(ctx, lead.ID)
		if err != nil {
			return fmt.Errorf("count calls: %w", err)
		}
		attempts := reconcileAttempts(lead.CallAttempts, count, created)

		if lead.ManualManagement || lead.IsClosed() {
			// only the counter follows the call history
			res.Action = ActionSkip
			res.Reason = lead.ClosureReason
			if lead.IsClosed() {
				if res.Cancelled, err = tx.CancelPending(ctx, lead.ID, now); err != nil {
					return fmt.Errorf("cancel pending: %w", err)
				}
			}
			if attempts != lead.CallAttempts {
				lead.CallAttempts = attempts
				if err := tx.UpdateLead(ctx, lead, now); err != nil {
					return fmt.Errorf("update lead: %w", err)
				}
			}
			res.Attempts = lead.CallAttempts
			return nil
		}

		cancelled, err := tx.CancelPending(ctx, lead.ID, now)
		if err != nil {
			return fmt.Errorf("cancel pending: %w", err)
		}
		res.Cancelled = cancelled

		lead.CallAttempts = attempts
		lead.LastCallAttempt = &now

		tr := Decide(lead, in, snap, cal, now)
		if err := tx.UpdateLead(ctx, tr.Lead, now); err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
		if tr.Retry != nil {
			id, err := tx.InsertSchedule(ctx, *tr.Retry)
			if err != nil {
				return fmt.Errorf("insert schedule: %w", err)
			}
			row := *tr.Retry
			row.ID = id
			row.CreatedAt = now
			row.UpdatedAt = now
			res.Schedule = &row
		}
		res.Action = tr.Action
		res.Attempts = tr.Lead.CallAttempts
		res.Reason = tr.Reason
		return nil
	})
	if errors.Is(err, leads.ErrNotFound) {
		log.Warn("scheduler invoked for unknown lead")
		return Result{LeadID: in.LeadID, Outcome: res.Outcome, Action: ActionSkip}, nil
	}
	if err != nil {
		log.Error("scheduler transaction failed", "err", err)
		return Result{}, err
	}

	s.metrics.RecordTransition(res.Outcome, string(res.Action))
	switch res.Action {
	case ActionRetry:
		log.Info("lead rescheduled",
			"attempts", res.Attempts,
			"max_attempts", snap.MaxAttempts,
			"scheduled_at", res.Schedule.ScheduledAt,
			"attempt_number", res.Schedule.AttemptNumber,
			"cancelled", res.Cancelled,
		)
	case ActionClose:
		log.Info("lead closed", "attempts", res.Attempts, "closure_reason", res.Reason, "cancelled", res.Cancelled)
	case ActionSkip:
		log.Info("lead not updated", "closure_reason", res.Reason, "cancelled", res.Cancelled)
	default:
		log.Info("call completed, lead left open", "attempts", res.Attempts, "cancelled", res.Cancelled)
	}
	return res, nil
}

// reconcileAttempts counts the call being applied exactly once. Replaying a
// call already stored keeps the counter, and audit rows missing from legacy
// data never lower it.
func reconcileAttempts(previous, recorded int, created bool) int {
	n := previous
	if created {
		n++
	}
	if recorded > n {
		n = recorded
	}
	return n
}

func (s *Service) callRecord(in Input, lead leads.Lead, now time.Time) calls.Record {
	var rec calls.Record
	if in.Call != nil {
		rec = *in.Call
	}
	if rec.ID == "" {
		rec.ID = "result-" + uuid.NewString()
	}
	rec.LeadID = lead.ID
	if rec.Phone == "" {
		rec.Phone = lead.Phone
	}
	if rec.Outcome == "" {
		rec.Outcome = string(in.Classification.Outcome)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	return rec
}

// BeginCall runs when any call to the lead starts, manual or automatic. It
// cancels pending retries and marks the lead as calling. Closed and manually
// managed leads are refused unless manual is true; a manual call on a
// manually managed lead is allowed.
func (s *Service) BeginCall(ctx context.Context, leadID int64, manual bool) (leads.Lead, error) {
	return s.begin(ctx, leadID, 0, manual)
}

// BeginScheduledCall consumes the pending row rowID and starts the call in
// the same transaction. A row that is no longer pending yields ErrNotFound
// and leaves the lead untouched; any failure keeps the row pending.
func (s *Service) BeginScheduledCall(ctx context.Context, rowID, leadID int64) (leads.Lead, error) {
	if rowID <= 0 {
		return leads.Lead{}, ErrInvalidArgument
	}
	return s.begin(ctx, leadID, rowID, false)
}

func (s *Service) begin(ctx context.Context, leadID, rowID int64, manual bool) (leads.Lead, error) {
	now := s.now()
	var (
		out    leads.Lead
		closed bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		lead, err := tx.LockLead(ctx, leadID)
		if err != nil {
			return err
		}
		if lead.IsClosed() {
			// repair stray rows but keep the commit
			closed = true
			_, err := tx.CancelPending(ctx, lead.ID, now)
			return err
		}
		if lead.ManualManagement && !manual {
			return ErrManualLead
		}
		if rowID > 0 {
			if err := tx.CompleteSchedule(ctx, rowID, lead.ID, now); err != nil {
				return err
			}
		}
		n, err := tx.CancelPending(ctx, lead.ID, now)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.From(ctx).Info("pending retries cancelled by new call", "lead_id", lead.ID, "cancelled", n)
		}
		lead.CallStatus = leads.CallStatusCalling
		lead.SelectedForCalling = false
		if err := tx.UpdateLead(ctx, lead, now); err != nil {
			return err
		}
		out = lead
		return nil
	})
	if errors.Is(err, leads.ErrNotFound) {
		return leads.Lead{}, ErrLeadNotFound
	}
	if err == nil && closed {
		return leads.Lead{}, ErrLeadClosed
	}
	return out, err
}

// ScheduleCallback replaces any pending retry with one at NextWorking(at).
// The attempt counter is not touched.
func (s *Service) ScheduleCallback(ctx context.Context, leadID int64, at time.Time) (ScheduledCall, error) {
	cal := s.Snapshot(ctx).Calendar(s.loc)
	now := s.now()
	if at.Before(now) {
		at = now
	}

	var row ScheduledCall
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		lead, err := tx.LockLead(ctx, leadID)
		if err != nil {
			return err
		}
		if lead.IsClosed() {
			return ErrLeadClosed
		}
		if lead.ManualManagement {
			return ErrManualLead
		}
		if _, err := tx.CancelPending(ctx, lead.ID, now); err != nil {
			return err
		}
		row = ScheduledCall{
			LeadID:        lead.ID,
			ScheduledAt:   cal.NextWorking(at),
			AttemptNumber: lead.CallAttempts + 1,
			LastOutcome:   LastOutcomeCallback,
			Status:        StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		id, err := tx.InsertSchedule(ctx, row)
		if err != nil {
			return err
		}
		row.ID = id
		return nil
	})
	if errors.Is(err, leads.ErrNotFound) {
		return ScheduledCall{}, ErrLeadNotFound
	}
	if err == nil {
		logger.From(ctx).Info("callback scheduled", "lead_id", leadID, "scheduled_at", row.ScheduledAt)
	}
	return row, err
}

// CancelForLead cancels every pending row of a lead, e.g. when it moves to
// manual management.
func (s *Service) CancelForLead(ctx context.Context, leadID int64) (int, error) {
	now := s.now()
	var n int
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockLead(ctx, leadID); err != nil {
			return err
		}
		var err error
		n, err = tx.CancelPending(ctx, leadID, now)
		return err
	})
	if errors.Is(err, leads.ErrNotFound) {
		return 0, ErrLeadNotFound
	}
	return n, err
}

func (s *Service) Due(ctx context.Context, limit int) ([]DueCall, error) {
	if limit <= 0 {
		limit = s.Snapshot(ctx).MaxCallsPerCycle
	}
	return s.store.Due(ctx, s.now(), limit)
}

func (s *Service) List(ctx context.Context, f Filter) ([]ScheduledCall, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidArgument
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.List(ctx, f)
}

// PurgeCancelled deletes cancelled rows older than age.
func (s *Service) PurgeCancelled(ctx context.Context, age time.Duration) (int, error) {
	return s.store.PurgeCancelled(ctx, s.now().Add(-age))
}

// Stats are the counters of the dispatcher status record.
type Stats struct {
	PendingCount   int    `json:"pending_count"`
	ScheduledToday int    `json:"scheduled_today_count"`
	Slots          string `json:"slots"`
	WorkingNow     bool   `json:"working_now"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	cal := s.Snapshot(ctx).Calendar(s.loc)
	now := s.now()

	pending, err := s.store.CountPending(ctx)
	if err != nil {
		return Stats{}, err
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	today, err := s.store.CountPendingBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		PendingCount:   pending,
		ScheduledToday: today,
		Slots:          cal.Describe(),
		WorkingNow:     cal.IsWorking(now),
	}, nil
}
