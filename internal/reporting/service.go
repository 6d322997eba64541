package reporting

import (
	"context"
	"errors"
	"io"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/internal/scheduler"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Reads only; reporting never writes campaign state.
// - ListCalls filters on created_at, which is immutable.

type Repository interface {
	ListCalls(ctx context.Context, from, to time.Time) ([]calls.Record, error)
	LeadCounters(ctx context.Context) (LeadCounters, error)
}

// Schedule is the part of the scheduler reporting reads.
type Schedule interface {
	Stats(ctx context.Context) (scheduler.Stats, error)
	List(ctx context.Context, f scheduler.Filter) ([]scheduler.ScheduledCall, error)
}

// LeadGetter resolves schedule rows to lead names for the export.
type LeadGetter interface {
	Get(ctx context.Context, id int64) (leads.Lead, error)
}

type Service struct {
	repo     Repository
	schedule Schedule
	leads    LeadGetter
	loc      *time.Location
}

func NewService(repo Repository, s Schedule, l LeadGetter, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, schedule: s, leads: l, loc: loc}
}

func (s *Service) SchedulerStats(ctx context.Context) (SchedulerStats, error) {
	if s.repo == nil || s.schedule == nil {
		return SchedulerStats{}, errors.New("reporting: repository not configured")
	}
	st, err := s.schedule.Stats(ctx)
	if err != nil {
		return SchedulerStats{}, err
	}
	lc, err := s.repo.LeadCounters(ctx)
	if err != nil {
		return SchedulerStats{}, err
	}
	if lc.ClosuresByReason == nil {
		lc.ClosuresByReason = map[string]int{}
	}
	return SchedulerStats{
		PendingCalls:   st.PendingCount,
		ScheduledToday: st.ScheduledToday,
		Slots:          st.Slots,
		WorkingNow:     st.WorkingNow,
		LeadCounters:   lc,
	}, nil
}

func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if !r.Valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, ByOutcome: map[string]int{}}
	reached := map[int64]bool{}
	providerCalls, connected := 0, 0
	for _, c := range rows {
		out.TotalCalls++
		out.ByOutcome[c.Outcome]++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.IsDispatchFailure() {
			out.DispatchFailures++
			continue
		}
		providerCalls++
		if c.Outcome == string(outcome.Success) {
			connected++
			reached[c.LeadID] = true
		}
	}
	out.LeadsReached = len(reached)
	if providerCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / providerCalls
		out.ConnectionRate = float64(connected) / float64(providerCalls)
	}
	return out, nil
}

// ScheduleLines joins schedule rows with their leads. Rows of deleted leads
// keep empty name fields.
func (s *Service) ScheduleLines(ctx context.Context, f scheduler.Filter) ([]ScheduleLine, error) {
	if s.schedule == nil {
		return nil, errors.New("reporting: schedule not configured")
	}
	rows, err := s.schedule.List(ctx, f)
	if err != nil {
		return nil, err
	}
	cache := map[int64]leads.Lead{}
	out := make([]ScheduleLine, 0, len(rows))
	for _, r := range rows {
		line := ScheduleLine{
			ScheduleID:    r.ID,
			LeadID:        r.LeadID,
			ScheduledAt:   r.ScheduledAt.In(s.loc),
			AttemptNumber: r.AttemptNumber,
			LastOutcome:   r.LastOutcome,
			Status:        string(r.Status),
		}
		if s.leads != nil {
			l, ok := cache[r.LeadID]
			if !ok {
				got, err := s.leads.Get(ctx, r.LeadID)
				switch {
				case err == nil:
					l = got
				case !errors.Is(err, leads.ErrNotFound):
					return nil, err
				}
				cache[r.LeadID] = l
			}
			line.Name = l.FullName()
			line.Phone = l.Phone
			line.Clinic = l.Clinic
		}
		out = append(out, line)
	}
	return out, nil
}

// ExportSchedule writes the filtered schedule as an .xlsx workbook.
func (s *Service) ExportSchedule(ctx context.Context, f scheduler.Filter, w io.Writer) (int, error) {
	lines, err := s.ScheduleLines(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := WriteScheduleXLSX(w, lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}
