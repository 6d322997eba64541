package reporting

import (
	"context"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
)

// MemoryRepo reads from the in-memory lead and call repositories.

type MemoryRepo struct {
	Leads *leads.MemoryRepo
	Calls *calls.MemoryRepo
}

func NewMemoryRepo(l *leads.MemoryRepo, c *calls.MemoryRepo) *MemoryRepo {
	return &MemoryRepo{Leads: l, Calls: c}
}

func (r *MemoryRepo) ListCalls(ctx context.Context, from, to time.Time) ([]calls.Record, error) {
	return r.Calls.ListRange(ctx, from, to)
}

func (r *MemoryRepo) LeadCounters(ctx context.Context) (LeadCounters, error) {
	out := LeadCounters{ClosuresByReason: map[string]int{}}
	total, n := 0, 0
	for _, l := range r.Leads.All() {
		n++
		total += l.CallAttempts
		if l.CallAttempts > out.MaxAttempts {
			out.MaxAttempts = l.CallAttempts
		}
		if l.ManualManagement {
			out.ManualLeads++
		}
		if l.StatusLevel1 == leads.LevelAppointment {
			out.AppointmentsBooked++
		}
		if l.IsClosed() {
			out.ClosedLeads++
			if l.ClosureReason != "" {
				out.ClosuresByReason[l.ClosureReason]++
			}
			continue
		}
		out.OpenLeads++
	}
	if n > 0 {
		out.AvgAttempts = float64(total) / float64(n)
	}
	return out, nil
}
