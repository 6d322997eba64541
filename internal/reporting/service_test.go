package reporting

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/settings"
)

type fixture struct {
	svc   *Service
	store *scheduler.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2025, 10, 6, 11, 0, 0, 0, time.UTC)
	store := scheduler.NewMemoryStore(nil, nil)
	sched := scheduler.NewService(store, settings.NewMemoryStore(nil), time.UTC, nil)
	sched.SetClock(func() time.Time { return now })
	svc := NewService(NewMemoryRepo(store.Leads, store.Calls), sched, store.Leads, time.UTC)
	return &fixture{svc: svc, store: store, now: now}
}

func TestReporting_CallsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, rec := range []calls.Record{
		{ID: "c1", LeadID: 1, Outcome: "success", DurationSeconds: 90, RecordingURL: "https://rec/1", CreatedAt: f.now},
		{ID: "c2", LeadID: 2, Outcome: "no_answer", DurationSeconds: 30, CreatedAt: f.now},
		{ID: "dispatch-x", LeadID: 3, Outcome: "error", CreatedAt: f.now},
		{ID: "c4", LeadID: 4, Outcome: "success", CreatedAt: f.now.Add(-48 * time.Hour)},
	} {
		if _, err := f.store.Calls.Upsert(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	out, err := f.svc.CallsSummary(ctx, TimeRange{From: f.now.Add(-time.Hour), To: f.now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 {
		t.Fatalf("expected 3 calls, got %d", out.TotalCalls)
	}
	if out.ByOutcome["success"] != 1 || out.ByOutcome["no_answer"] != 1 || out.ByOutcome["error"] != 1 {
		t.Fatalf("unexpected outcome counts: %+v", out.ByOutcome)
	}
	if out.DispatchFailures != 1 || out.RecordedCalls != 1 || out.LeadsReached != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.AverageDurationSeconds != 60 {
		t.Fatalf("expected average 60s, got %d", out.AverageDurationSeconds)
	}
	if out.ConnectionRate != 0.5 {
		t.Fatalf("expected connection rate 0.5, got %v", out.ConnectionRate)
	}

	if _, err := f.svc.CallsSummary(ctx, TimeRange{From: f.now, To: f.now}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestReporting_SchedulerStats(t *testing.T) {
	f := newFixture(t)
	a := f.store.Leads.Put(leads.Lead{Phone: "600000001", CallAttempts: 2})
	f.store.Leads.Put(leads.Lead{Phone: "600000002", CallAttempts: 6, LeadStatus: leads.StatusClosed, ClosureReason: "Ilocalizable"})
	f.store.Leads.Put(leads.Lead{Phone: "600000003", CallAttempts: 1, LeadStatus: leads.StatusClosed,
		ClosureReason: leads.ClosureAppointment, StatusLevel1: leads.LevelAppointment})
	f.store.Leads.Put(leads.Lead{Phone: "600000004", CallAttempts: 3, ManualManagement: true})

	f.store.Seed(scheduler.ScheduledCall{LeadID: a.ID, ScheduledAt: f.now.Add(2 * time.Hour), AttemptNumber: 3, Status: scheduler.StatusPending})

	st, err := f.svc.SchedulerStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.PendingCalls != 1 || st.ScheduledToday != 1 {
		t.Fatalf("unexpected schedule counters: %+v", st)
	}
	if st.OpenLeads != 2 || st.ClosedLeads != 2 || st.ManualLeads != 1 || st.AppointmentsBooked != 1 {
		t.Fatalf("unexpected lead counters: %+v", st.LeadCounters)
	}
	if st.ClosuresByReason["Ilocalizable"] != 1 || st.ClosuresByReason[leads.ClosureAppointment] != 1 {
		t.Fatalf("unexpected closures: %+v", st.ClosuresByReason)
	}
	if st.MaxAttempts != 6 || st.AvgAttempts != 3 {
		t.Fatalf("unexpected attempts: avg=%v max=%d", st.AvgAttempts, st.MaxAttempts)
	}
}

func TestReporting_ExportSchedule(t *testing.T) {
	f := newFixture(t)
	l := f.store.Leads.Put(leads.Lead{Nombre: "Ana", Apellidos: "Ruiz", Phone: "600112233", Clinic: "Centro"})
	f.store.Seed(scheduler.ScheduledCall{LeadID: l.ID, ScheduledAt: time.Date(2025, 10, 7, 12, 30, 0, 0, time.UTC),
		AttemptNumber: 2, LastOutcome: "no_answer", Status: scheduler.StatusPending})
	f.store.Seed(scheduler.ScheduledCall{LeadID: 99, ScheduledAt: f.now, AttemptNumber: 1, Status: scheduler.StatusCancelled})

	var buf bytes.Buffer
	n, err := f.svc.ExportSchedule(context.Background(), scheduler.Filter{Status: scheduler.StatusPending}, &buf)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 exported row, got %d", n)
	}

	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows(scheduleSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(rows))
	}
	got := rows[1]
	if got[2] != "Ana Ruiz" || got[3] != "600112233" || got[5] != "07/10/2025" || got[6] != "12:30" || got[8] != "no_answer" {
		t.Fatalf("unexpected row: %v", got)
	}
}
