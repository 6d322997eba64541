package telephony

import (
	"context"
	"errors"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/pkg/logger"
)

// RecordStore is the part of the call record repository the syncer needs.
type RecordStore interface {
	Get(ctx context.Context, id string) (calls.Record, error)
	Upsert(ctx context.Context, rec calls.Record) (bool, error)
}

// Applier commits a finished call to the lead.
type Applier interface {
	Apply(ctx context.Context, in scheduler.Input) (scheduler.Result, error)
}

// Syncer pulls recent calls from the provider.
//
// Calls already recorded get their late fields (summary, recording,
// duration) filled. Finished calls nobody recorded, e.g. because the process
// restarted mid-call, are classified and applied once they are older than
// grace; younger ones still belong to a running dialer. Calls recorded as an
// error before the provider finished them are applied again with their final
// result.
type Syncer struct {
	provider Provider
	records  RecordStore
	applier  Applier
	window   time.Duration
	grace    time.Duration
	clock    func() time.Time
}

// SyncReport counts what one pass did.
type SyncReport struct {
	Seen      int `json:"seen"`
	Updated   int `json:"updated"`
	Recovered int `json:"recovered"`
	Resolved  int `json:"resolved"`
	Skipped   int `json:"skipped"`
}

func NewSyncer(p Provider, records RecordStore, applier Applier, grace time.Duration) *Syncer {
	if grace <= 0 {
		grace = 20 * time.Minute
	}
	return &Syncer{
		provider: p,
		records:  records,
		applier:  applier,
		window:   time.Hour,
		grace:    grace,
		clock:    time.Now,
	}
}

// Sync runs one pass over the calls started in the last hour.
func (s *Syncer) Sync(ctx context.Context) (SyncReport, error) {
	log := logger.From(ctx)
	now := s.clock()
	q := SearchQuery{From: now.Add(-s.window), To: now, Limit: searchPageLimit}

	var rep SyncReport
	for {
		page, err := s.provider.SearchCalls(ctx, q)
		if err != nil {
			return rep, err
		}
		for _, d := range page.Results {
			rep.Seen++
			if err := s.syncOne(ctx, d, now, &rep); err != nil {
				log.Warn("call sync failed", "call_id", d.ID, "lead_id", d.LeadID, "err", err)
			}
		}
		q.Skip += len(page.Results)
		if len(page.Results) == 0 || q.Skip >= page.Count {
			break
		}
	}
	if rep.Updated > 0 || rep.Recovered > 0 || rep.Resolved > 0 {
		log.Info("provider calls synced",
			"seen", rep.Seen,
			"updated", rep.Updated,
			"recovered", rep.Recovered,
			"resolved", rep.Resolved,
			"skipped", rep.Skipped,
		)
	}
	return rep, nil
}

func (s *Syncer) syncOne(ctx context.Context, d CallDetails, now time.Time, rep *SyncReport) error {
	if d.ID == "" || !d.Finished() {
		rep.Skipped++
		return nil
	}

	existing, err := s.records.Get(ctx, d.ID)
	switch {
	case err == nil:
		if existing.Unresolved() {
			return s.resolve(ctx, d, existing, rep)
		}
		if existing.Summary != "" && existing.RecordingURL != "" && existing.DurationSeconds > 0 {
			return nil
		}
		if d.Summary == "" {
			if full, err := s.provider.GetCall(ctx, d.ID); err == nil {
				d = full
			}
		}
		if _, err := s.records.Upsert(ctx, d.Record(existing.LeadID, outcome.Outcome(existing.Outcome))); err != nil {
			return err
		}
		rep.Updated++
		return nil
	case !errors.Is(err, calls.ErrNotFound):
		return err
	}

	if d.LeadID <= 0 || d.StartTime == nil || now.Sub(*d.StartTime) < s.grace {
		rep.Skipped++
		return nil
	}

	full, err := s.provider.GetCall(ctx, d.ID)
	if err != nil {
		return err
	}
	if full.LeadID == 0 {
		full.LeadID = d.LeadID
	}
	cls := outcome.Classify(ctx, full.Result())
	rec := full.Record(full.LeadID, cls.Outcome)
	res, err := s.applier.Apply(ctx, scheduler.Input{
		LeadID:         full.LeadID,
		Classification: cls,
		Call:           &rec,
	})
	if err != nil {
		return err
	}
	logger.From(ctx).Info("orphaned call applied", "call_id", full.ID, "lead_id", full.LeadID, "action", string(res.Action))
	rep.Recovered++
	return nil
}

// resolve applies the final result of a call that was stored before the
// provider finished it. The record already counts as an attempt, so Apply
// sees a replay and only the decision changes.
func (s *Syncer) resolve(ctx context.Context, d CallDetails, existing calls.Record, rep *SyncReport) error {
	full, err := s.provider.GetCall(ctx, d.ID)
	if err != nil {
		return err
	}
	if !full.Finished() {
		rep.Skipped++
		return nil
	}
	cls := outcome.Classify(ctx, full.Result())
	rec := full.Record(existing.LeadID, cls.Outcome)
	res, err := s.applier.Apply(ctx, scheduler.Input{
		LeadID:         existing.LeadID,
		Classification: cls,
		Call:           &rec,
	})
	if err != nil {
		return err
	}
	logger.From(ctx).Info("late call result applied",
		"call_id", full.ID,
		"lead_id", existing.LeadID,
		"outcome", string(cls.Outcome),
		"action", string(res.Action),
	)
	rep.Resolved++
	return nil
}
