package telephony

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/internal/scheduler"
)

type recordingApplier struct {
	inputs []scheduler.Input
}

func (a *recordingApplier) Apply(ctx context.Context, in scheduler.Input) (scheduler.Result, error) {
	a.inputs = append(a.inputs, in)
	return scheduler.Result{LeadID: in.LeadID, Action: scheduler.ActionRetry}, nil
}

func TestSyncer_FillsLateFields(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)
	start := now.Add(-5 * time.Minute)

	repo := calls.NewMemoryRepo()
	_, err := repo.Upsert(ctx, calls.Record{ID: "c1", LeadID: 3, Outcome: "no_answer", StatusCode: 7})
	require.NoError(t, err)

	p := newFakeProvider()
	p.pages = []SearchPage{{Count: 1, Results: []CallDetails{{ID: "c1", LeadID: 3, StatusCode: 7, StartTime: &start}}}}
	p.polls["c1"] = []CallDetails{{ID: "c1", LeadID: 3, StatusCode: 7, StartTime: &start, DurationSeconds: 12, Summary: "buzón de voz"}}

	app := &recordingApplier{}
	s := NewSyncer(p, repo, app, 20*time.Minute)
	s.clock = func() time.Time { return now }

	rep, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Seen: 1, Updated: 1}, rep)
	assert.Empty(t, app.inputs)

	rec, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "buzón de voz", rec.Summary)
	assert.Equal(t, 12, rec.DurationSeconds)
	assert.Equal(t, "no_answer", rec.Outcome)

	require.Len(t, p.searches, 1)
	assert.True(t, p.searches[0].From.Equal(now.Add(-time.Hour)))
}

func TestSyncer_RecoversOrphanedCalls(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * time.Minute)
	recent := now.Add(-2 * time.Minute)

	p := newFakeProvider()
	p.pages = []SearchPage{{Count: 4, Results: []CallDetails{
		{ID: "orphan", LeadID: 8, StatusCode: 5, StartTime: &old},
		{ID: "running", LeadID: 9, StatusCode: 3, StartTime: &old},
		{ID: "young", LeadID: 10, StatusCode: 7, StartTime: &recent},
		{ID: "nolead", StatusCode: 7, StartTime: &old},
	}}}
	p.polls["orphan"] = []CallDetails{{ID: "orphan", StatusCode: 5, StartTime: &old, To: "+34600112233"}}

	app := &recordingApplier{}
	s := NewSyncer(p, calls.NewMemoryRepo(), app, 20*time.Minute)
	s.clock = func() time.Time { return now }

	rep, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Seen: 4, Recovered: 1, Skipped: 3}, rep)

	require.Len(t, app.inputs, 1)
	in := app.inputs[0]
	assert.Equal(t, int64(8), in.LeadID)
	assert.Equal(t, outcome.Busy, in.Classification.Outcome)
	require.NotNil(t, in.Call)
	assert.Equal(t, "orphan", in.Call.ID)
	assert.Equal(t, "600112233", in.Call.Phone)
}

func TestSyncer_AppliesFinalResultOfTimedOutCall(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)
	start := now.Add(-30 * time.Minute)

	repo := calls.NewMemoryRepo()
	// stored by the dispatcher when it stopped waiting
	_, err := repo.Upsert(ctx, calls.Record{ID: "slow", LeadID: 4, StatusCode: 3, Outcome: "error"})
	require.NoError(t, err)

	p := newFakeProvider()
	p.pages = []SearchPage{{Count: 1, Results: []CallDetails{{ID: "slow", LeadID: 4, StatusCode: 5, StartTime: &start}}}}
	p.polls["slow"] = []CallDetails{{ID: "slow", LeadID: 4, StatusCode: 5, StartTime: &start, DurationSeconds: 3}}

	app := &recordingApplier{}
	s := NewSyncer(p, repo, app, 20*time.Minute)
	s.clock = func() time.Time { return now }

	rep, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Seen: 1, Resolved: 1}, rep)

	require.Len(t, app.inputs, 1)
	in := app.inputs[0]
	assert.Equal(t, int64(4), in.LeadID)
	assert.Equal(t, outcome.Busy, in.Classification.Outcome)
	require.NotNil(t, in.Call)
	assert.Equal(t, "slow", in.Call.ID)
	assert.Equal(t, 5, in.Call.StatusCode)
}

func TestSyncer_Pages(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)

	p := newFakeProvider()
	p.pages = []SearchPage{
		{Count: 3, Results: []CallDetails{{ID: "a", StatusCode: 2}, {ID: "b", StatusCode: 2}}},
		{Count: 3, Results: []CallDetails{{ID: "c", StatusCode: 2}}},
	}
	s := NewSyncer(p, calls.NewMemoryRepo(), &recordingApplier{}, 0)
	s.clock = func() time.Time { return now }

	rep, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Seen)
	require.Len(t, p.searches, 2)
	assert.Equal(t, 2, p.searches[1].Skip)
}
