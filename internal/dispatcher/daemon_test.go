package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/outcome"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/settings"
	"outbound-campaigns/internal/telephony"
	"outbound-campaigns/pkg/metrics"
)

type dialResult struct {
	details telephony.CallDetails
	err     error
}

type fakeDialer struct {
	mu      sync.Mutex
	results map[int64]dialResult
	dialed  []int64
	block   chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: map[int64]dialResult{}}
}

func (f *fakeDialer) Dial(ctx context.Context, l leads.Lead) (telephony.CallDetails, error) {
	f.mu.Lock()
	f.dialed = append(f.dialed, l.ID)
	r, ok := f.results[l.ID]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return telephony.CallDetails{}, ctx.Err()
		}
	}
	if !ok {
		return telephony.CallDetails{ID: fmt.Sprintf("call-%d", l.ID), LeadID: l.ID, To: l.Phone, StatusCode: outcome.CodeNoAnswer}, nil
	}
	return r.details, r.err
}

func (f *fakeDialer) Dialed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.dialed...)
}

type fixture struct {
	daemon *Daemon
	sched  *scheduler.Service
	store  *scheduler.MemoryStore
	cfg    *settings.MemoryStore
	dialer *fakeDialer
	m      *metrics.Metrics
	loc    *time.Location
	now    time.Time
}

type fixtureOpts struct {
	rdb         *redis.Client
	maxInflight int
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	f := &fixture{
		store:  scheduler.NewMemoryStore(nil, nil),
		cfg:    settings.NewMemoryStore(map[string]string{settings.KeyMaxAttempts: "3"}),
		dialer: newFakeDialer(),
		loc:    loc,
		// Monday, inside the default 10:00-20:00 window
		now: time.Date(2025, 10, 6, 11, 0, 0, 0, loc),
	}
	f.m = metrics.New(prometheus.NewRegistry())
	m := f.m
	clock := func() time.Time { return f.now }

	f.sched = scheduler.NewService(f.store, f.cfg, loc, m)
	f.sched.SetClock(clock)
	f.daemon = New(f.sched, f.store.Leads, f.dialer, Options{
		Redis:       o.rdb,
		MaxInflight: o.maxInflight,
		CallTimeout: time.Minute,
		Location:    loc,
		Metrics:     m,
	})
	f.daemon.clock = clock
	return f
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func (f *fixture) seedDue(t *testing.T, l leads.Lead) (leads.Lead, scheduler.ScheduledCall) {
	t.Helper()
	lead := f.store.Leads.Put(l)
	row := f.store.Seed(scheduler.ScheduledCall{
		LeadID:        lead.ID,
		ScheduledAt:   f.now.Add(-time.Minute),
		AttemptNumber: lead.CallAttempts + 1,
		Status:        scheduler.StatusPending,
	})
	return lead, row
}

func (f *fixture) lead(t *testing.T, id int64) leads.Lead {
	t.Helper()
	l, err := f.store.Leads.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.daemon.Wait(ctx))
}

func rowStatus(store *scheduler.MemoryStore, id int64) scheduler.Status {
	for _, r := range store.Rows() {
		if r.ID == id {
			return r.Status
		}
	}
	return ""
}

func TestTick_DispatchesDueRetriesAndSelectedLeads(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	noAnswer, noAnswerRow := f.seedDue(t, leads.Lead{Nombre: "Ana", Phone: "600112233", CallAttempts: 1})
	badPhone, _ := f.seedDue(t, leads.Lead{Nombre: "Luis", Phone: "12345"})
	selected := f.store.Leads.Put(leads.Lead{Nombre: "Eva", Phone: "600445566", SelectedForCalling: true})

	f.dialer.results[noAnswer.ID] = dialResult{details: telephony.CallDetails{
		ID: "call-1", LeadID: noAnswer.ID, To: "+34600112233", StatusCode: outcome.CodeNoAnswer,
	}}
	f.dialer.results[badPhone.ID] = dialResult{err: telephony.ErrInvalidPhone}
	f.dialer.results[selected.ID] = dialResult{details: telephony.CallDetails{
		ID: "call-3", LeadID: selected.ID, To: "+34600445566", StatusCode: outcome.CodeSuccess,
	}}

	sleep := f.daemon.Tick(ctx)
	assert.Equal(t, 5*time.Minute, sleep)
	f.wait(t)

	assert.ElementsMatch(t, []int64{noAnswer.ID, badPhone.ID, selected.ID}, f.dialer.Dialed())
	assert.Equal(t, scheduler.StatusCompleted, rowStatus(f.store, noAnswerRow.ID))

	l := f.lead(t, noAnswer.ID)
	assert.Equal(t, 2, l.CallAttempts)
	assert.Equal(t, leads.StatusOpen, l.LeadStatus)
	pending, err := f.sched.List(ctx, scheduler.Filter{LeadID: noAnswer.ID, Status: scheduler.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].ScheduledAt.After(f.now))

	assert.Equal(t, leads.StatusClosed, f.lead(t, badPhone.ID).LeadStatus)

	s := f.lead(t, selected.ID)
	assert.False(t, s.SelectedForCalling)
	assert.Equal(t, 1, s.CallAttempts)

	st := f.daemon.Status()
	assert.Equal(t, "dispatched", st.LastResult)
	assert.Equal(t, 3, st.Dispatched)
	assert.Equal(t, 0, st.Inflight)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Ticks.WithLabelValues("dispatched")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.Dispatched.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Dispatched.WithLabelValues("selected")))
}

func TestTick_SkipsWhenDisabledOrOffHours(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	f.seedDue(t, leads.Lead{Phone: "600112233"})

	require.NoError(t, f.cfg.Set(ctx, settings.KeyDaemonEnabled, "false"))
	f.daemon.Tick(ctx)
	assert.Equal(t, "disabled", f.daemon.Status().LastResult)

	require.NoError(t, f.cfg.Set(ctx, settings.KeyDaemonEnabled, "true"))
	f.now = time.Date(2025, 10, 11, 11, 0, 0, 0, f.loc) // Saturday
	f.daemon.Tick(ctx)
	assert.Equal(t, "off_hours", f.daemon.Status().LastResult)

	f.now = time.Date(2025, 10, 6, 21, 0, 0, 0, f.loc)
	f.daemon.Tick(ctx)
	assert.Equal(t, "off_hours", f.daemon.Status().LastResult)

	assert.Empty(t, f.dialer.Dialed())
	assert.Equal(t, 3, f.daemon.Status().Ticks)
}

func TestTick_IdleWithoutWork(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.daemon.Tick(context.Background())
	assert.Equal(t, "idle", f.daemon.Status().LastResult)
}

func TestTick_ManualAndClosedLeadsAreNotDialed(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	manual, manualRow := f.seedDue(t, leads.Lead{Phone: "600112233", ManualManagement: true})
	closed, _ := f.seedDue(t, leads.Lead{Phone: "600445566", LeadStatus: leads.StatusClosed})

	f.daemon.Tick(context.Background())
	f.wait(t)

	assert.Empty(t, f.dialer.Dialed())
	assert.Equal(t, scheduler.StatusPending, rowStatus(f.store, manualRow.ID), "Due never returns manual leads")
	assert.False(t, f.lead(t, manual.ID).IsClosed())
	assert.True(t, f.lead(t, closed.ID).IsClosed())
}

func TestTick_NotLeader(t *testing.T) {
	rdb := newTestRedis(t)
	f := newFixture(t, fixtureOpts{rdb: rdb})
	ctx := context.Background()
	f.seedDue(t, leads.Lead{Phone: "600112233"})

	require.NoError(t, rdb.Set(ctx, leaderKey, "other-replica", time.Minute).Err())
	f.daemon.Tick(ctx)
	assert.Equal(t, "not_leader", f.daemon.Status().LastResult)
	assert.Empty(t, f.dialer.Dialed())

	require.NoError(t, rdb.Del(ctx, leaderKey).Err())
	f.daemon.Tick(ctx)
	f.wait(t)
	assert.Equal(t, "dispatched", f.daemon.Status().LastResult)

	// the lock is released after the tick
	n, err := rdb.Exists(ctx, leaderKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTick_InflightCap(t *testing.T) {
	rdb := newTestRedis(t)
	f := newFixture(t, fixtureOpts{rdb: rdb, maxInflight: 1})
	ctx := context.Background()
	f.dialer.block = make(chan struct{})

	first, _ := f.seedDue(t, leads.Lead{Phone: "600112233"})
	_, secondRow := f.seedDue(t, leads.Lead{Phone: "600445566"})

	f.daemon.Tick(ctx)
	assert.Eventually(t, func() bool { return len(f.dialer.Dialed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{first.ID}, f.dialer.Dialed())
	assert.Equal(t, scheduler.StatusPending, rowStatus(f.store, secondRow.ID))
	assert.Equal(t, 1, f.daemon.Status().Inflight)

	_, err := f.daemon.CallNow(ctx, first.ID)
	assert.ErrorIs(t, err, ErrBusy)

	close(f.dialer.block)
	f.wait(t)
	assert.Equal(t, 0, f.daemon.Status().Inflight)

	f.daemon.Tick(ctx)
	f.wait(t)
	assert.Len(t, f.dialer.Dialed(), 2)
	assert.Equal(t, scheduler.StatusCompleted, rowStatus(f.store, secondRow.ID))
}

type failingScheduler struct {
	*scheduler.Service
}

func (failingScheduler) Due(ctx context.Context, limit int) ([]scheduler.DueCall, error) {
	return nil, errors.New("database unavailable")
}

func TestTick_ErrorBacksOff(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	d := New(failingScheduler{f.sched}, nil, f.dialer, Options{Location: f.loc})
	d.clock = func() time.Time { return f.now }

	assert.Equal(t, ErrorBackoff, d.Tick(context.Background()))
	st := d.Status()
	assert.Equal(t, "error", st.LastResult)
	assert.Contains(t, st.LastError, "database unavailable")
}

type beginFailingScheduler struct {
	*scheduler.Service
}

func (beginFailingScheduler) BeginScheduledCall(ctx context.Context, rowID, leadID int64) (leads.Lead, error) {
	return leads.Lead{}, errors.New("could not serialize access")
}

func TestTick_FailedBeginKeepsRowPending(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	lead, row := f.seedDue(t, leads.Lead{Phone: "600112233"})

	d := New(beginFailingScheduler{f.sched}, f.store.Leads, f.dialer, Options{Location: f.loc, Metrics: f.m})
	d.clock = func() time.Time { return f.now }
	assert.Equal(t, ErrorBackoff, d.Tick(context.Background()))
	assert.Empty(t, f.dialer.Dialed())
	assert.Equal(t, scheduler.StatusPending, rowStatus(f.store, row.ID))
	assert.Equal(t, leads.StatusOpen, f.lead(t, lead.ID).LeadStatus)

	// the next healthy tick still picks it up
	f.daemon.Tick(context.Background())
	f.wait(t)
	assert.Equal(t, []int64{lead.ID}, f.dialer.Dialed())
	assert.Equal(t, scheduler.StatusCompleted, rowStatus(f.store, row.ID))
}

func TestCallNow(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	manual := f.store.Leads.Put(leads.Lead{Phone: "600112233", ManualManagement: true})
	closed := f.store.Leads.Put(leads.Lead{Phone: "600445566", LeadStatus: leads.StatusClosed})

	got, err := f.daemon.CallNow(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, leads.CallStatusCalling, got.CallStatus)
	f.wait(t)
	assert.Equal(t, []int64{manual.ID}, f.dialer.Dialed())

	_, err = f.daemon.CallNow(ctx, closed.ID)
	assert.ErrorIs(t, err, scheduler.ErrLeadClosed)

	_, err = f.daemon.CallNow(ctx, 999)
	assert.ErrorIs(t, err, scheduler.ErrLeadNotFound)
}

func TestInput(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	lead := leads.Lead{ID: 4, Phone: "600112233"}
	f.daemon.newCall = func() string { return "fixed" }

	in := f.daemon.input(ctx, lead, telephony.CallDetails{ID: "call-9", To: "+34600112233"}, telephony.ErrCallTimeout)
	assert.Equal(t, outcome.Error, in.Classification.Outcome)
	assert.True(t, in.Transient)
	assert.Equal(t, "call-9", in.Call.ID)
	assert.Equal(t, "600112233", in.Call.Phone)

	in = f.daemon.input(ctx, lead, telephony.CallDetails{}, errors.New("connection refused"))
	assert.True(t, in.Transient)
	assert.Equal(t, "dispatch-fixed", in.Call.ID)
	assert.True(t, in.Call.IsDispatchFailure())

	in = f.daemon.input(ctx, lead, telephony.CallDetails{}, telephony.ErrInvalidPhone)
	assert.Equal(t, outcome.InvalidPhone, in.Classification.Outcome)
	assert.False(t, in.Transient)

	in = f.daemon.input(ctx, lead, telephony.CallDetails{ID: "call-10", StatusCode: outcome.CodeBusy}, nil)
	assert.Equal(t, outcome.Busy, in.Classification.Outcome)
	assert.Equal(t, "call-10", in.Call.ID)
	assert.Equal(t, int64(4), in.Call.LeadID)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	require.NoError(t, f.cfg.Set(context.Background(), settings.KeyDaemonEnabled, "false"))

	assert.True(t, f.daemon.Start(context.Background()))
	assert.False(t, f.daemon.Start(context.Background()))
	assert.True(t, f.daemon.Status().Running)

	assert.Eventually(t, func() bool { return f.daemon.Status().Ticks > 0 }, 2*time.Second, 10*time.Millisecond)

	assert.True(t, f.daemon.Stop())
	assert.False(t, f.daemon.Stop())
	assert.False(t, f.daemon.Status().Running)
}
