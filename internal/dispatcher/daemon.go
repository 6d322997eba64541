package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/settings"
	"outbound-campaigns/internal/telephony"
	"outbound-campaigns/pkg/logger"
	"outbound-campaigns/pkg/metrics"
	"outbound-campaigns/pkg/utils"
)

const (
	// ErrorBackoff is the sleep after a failed tick.
	ErrorBackoff = 5 * time.Minute

	// statusEvery is the number of ticks between status log records.
	statusEvery = 6

	leaderKey   = "campaign:dispatcher:leader"
	inflightKey = "campaign:dispatcher:inflight"
)

// Dialer runs one call to completion.
type Dialer interface {
	Dial(ctx context.Context, l leads.Lead) (telephony.CallDetails, error)
}

// Scheduler is the part of scheduler.Service the daemon drives.
type Scheduler interface {
	Snapshot(ctx context.Context) settings.Snapshot
	Due(ctx context.Context, limit int) ([]scheduler.DueCall, error)
	BeginCall(ctx context.Context, leadID int64, manual bool) (leads.Lead, error)
	BeginScheduledCall(ctx context.Context, rowID, leadID int64) (leads.Lead, error)
	Apply(ctx context.Context, in scheduler.Input) (scheduler.Result, error)
	Stats(ctx context.Context) (scheduler.Stats, error)
}

// SelectedLeads lists leads flagged for the one-off manual batch.
type SelectedLeads interface {
	ListSelected(ctx context.Context, limit int) ([]leads.Lead, error)
}

type Options struct {
	// Redis backs the leader lock and the in-flight cap shared by replicas.
	// When nil both are process-local.
	Redis       *redis.Client
	MaxInflight int
	// CallTimeout bounds one dial including polling.
	CallTimeout time.Duration
	Location    *time.Location
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Daemon drives the retry scheduler over time: every interval it hands due
// retries and selected leads to the dialer, and applies each finished call.
//
// The daemon_enabled setting is the master switch; Start and Stop control
// whether this process runs the loop at all.
type Daemon struct {
	sched    Scheduler
	selected SelectedLeads
	dialer   Dialer

	rdb         *redis.Client
	token       string
	maxInflight int
	callTimeout time.Duration
	loc         *time.Location
	metrics     *metrics.Metrics
	log         *slog.Logger
	clock       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status
	ticks   int
	local   int
	calls   sync.WaitGroup
	newCall func() string
}

// Status is the in-memory state reported by GET /v1/dispatcher/status.
type Status struct {
	Running    bool       `json:"running"`
	Ticks      int        `json:"ticks"`
	LastTick   *time.Time `json:"last_tick,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	NextTick   *time.Time `json:"next_tick,omitempty"`
	Dispatched int        `json:"dispatched_total"`
	Inflight   int        `json:"inflight"`
}

func New(s Scheduler, sel SelectedLeads, d Dialer, opts Options) *Daemon {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 5
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 20 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Daemon{
		sched:       s,
		selected:    sel,
		dialer:      d,
		rdb:         opts.Redis,
		token:       uuid.NewString(),
		maxInflight: opts.MaxInflight,
		callTimeout: opts.CallTimeout,
		loc:         opts.Location,
		metrics:     opts.Metrics,
		log:         opts.Logger.With("component", "dispatcher"),
		clock:       time.Now,
		newCall:     uuid.NewString,
	}
}

func (d *Daemon) now() time.Time { return d.clock().In(d.loc) }

// Start runs the loop in the background. It returns false if it was
// already running.
func (d *Daemon) Start(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.done = make(chan struct{})
	d.status.Running = true
	go func(done chan struct{}) {
		defer close(done)
		d.Run(ctx)
	}(d.done)
	d.log.Info("dispatcher started")
	return true
}

// Stop ends the loop and waits for the current tick. Calls already placed
// keep running and are still applied. It returns false if nothing ran.
func (d *Daemon) Stop() bool {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done

	d.mu.Lock()
	d.status.Running = false
	d.status.NextTick = nil
	d.mu.Unlock()
	d.log.Info("dispatcher stopped")
	return true
}

// Wait blocks until every placed call has been applied or ctx ends.
func (d *Daemon) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		d.calls.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Run loops until ctx is done.
func (d *Daemon) Run(ctx context.Context) {
	ctx = logger.With(ctx, d.log)
	for {
		sleep := d.Tick(ctx)
		next := d.now().Add(sleep)
		d.mu.Lock()
		d.status.NextTick = &next
		d.mu.Unlock()

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Tick performs one iteration and returns the sleep before the next one.
// Configuration is reloaded on every tick.
func (d *Daemon) Tick(ctx context.Context) time.Duration {
	snap := d.sched.Snapshot(ctx)
	interval := snap.Interval()
	if interval <= 0 {
		interval = settings.Defaults().Interval()
	}

	result, err := d.tick(ctx, snap)
	d.metrics.RecordTick(result)

	now := d.now()
	d.mu.Lock()
	d.ticks++
	n := d.ticks
	d.status.Ticks = n
	d.status.LastTick = &now
	d.status.LastResult = result
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Error("dispatcher tick failed", "err", err, "backoff", ErrorBackoff.String())
		sentry.CaptureException(err)
		return ErrorBackoff
	}
	if n%statusEvery == 0 {
		d.logStatus(ctx)
	}
	return interval
}

func (d *Daemon) tick(ctx context.Context, snap settings.Snapshot) (string, error) {
	if !snap.DaemonEnabled {
		return "disabled", nil
	}
	now := d.now()
	if !snap.Calendar(d.loc).IsWorking(now) {
		return "off_hours", nil
	}

	leader, release, err := d.lead(ctx, snap.Interval())
	if err != nil {
		return "error", err
	}
	if !leader {
		return "not_leader", nil
	}
	defer release()

	budget := snap.MaxCallsPerCycle
	due, err := d.sched.Due(ctx, budget)
	if err != nil {
		return "error", err
	}

	sent := 0
	for _, dc := range due {
		if sent >= budget {
			break
		}
		ok, err := d.dispatch(ctx, dc.Lead, dc.ID, "retry")
		if err != nil {
			return "error", err
		}
		if !ok {
			break
		}
		sent++
	}

	if left := budget - sent; left > 0 && d.selected != nil {
		batch, err := d.selected.ListSelected(ctx, left)
		if err != nil {
			return "error", err
		}
		for _, l := range batch {
			ok, err := d.dispatch(ctx, l, 0, "selected")
			if err != nil {
				return "error", err
			}
			if !ok {
				break
			}
			sent++
		}
	}

	if sent == 0 {
		return "idle", nil
	}
	d.log.Info("calls dispatched", "count", sent, "due", len(due))
	return "dispatched", nil
}

// lead takes the leader lock for one tick. Without Redis every process
// is its own leader.
func (d *Daemon) lead(ctx context.Context, interval time.Duration) (bool, func(), error) {
	if d.rdb == nil {
		return true, func() {}, nil
	}
	ok, err := utils.AcquireLock(ctx, d.rdb, leaderKey, d.token, interval+time.Minute)
	if err != nil || !ok {
		return false, nil, err
	}
	return true, func() {
		if err := utils.ReleaseLock(context.WithoutCancel(ctx), d.rdb, leaderKey, d.token); err != nil {
			d.log.Warn("leader lock release failed", "err", err)
		}
	}, nil
}

func (d *Daemon) logStatus(ctx context.Context) {
	st, err := d.sched.Stats(ctx)
	if err != nil {
		d.log.Warn("dispatcher status unavailable", "err", err)
		return
	}
	d.metrics.SetPending(st.PendingCount)
	d.log.Info("dispatcher status",
		"pending_count", st.PendingCount,
		"scheduled_today", st.ScheduledToday,
		"slots", st.Slots,
		"working_now", st.WorkingNow,
		"inflight", d.Status().Inflight,
	)
}
