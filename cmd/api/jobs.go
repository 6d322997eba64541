package main

import (
	"context"
	"log/slog"
	"time"

	"outbound-campaigns/internal/notify"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/telephony"
	"outbound-campaigns/pkg/logger"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
)

// cancelledRetention is how long cancelled schedule rows are kept for audit.
const cancelledRetention = 30 * 24 * time.Hour

type jobSet struct {
	syncer   *telephony.Syncer
	notifier *notify.Notifier
	sched    *scheduler.Service
}

// startJobs registers the periodic background jobs. They run next to the
// dispatcher loop; none of them dials.
func startJobs(ctx context.Context, log *slog.Logger, js jobSet) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	add := func(expr, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
		_, err := c.AddFunc(expr, func() {
			jctx, cancel := context.WithTimeout(logger.With(ctx, log.With("job", name)), timeout)
			defer cancel()
			if err := fn(jctx); err != nil {
				log.Error("job failed", "job", name, "err", err)
				sentry.CaptureException(err)
			}
		})
		return err
	}

	if err := add("@every 1m", "call_sync", 50*time.Second, func(ctx context.Context) error {
		_, err := js.syncer.Sync(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := add("@every 5m", "appointment_notify", 4*time.Minute, func(ctx context.Context) error {
		n, err := js.notifier.Run(ctx)
		if n > 0 {
			log.Info("appointment notifications sent", "count", n)
		}
		return err
	}); err != nil {
		return nil, err
	}
	if err := add("30 3 * * *", "purge_cancelled", 10*time.Minute, func(ctx context.Context) error {
		n, err := js.sched.PurgeCancelled(ctx, cancelledRetention)
		if n > 0 {
			log.Info("cancelled retries purged", "count", n)
		}
		return err
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
