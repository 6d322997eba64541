package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"outbound-campaigns/internal/audit"
	"outbound-campaigns/internal/auth"
	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/config"
	"outbound-campaigns/internal/dispatcher"
	"outbound-campaigns/internal/httpapi"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/notify"
	"outbound-campaigns/internal/reporting"
	"outbound-campaigns/internal/results"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/settings"
	"outbound-campaigns/internal/telephony"
	"outbound-campaigns/pkg/logger"
	"outbound-campaigns/pkg/metrics"
	"outbound-campaigns/pkg/utils"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	loc := cfg.Location()

	log := logger.New(cfg.App.Env, loc)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.App.Env,
			AttachStacktrace: true,
		}); err != nil {
			log.Warn("sentry init failed", "err", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Storage
	leadRepo := leads.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)
	settingsStore := settings.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Domain services
	sched := scheduler.NewService(scheduler.NewPostgresStore(db), settingsStore, loc, m)
	pearl := telephony.NewPearlClient(cfg.Pearl, loc, m)
	daemon := dispatcher.New(sched, leadRepo,
		telephony.NewPearlDialer(pearl, cfg.Pearl.PollInterval, cfg.Pearl.MaxCallWait),
		dispatcher.Options{
			Redis:       rdb,
			MaxInflight: cfg.Daemon.MaxInflight,
			CallTimeout: cfg.Pearl.MaxCallWait + 5*time.Minute,
			Location:    loc,
			Metrics:     m,
			Logger:      log,
		})
	syncer := telephony.NewSyncer(pearl, callRepo, sched, 0)

	var sender notify.Sender = notify.LogSender{Logger: log}
	if cfg.Email.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(cfg.Email.SendGridAPIKey, cfg.Email.From, "Campaña Dental")
	}
	notifier := notify.NewNotifier(leadRepo, sender, cfg.Email.Recipients)

	snap := settings.Load(rootCtx, settingsStore, log)
	log.Info("scheduler config loaded",
		"max_attempts", snap.MaxAttempts,
		"reschedule_hours", snap.RescheduleHours,
		"slots", snap.Calendar(loc).Describe(),
		"working_days", snap.WorkingDays,
		"daemon_enabled", snap.DaemonEnabled,
		"interval_minutes", snap.IntervalMinutes,
		"max_calls_per_cycle", snap.MaxCallsPerCycle,
	)

	h := httpapi.Handlers{
		Auth:         authManager,
		Scheduler:    sched,
		Dispatcher:   daemon,
		Leads:        leadRepo,
		Calls:        callRepo,
		Settings:     settingsStore,
		Results:      results.NewService(leadRepo, sched, loc),
		Reporting:    reporting.NewService(reporting.NewPostgresRepo(db), sched, leadRepo, loc),
		Audit:        auditSvc,
		Location:     loc,
		LoginEnabled: !cfg.IsProduction(),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, h, auth.RequireAccessToken(authManager), db, reg)

	jobs, err := startJobs(rootCtx, log, jobSet{
		syncer:   syncer,
		notifier: notifier,
		sched:    sched,
	})
	if err != nil {
		log.Error("cron init failed", "err", err)
		os.Exit(1)
	}

	if cfg.Daemon.AutoStart {
		daemon.Start(rootCtx)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "tz", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// In-flight calls keep running on the provider side; their results are
	// picked up by the syncer after restart if we cannot wait here.
	daemon.Stop()
	if err := daemon.Wait(shutdownCtx); err != nil {
		log.Warn("dispatcher did not drain", "err", err)
	}
	<-jobs.Stop().Done()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
