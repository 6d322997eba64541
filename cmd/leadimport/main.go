// Command leadimport loads leads from an .xlsx workbook into Postgres.
//
//	leadimport -file leads_octubre.xlsx
//
// Database settings come from the same environment as the API process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	_ "time/tzdata"

	"outbound-campaigns/internal/config"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/pkg/logger"
	"outbound-campaigns/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	path := flag.String("file", "", "path to the .xlsx workbook")
	source := flag.String("source", "", "origen_archivo stored on each lead (default: file name)")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env, cfg.Location())
	ctx = logger.With(ctx, log)

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	f, err := os.Open(*path)
	if err != nil {
		log.Error("open workbook failed", "path", *path, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	name := *source
	if name == "" {
		name = filepath.Base(*path)
	}

	rep, err := leads.Import(ctx, f, name, leads.NewPostgresRepo(db))
	if err != nil {
		log.Error("import failed", "file", name, "inserted", rep.Inserted, "err", err)
		os.Exit(1)
	}
	log.Info("import finished",
		"file", name,
		"rows", rep.Rows,
		"inserted", rep.Inserted,
		"skipped_invalid", rep.SkippedInvalid,
		"skipped_duplicate", rep.SkippedDuplicate,
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}
