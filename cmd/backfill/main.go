// Command backfill rebuilds the full daily bar history: it truncates the
// bar table, fetches the instrument directory, and loads every symbol's
// history across a bounded worker pool.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quantpipe/internal/config"
	"quantpipe/internal/ingest"
	"quantpipe/internal/provider"
	"quantpipe/internal/store"
	"quantpipe/internal/util"
)

func main() {
	cfgPath := "config/quantpipe.yaml"
	if p := os.Getenv("QUANTPIPE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := provider.NewClient(provider.Options{
		Timeout:    time.Duration(cfg.Provider.TimeoutSec) * time.Second,
		RequestGap: time.Duration(cfg.Provider.RequestGapMS) * time.Millisecond,
		Jitter:     time.Duration(cfg.Provider.JitterMS) * time.Millisecond,
		MaxRetries: cfg.Provider.MaxRetries,
	})

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("opening store", "path", cfg.Storage.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// A backfill is a full rebuild: clear the table once up front so the
	// run is idempotent end to end.
	if err := st.TruncateBars(ctx); err != nil {
		logger.Error("truncating bar table", "err", err)
		os.Exit(1)
	}

	codes := ingest.FetchUniverse(ctx, client, logger)
	if len(codes) == 0 {
		logger.Warn("instrument directory is empty, nothing to backfill")
		return
	}
	logger.Info("starting backfill",
		"symbols", len(codes),
		"start", cfg.Ingest.StartDate,
		"end", cfg.Ingest.EndDate,
	)

	coord := &ingest.Coordinator{
		Provider:  client,
		OpenStore: func() (store.BarStore, error) { return store.NewSQLiteStore(cfg.Storage.DBPath) },
		Workers:   cfg.Ingest.MaxWorkers,
		Progress:  true,
		Log:       logger,
	}

	summary, err := coord.Run(ctx, codes, cfg.Ingest.StartDate, cfg.Ingest.EndDate)
	if err != nil {
		logger.Error("backfill aborted", "err", err)
		os.Exit(1)
	}
	if summary.Failed > 0 {
		logger.Warn("backfill finished with failures", "failed", summary.Failed)
	}
}
