// Command daily-update appends today's whole-market snapshot to the bar
// table. Re-running on the same day is a no-op.
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

	date := time.Now().Format("2006-01-02")
	if d := os.Getenv("QUANTPIPE_TRADE_DATE"); d != "" {
		date = d
	}

	n, err := ingest.UpdateDaily(ctx, client, st, date, logger)
	if err != nil {
		logger.Error("daily update failed", "date", date, "err", err)
		os.Exit(1)
	}
	logger.Info("daily update done", "date", date, "rows", n)
}
