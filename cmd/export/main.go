// Command export materializes the consolidated daily table as per-symbol
// CSVs and runs the dataset conversion tool over them.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quantpipe/internal/config"
	"quantpipe/internal/export"
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

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("opening store", "path", cfg.Storage.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	exp := &export.Exporter{
		Store:          st,
		CSVDir:         cfg.Export.CSVDir,
		OutDir:         cfg.Export.OutDir,
		SectorStrategy: cfg.Export.SectorStrategy,
		TotalStrategy:  cfg.Export.TotalStrategy,
		DumpCommand:    cfg.Export.DumpCommand,
		Log:            logger,
	}

	if err := exp.Run(ctx); err != nil {
		logger.Error("export failed", "err", err)
		os.Exit(1)
	}
}
