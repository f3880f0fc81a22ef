// Command factor-import loads collaborator-produced Parquet files of
// derived-alpha and news-sentiment scores into the auxiliary tables.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quantpipe/internal/config"
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

	if err := importFactors(ctx, st, cfg.Import.FactorDir, logger); err != nil {
		logger.Error("factor import failed", "err", err)
		os.Exit(1)
	}
	if err := importSentiment(ctx, st, cfg.Import.SentimentDir, logger); err != nil {
		logger.Error("sentiment import failed", "err", err)
		os.Exit(1)
	}
}

func importFactors(ctx context.Context, st *store.SQLiteStore, dir string, logger *slog.Logger) error {
	files, err := store.ListParquetFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		scores, err := store.ReadFactorFile(path)
		if err != nil {
			return err
		}
		if err := st.InsertFactorScores(ctx, scores); err != nil {
			return err
		}
		logger.Info("factor file imported", "file", path, "rows", len(scores))
	}
	return nil
}

func importSentiment(ctx context.Context, st *store.SQLiteStore, dir string, logger *slog.Logger) error {
	files, err := store.ListParquetFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		scores, err := store.ReadSentimentFile(path)
		if err != nil {
			return err
		}
		if err := st.InsertSentimentScores(ctx, scores); err != nil {
			return err
		}
		logger.Info("sentiment file imported", "file", path, "rows", len(scores))
	}
	return nil
}
