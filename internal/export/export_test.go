package export

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"quantpipe/internal/domain"
	"quantpipe/internal/store"
)

func newExporter(t *testing.T) (*Exporter, *store.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	e := &Exporter{
		Store:          st,
		CSVDir:         filepath.Join(dir, "csv_temp"),
		OutDir:         filepath.Join(dir, "cn_data"),
		SectorStrategy: "sector_rotation_v1",
		TotalStrategy:  "multi_factor_v1",
		Log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return e, st
}

func seedBar(t *testing.T, st *store.SQLiteStore, code, date string, close float64) {
	t.Helper()
	err := st.InsertBars(context.Background(), []domain.DailyBar{{
		Code: code, Date: date,
		Open: close - 0.5, High: close + 0.5, Low: close - 1, Close: close,
		Volume: 1000, Amount: 10000, TurnoverRate: 2.5,
	}})
	if err != nil {
		t.Fatalf("InsertBars: %v", err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return records
}

func TestWriteCSVsDefaultsMissingAuxiliaryData(t *testing.T) {
	e, st := newExporter(t)
	ctx := context.Background()

	// A bar with sentiment but no factor scores must still export, with
	// the factor columns zero-filled.
	seedBar(t, st, "SZ000001", "2024-01-02", 10.5)
	err := st.InsertSentimentScores(ctx, []domain.SentimentScore{
		{Code: "SZ000001", Date: "2024-01-02", Score: 0.7},
	})
	if err != nil {
		t.Fatalf("InsertSentimentScores: %v", err)
	}

	n, err := e.WriteCSVs(ctx)
	if err != nil {
		t.Fatalf("WriteCSVs: %v", err)
	}
	if n != 1 {
		t.Fatalf("WriteCSVs exported %d symbols, want 1", n)
	}

	records := readCSV(t, filepath.Join(e.CSVDir, "SZ000001.csv"))
	if len(records) != 2 {
		t.Fatalf("CSV has %d records, want header + 1 row", len(records))
	}

	header, row := records[0], records[1]
	want := map[string]string{
		"date":         "2024-01-02",
		"factor":       "1.0",
		"sentiment":    "0.7",
		"sector_score": "0",
		"total_score":  "0",
		"turnover":     "2.5",
	}
	for i, col := range header {
		if w, ok := want[col]; ok && row[i] != w {
			t.Errorf("column %s = %q, want %q", col, row[i], w)
		}
	}
}

func TestWriteCSVsAveragesSentimentAndPicksStrategies(t *testing.T) {
	e, st := newExporter(t)
	ctx := context.Background()

	seedBar(t, st, "SH600519", "2024-01-02", 1700)
	err := st.InsertSentimentScores(ctx, []domain.SentimentScore{
		{Code: "SH600519", Date: "2024-01-02", Score: 0.2},
		{Code: "SH600519", Date: "2024-01-02", Score: 0.8},
	})
	if err != nil {
		t.Fatalf("InsertSentimentScores: %v", err)
	}
	err = st.InsertFactorScores(ctx, []domain.FactorScore{
		{Code: "SH600519", Date: "2024-01-02", Strategy: "sector_rotation_v1", Score: 1.5},
		{Code: "SH600519", Date: "2024-01-02", Strategy: "multi_factor_v1", Score: -0.25},
		{Code: "SH600519", Date: "2024-01-02", Strategy: "unrelated_v9", Score: 99},
	})
	if err != nil {
		t.Fatalf("InsertFactorScores: %v", err)
	}

	if _, err := e.WriteCSVs(ctx); err != nil {
		t.Fatalf("WriteCSVs: %v", err)
	}

	records := readCSV(t, filepath.Join(e.CSVDir, "SH600519.csv"))
	header, row := records[0], records[1]
	want := map[string]string{
		"sentiment":    "0.5",
		"sector_score": "1.5",
		"total_score":  "-0.25",
	}
	for i, col := range header {
		if w, ok := want[col]; ok && row[i] != w {
			t.Errorf("column %s = %q, want %q", col, row[i], w)
		}
	}
}

func TestWriteCSVsSanitizesFilenames(t *testing.T) {
	e, st := newExporter(t)
	ctx := context.Background()

	seedBar(t, st, "SZ/0001", "2024-01-02", 10)

	if _, err := e.WriteCSVs(ctx); err != nil {
		t.Fatalf("WriteCSVs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.CSVDir, "SZ_0001.csv")); err != nil {
		t.Errorf("sanitized CSV missing: %v", err)
	}
}

func TestWriteCSVsResetsDirectories(t *testing.T) {
	e, st := newExporter(t)
	ctx := context.Background()

	seedBar(t, st, "SZ000001", "2024-01-02", 10)

	// Leftovers from a previous run must not survive the reset.
	if err := os.MkdirAll(e.CSVDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.CSVDir, "STALE.csv"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := e.WriteCSVs(ctx); err != nil {
		t.Fatalf("WriteCSVs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.CSVDir, "STALE.csv")); !os.IsNotExist(err) {
		t.Error("stale CSV from previous run survived the directory reset")
	}
}

func TestSweepStrayRemovesNonCSV(t *testing.T) {
	e, _ := newExporter(t)
	if err := os.MkdirAll(e.CSVDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"SZ000001.csv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(e.CSVDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := e.sweepStray(); err != nil {
		t.Fatalf("sweepStray: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.CSVDir, "notes.txt")); !os.IsNotExist(err) {
		t.Error("stray non-CSV file survived the sweep")
	}
	if _, err := os.Stat(filepath.Join(e.CSVDir, "SZ000001.csv")); err != nil {
		t.Errorf("CSV removed by the sweep: %v", err)
	}
}

func TestRunPropagatesConversionFailure(t *testing.T) {
	e, st := newExporter(t)
	seedBar(t, st, "SZ000001", "2024-01-02", 10)

	e.DumpCommand = []string{"false"}
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("Run should fail when the conversion tool exits non-zero")
	}

	e.DumpCommand = []string{"true"}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run with succeeding conversion tool: %v", err)
	}
}

func TestResolveColumnsAliasesAndFailFast(t *testing.T) {
	at, err := resolveColumns([]string{
		"symbol", "date", "open", "close", "high", "low", "volume",
		"amount", "turnover", "sentiment", "sector_score", "total_score",
	})
	if err != nil {
		t.Fatalf("resolveColumns with aliases: %v", err)
	}
	if at["ts_code"] != 0 || at["trade_date"] != 1 {
		t.Errorf("alias resolution: ts_code=%d trade_date=%d, want 0/1", at["ts_code"], at["trade_date"])
	}

	if _, err := resolveColumns([]string{"open", "close"}); err == nil {
		t.Fatal("resolveColumns should fail when a required column is absent")
	}
}
