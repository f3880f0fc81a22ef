package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"quantpipe/internal/domain"
	"quantpipe/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdateDailyInserts(t *testing.T) {
	p := &fakeProvider{
		snapshot: []domain.DailyBar{
			{Code: "000001", Open: 10.0, Close: 10.5, PrevClose: 10.0},
			{Code: "000002", Open: 20.0, Close: 19.8, PrevClose: 20.1},
		},
	}
	st := newTestStore(t)
	ctx := context.Background()

	n, err := UpdateDaily(ctx, p, st, "2024-06-03", discardLogger())
	if err != nil {
		t.Fatalf("UpdateDaily: %v", err)
	}
	if n != 2 {
		t.Errorf("UpdateDaily inserted %d rows, want 2", n)
	}

	rows, err := st.CountBarsOn(ctx, "2024-06-03")
	if err != nil {
		t.Fatalf("CountBarsOn: %v", err)
	}
	if rows != 2 {
		t.Errorf("rows on 2024-06-03 = %d, want 2", rows)
	}
}

func TestUpdateDailySkipsExistingDate(t *testing.T) {
	p := &fakeProvider{
		snapshot: []domain.DailyBar{{Code: "000001", Close: 10.5}},
	}
	st := newTestStore(t)
	ctx := context.Background()

	// Seed one row for the target date.
	if err := st.InsertBars(ctx, []domain.DailyBar{{Code: "000009", Date: "2024-06-03", Close: 5}}); err != nil {
		t.Fatalf("InsertBars: %v", err)
	}

	n, err := UpdateDaily(ctx, p, st, "2024-06-03", discardLogger())
	if err != nil {
		t.Fatalf("UpdateDaily: %v", err)
	}
	if n != 0 {
		t.Errorf("UpdateDaily wrote %d rows for a persisted date, want 0", n)
	}
	if p.snapshotCalls != 0 {
		t.Errorf("snapshot fetched %d times despite replay guard, want 0", p.snapshotCalls)
	}

	total, err := st.CountBars(ctx)
	if err != nil {
		t.Fatalf("CountBars: %v", err)
	}
	if total != 1 {
		t.Errorf("total rows = %d after skip, want 1", total)
	}
}

func TestUpdateDailyFetchFailureIsNonFatal(t *testing.T) {
	p := &fakeProvider{snapshotErr: errors.New("network unreachable")}
	st := newTestStore(t)

	n, err := UpdateDaily(context.Background(), p, st, "2024-06-03", discardLogger())
	if err != nil {
		t.Fatalf("UpdateDaily should swallow provider failure, got %v", err)
	}
	if n != 0 {
		t.Errorf("UpdateDaily = %d rows on fetch failure, want 0", n)
	}
}

func TestLoadBenchmarkDerivesAndReplaces(t *testing.T) {
	p := &fakeProvider{
		index: []domain.DailyBar{
			{Date: "2024-01-02", Open: 3400, Close: 3450, Volume: 100},
			{Date: "2024-01-03", Open: 3450, Close: 3430, Volume: 90},
		},
	}
	st := newTestStore(t)
	ctx := context.Background()

	// Run twice consecutively: exactly one row per (code, date) must remain.
	for run := 0; run < 2; run++ {
		n, err := LoadBenchmark(ctx, p, st, "1.000300", "SH000300", discardLogger())
		if err != nil {
			t.Fatalf("LoadBenchmark (run %d): %v", run+1, err)
		}
		if n != 2 {
			t.Errorf("LoadBenchmark (run %d) = %d rows, want 2", run+1, n)
		}
	}

	bars, err := st.ReadBars(ctx, "SH000300")
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("benchmark rows = %d after double load, want 2", len(bars))
	}

	first, second := bars[0], bars[1]
	if first.PrevClose != 3400 {
		t.Errorf("first PrevClose = %v, want own open 3400", first.PrevClose)
	}
	if second.PrevClose != 3450 {
		t.Errorf("second PrevClose = %v, want prior close 3450", second.PrevClose)
	}
	if second.Change != -20 {
		t.Errorf("second Change = %v, want -20", second.Change)
	}
	wantPct := -20.0 / 3450 * 100
	if second.PctChg != wantPct {
		t.Errorf("second PctChg = %v, want %v", second.PctChg, wantPct)
	}
	// The index feed has no turnover; it is zero-filled.
	if first.TurnoverRate != 0 || second.TurnoverRate != 0 {
		t.Errorf("benchmark turnover = %v/%v, want zero-fill", first.TurnoverRate, second.TurnoverRate)
	}
}

func TestLoadBenchmarkEmptySeriesIsError(t *testing.T) {
	p := &fakeProvider{}
	st := newTestStore(t)

	if _, err := LoadBenchmark(context.Background(), p, st, "1.000300", "SH000300", discardLogger()); err == nil {
		t.Fatal("LoadBenchmark on empty series should error")
	}
}
