package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"quantpipe/internal/store"
)

// LoadBenchmark fetches the full daily series for the benchmark index and
// replaces its rows in the store, scoped to targetCode only. Fields the
// index feed lacks (turnover) are zero-filled; change and percent change
// are derived from the previous-close chain. Safe to re-run at any time.
func LoadBenchmark(ctx context.Context, p MarketData, st store.BarStore, providerCode, targetCode string, log *slog.Logger) (int, error) {
	bars, err := p.IndexDaily(ctx, providerCode)
	if err != nil {
		return 0, fmt.Errorf("fetching benchmark %s: %w", providerCode, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("benchmark %s returned no rows", providerCode)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date < bars[j].Date
	})

	for i := range bars {
		bars[i].Code = targetCode
		if i == 0 {
			bars[i].PrevClose = bars[i].Open
		} else {
			bars[i].PrevClose = bars[i-1].Close
		}
		bars[i].Change = bars[i].Close - bars[i].PrevClose
		if bars[i].PrevClose != 0 {
			bars[i].PctChg = bars[i].Change / bars[i].PrevClose * 100
		} else {
			bars[i].PctChg = 0
		}
		bars[i].TurnoverRate = 0
	}

	if err := st.ReplaceBars(ctx, targetCode, bars); err != nil {
		return 0, fmt.Errorf("replacing benchmark rows for %s: %w", targetCode, err)
	}

	log.Info("benchmark series persisted", "code", targetCode, "rows", len(bars))
	return len(bars), nil
}
