package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"quantpipe/internal/store"
)

// UpdateDaily fetches one whole-market snapshot and appends it under the
// given trade date, unless any row for that date is already persisted.
//
// The duplicate guard is date-granular: one existence check instead of N
// per-symbol probes. If the universe gains a listing intra-day, a second
// run that day skips entirely and misses it; the nightly backfill heals
// that.
func UpdateDaily(ctx context.Context, p MarketData, st store.BarStore, date string, log *slog.Logger) (int, error) {
	existing, err := st.CountBarsOn(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("checking existing rows for %s: %w", date, err)
	}
	if existing > 0 {
		log.Info("snapshot already persisted, skipping", "date", date, "rows", existing)
		return 0, nil
	}

	bars, err := p.Snapshot(ctx)
	if err != nil {
		log.Warn("snapshot fetch failed", "date", date, "err", err)
		return 0, nil
	}
	if len(bars) == 0 {
		log.Warn("snapshot returned no rows", "date", date)
		return 0, nil
	}

	for i := range bars {
		bars[i].Date = date
	}

	if err := st.InsertBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("writing snapshot for %s: %w", date, err)
	}

	log.Info("snapshot persisted", "date", date, "rows", len(bars))
	return len(bars), nil
}
