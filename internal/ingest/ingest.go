// Package ingest coordinates the data-ingestion stages: the concurrent
// full-history backfill, the single-day incremental update, and the
// benchmark series load.
package ingest

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"quantpipe/internal/domain"
	"quantpipe/internal/store"
)

// MarketData is the provider surface the ingestion stages consume.
type MarketData interface {
	// Universe returns the current full instrument directory.
	Universe(ctx context.Context) ([]domain.Symbol, error)

	// History returns forward-adjusted daily bars for one code within
	// [start, end]. No data is (nil, nil), not an error.
	History(ctx context.Context, code, start, end string) ([]domain.DailyBar, error)

	// Snapshot returns the latest daily quote for the whole universe.
	Snapshot(ctx context.Context) ([]domain.DailyBar, error)

	// IndexDaily returns the full daily series for an index secid.
	IndexDaily(ctx context.Context, secid string) ([]domain.DailyBar, error)
}

// FetchUniverse returns the current instrument codes, degrading to an empty
// list on provider failure: a directory fetch must never kill a batch run.
func FetchUniverse(ctx context.Context, p MarketData, log *slog.Logger) []string {
	symbols, err := p.Universe(ctx)
	if err != nil {
		log.Warn("fetching instrument directory failed", "err", err)
		return nil
	}
	codes := make([]string, 0, len(symbols))
	for _, s := range symbols {
		codes = append(codes, s.Code)
	}
	return codes
}

// Summary aggregates the per-symbol outcomes of one backfill run.
type Summary struct {
	Attempted int
	Succeeded int
	Empty     int
	Failed    int
}

// Jitter bounds for the anti-throttling pause inserted after every
// successBatch-th successful symbol.
const (
	jitterMin    = 100 * time.Millisecond
	jitterMax    = 500 * time.Millisecond
	successBatch = 10
)

// Coordinator fans the per-symbol history load across a bounded worker pool.
// Every worker opens its own store handle via OpenStore; no connection is
// shared across goroutines. A symbol's failure is tallied, never fatal.
type Coordinator struct {
	Provider  MarketData
	OpenStore func() (store.BarStore, error)
	Workers   int  // defaults to 4
	Progress  bool // render a progress bar on stderr
	Log       *slog.Logger
}

// Run loads history for every code in [start, end] and persists it. The
// returned Summary counts attempted vs. succeeded/empty/failed symbols. An
// empty universe completes immediately with a zero summary and no error.
func (c *Coordinator) Run(ctx context.Context, codes []string, start, end string) (Summary, error) {
	summary := Summary{Attempted: len(codes)}
	if len(codes) == 0 {
		return summary, nil
	}

	workers := c.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(codes) {
		workers = len(codes)
	}

	codeCh := make(chan string, len(codes))
	for _, code := range codes {
		codeCh <- code
	}
	close(codeCh)

	results := make(chan domain.FetchResult, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			st, err := c.OpenStore()
			if err != nil {
				return err
			}
			defer st.Close()

			for code := range codeCh {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results <- c.processSymbol(gctx, st, code, start, end)
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	var bar *progressbar.ProgressBar
	if c.Progress {
		bar = progressbar.Default(int64(len(codes)), "backfill")
	}

	for res := range results {
		if bar != nil {
			bar.Add(1)
		}
		switch res.Status {
		case domain.FetchOK:
			summary.Succeeded++
			if summary.Succeeded%successBatch == 0 {
				sleepJitter(ctx)
			}
		case domain.FetchEmpty:
			summary.Empty++
			c.Log.Debug("no data for symbol", "code", res.Code)
		case domain.FetchFailed:
			summary.Failed++
			c.Log.Warn("symbol failed", "code", res.Code, "err", res.Err)
		}
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	c.Log.Info("backfill complete",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"empty", summary.Empty,
		"failed", summary.Failed,
	)
	return summary, nil
}

// processSymbol loads one symbol's history and persists it through the
// worker's own store handle.
func (c *Coordinator) processSymbol(ctx context.Context, st store.BarStore, code, start, end string) domain.FetchResult {
	bars, res := LoadHistory(ctx, c.Provider, code, start, end)
	if res.Status != domain.FetchOK {
		return res
	}

	if err := st.InsertBars(ctx, bars); err != nil {
		return domain.FetchResult{Code: code, Status: domain.FetchFailed, Err: err}
	}
	return res
}

func sleepJitter(ctx context.Context) {
	d := jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)+1))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
