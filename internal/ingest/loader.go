package ingest

import (
	"context"
	"sort"

	"quantpipe/internal/domain"
)

// LoadHistory fetches and normalizes one symbol's daily history. The typed
// result distinguishes "no data" from failure so the coordinator can tally
// both without treating either as fatal.
func LoadHistory(ctx context.Context, p MarketData, code, start, end string) ([]domain.DailyBar, domain.FetchResult) {
	bars, err := p.History(ctx, code, start, end)
	if err != nil {
		return nil, domain.FetchResult{Code: code, Status: domain.FetchFailed, Err: err}
	}
	if len(bars) == 0 {
		return nil, domain.FetchResult{Code: code, Status: domain.FetchEmpty}
	}

	bars = Normalize(code, bars)
	return bars, domain.FetchResult{Code: code, Status: domain.FetchOK, Rows: len(bars)}
}

// Normalize stamps the code on every row, orders the set chronologically,
// and derives previous-close: the prior row's close, or the row's own open
// for the first row of the series.
func Normalize(code string, bars []domain.DailyBar) []domain.DailyBar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date < bars[j].Date
	})

	for i := range bars {
		bars[i].Code = code
		if i == 0 {
			bars[i].PrevClose = bars[i].Open
		} else {
			bars[i].PrevClose = bars[i-1].Close
		}
	}
	return bars
}
