// Package domain defines the canonical record types shared by the
// ingestion, storage, and export stages.
package domain

// DailyBar is one normalized daily bar for a stock or index. All numeric
// fields are float64; TurnoverRate is in percent units (3.5 means 3.5%).
type DailyBar struct {
	Code         string // instrument code, e.g. "000001" or "SH000300"
	Date         string // trade date, YYYY-MM-DD
	Open         float64
	High         float64
	Low          float64
	Close        float64
	PrevClose    float64
	Change       float64
	PctChg       float64
	Volume       float64
	Amount       float64
	TurnoverRate float64
}

// Symbol is one entry from the instrument directory.
type Symbol struct {
	Code string
	Name string
}

// FactorScore is one derived-alpha score row, keyed by strategy name in
// addition to (code, date). Produced by external research collaborators.
type FactorScore struct {
	Code     string
	Date     string
	Strategy string
	Score    float64
}

// SentimentScore is one news-sentiment score row for (code, date). Multiple
// rows per key may exist; consumers average them.
type SentimentScore struct {
	Code  string
	Date  string
	Score float64
}

// FetchStatus classifies the outcome of one per-symbol unit of work.
type FetchStatus string

const (
	FetchOK     FetchStatus = "ok"
	FetchEmpty  FetchStatus = "empty"
	FetchFailed FetchStatus = "failed"
)

// FetchResult is the typed outcome of fetching and persisting one symbol.
// Failures carry their reason so coordinators and tests can inspect them
// instead of discarding them.
type FetchResult struct {
	Code   string
	Status FetchStatus
	Rows   int
	Err    error
}
