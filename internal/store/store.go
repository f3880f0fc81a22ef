// Package store persists the daily-bar table and the auxiliary factor and
// sentiment tables, and reads the consolidated join used by the exporter.
package store

import (
	"context"

	"quantpipe/internal/domain"
)

// BarStore persists and retrieves daily bar data. Each ingestion worker
// opens its own BarStore; handles are never shared across goroutines.
type BarStore interface {
	// InsertBars persists a batch of bars, replacing any existing row with
	// the same (code, date) key.
	InsertBars(ctx context.Context, bars []domain.DailyBar) error

	// ReplaceBars deletes all rows for code and inserts bars in one
	// transaction. Other codes are untouched.
	ReplaceBars(ctx context.Context, code string, bars []domain.DailyBar) error

	// TruncateBars removes every row from the daily bar table.
	TruncateBars(ctx context.Context) error

	// CountBarsOn returns the number of bar rows on the given trade date.
	CountBarsOn(ctx context.Context, date string) (int, error)

	// ReadBars returns all bars for code ordered by date ascending.
	ReadBars(ctx context.Context, code string) ([]domain.DailyBar, error)

	// Close releases the underlying connection.
	Close() error
}

// FactorStore persists the auxiliary tables owned by research collaborators.
type FactorStore interface {
	// InsertFactorScores persists derived-alpha scores, replacing rows with
	// the same (code, date, strategy) key.
	InsertFactorScores(ctx context.Context, scores []domain.FactorScore) error

	// InsertSentimentScores appends news-sentiment scores.
	InsertSentimentScores(ctx context.Context, scores []domain.SentimentScore) error
}
