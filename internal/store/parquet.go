package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"quantpipe/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (collaborator file schema)
// ---------------------------------------------------------------------------

// FactorRecord is the Parquet schema for derived-alpha score files produced
// by the research side.
type FactorRecord struct {
	Code     string  `parquet:"ts_code"`
	Date     string  `parquet:"trade_date"`
	Strategy string  `parquet:"strategy_name"`
	Score    float64 `parquet:"alpha_score"`
}

// SentimentRecord is the Parquet schema for news-sentiment score files.
type SentimentRecord struct {
	Code  string  `parquet:"ts_code"`
	Date  string  `parquet:"trade_date"`
	Score float64 `parquet:"score"`
}

// ReadFactorFile reads one collaborator factor file into domain records.
func ReadFactorFile(path string) ([]domain.FactorScore, error) {
	records, err := parquet.ReadFile[FactorRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading factor file %s: %w", path, err)
	}

	scores := make([]domain.FactorScore, len(records))
	for i, r := range records {
		scores[i] = domain.FactorScore{
			Code:     r.Code,
			Date:     r.Date,
			Strategy: r.Strategy,
			Score:    r.Score,
		}
	}
	return scores, nil
}

// ReadSentimentFile reads one collaborator sentiment file into domain records.
func ReadSentimentFile(path string) ([]domain.SentimentScore, error) {
	records, err := parquet.ReadFile[SentimentRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading sentiment file %s: %w", path, err)
	}

	scores := make([]domain.SentimentScore, len(records))
	for i, r := range records {
		scores[i] = domain.SentimentScore{
			Code:  r.Code,
			Date:  r.Date,
			Score: r.Score,
		}
	}
	return scores, nil
}

// ListParquetFiles returns the sorted *.parquet paths directly under dir. A
// missing directory yields an empty list.
func ListParquetFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", dir, err)
	}
	return matches, nil
}

// writeParquetFile writes records to path, creating parent directories.
// Used by tests and fixture tooling.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
