package store

import (
	"context"
	"database/sql"
	"fmt"

	"quantpipe/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ BarStore = (*SQLiteStore)(nil)
var _ FactorStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore and FactorStore backed by a SQLite
// database. The schema is created on open, so a fresh path is immediately
// usable.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS stock_daily (
	ts_code       TEXT NOT NULL,
	trade_date    TEXT NOT NULL,
	open          REAL NOT NULL DEFAULT 0,
	high          REAL NOT NULL DEFAULT 0,
	low           REAL NOT NULL DEFAULT 0,
	close         REAL NOT NULL DEFAULT 0,
	pre_close     REAL NOT NULL DEFAULT 0,
	change        REAL NOT NULL DEFAULT 0,
	pct_chg       REAL NOT NULL DEFAULT 0,
	vol           REAL NOT NULL DEFAULT 0,
	amount        REAL NOT NULL DEFAULT 0,
	turnover_rate REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (ts_code, trade_date)
);

CREATE TABLE IF NOT EXISTS stock_daily_alpha (
	ts_code       TEXT NOT NULL,
	trade_date    TEXT NOT NULL,
	strategy_name TEXT NOT NULL,
	alpha_score   REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (ts_code, trade_date, strategy_name)
);

CREATE TABLE IF NOT EXISTS stock_news_sentiment (
	ts_code    TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	score      REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sentiment_key
	ON stock_news_sentiment (ts_code, trade_date);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use store. Multiple stores may target the
// same path concurrently; WAL mode and a busy timeout keep concurrent
// writers from failing on lock contention.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

const insertBarSQL = `INSERT OR REPLACE INTO stock_daily
	(ts_code, trade_date, open, high, low, close, pre_close, change, pct_chg, vol, amount, turnover_rate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBars persists a batch of bars in one transaction. INSERT OR REPLACE
// keeps (ts_code, trade_date) unique: re-ingestion replaces, never
// duplicates.
func (s *SQLiteStore) InsertBars(ctx context.Context, bars []domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertBarSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Code, b.Date, b.Open, b.High, b.Low, b.Close,
			b.PrevClose, b.Change, b.PctChg, b.Volume, b.Amount, b.TurnoverRate,
		); err != nil {
			return fmt.Errorf("inserting bar %s/%s: %w", b.Code, b.Date, err)
		}
	}

	return tx.Commit()
}

// ReplaceBars deletes all rows for code and inserts bars atomically.
func (s *SQLiteStore) ReplaceBars(ctx context.Context, code string, bars []domain.DailyBar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stock_daily WHERE ts_code = ?", code); err != nil {
		return fmt.Errorf("deleting bars for %s: %w", code, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertBarSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Code, b.Date, b.Open, b.High, b.Low, b.Close,
			b.PrevClose, b.Change, b.PctChg, b.Volume, b.Amount, b.TurnoverRate,
		); err != nil {
			return fmt.Errorf("inserting bar %s/%s: %w", b.Code, b.Date, err)
		}
	}

	return tx.Commit()
}

// TruncateBars removes every row from the daily bar table. Run once at the
// start of a full backfill so the whole run is idempotent.
func (s *SQLiteStore) TruncateBars(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM stock_daily")
	return err
}

// CountBarsOn returns the number of bar rows on the given trade date. The
// incremental updater uses this as its duplicate-replay guard.
func (s *SQLiteStore) CountBarsOn(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stock_daily WHERE trade_date = ?", date).Scan(&n)
	return n, err
}

// CountBars returns the total number of bar rows.
func (s *SQLiteStore) CountBars(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_daily").Scan(&n)
	return n, err
}

// ListCodes returns all distinct instrument codes in the daily bar table.
func (s *SQLiteStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT ts_code FROM stock_daily ORDER BY ts_code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ReadBars returns all bars for code ordered by date ascending.
func (s *SQLiteStore) ReadBars(ctx context.Context, code string) ([]domain.DailyBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_code, trade_date, open, high, low, close, pre_close, change, pct_chg, vol, amount, turnover_rate
		FROM stock_daily WHERE ts_code = ? ORDER BY trade_date ASC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.DailyBar
	for rows.Next() {
		var b domain.DailyBar
		if err := rows.Scan(&b.Code, &b.Date, &b.Open, &b.High, &b.Low, &b.Close,
			&b.PrevClose, &b.Change, &b.PctChg, &b.Volume, &b.Amount, &b.TurnoverRate); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ---------------------------------------------------------------------------
// FactorStore implementation
// ---------------------------------------------------------------------------

// InsertFactorScores persists derived-alpha scores in one transaction.
func (s *SQLiteStore) InsertFactorScores(ctx context.Context, scores []domain.FactorScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO stock_daily_alpha
		(ts_code, trade_date, strategy_name, alpha_score) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range scores {
		if _, err := stmt.ExecContext(ctx, f.Code, f.Date, f.Strategy, f.Score); err != nil {
			return fmt.Errorf("inserting factor %s/%s/%s: %w", f.Code, f.Date, f.Strategy, err)
		}
	}

	return tx.Commit()
}

// InsertSentimentScores appends news-sentiment scores. Multiple rows per
// (code, date) are allowed; the consolidation query averages them.
func (s *SQLiteStore) InsertSentimentScores(ctx context.Context, scores []domain.SentimentScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stock_news_sentiment
		(ts_code, trade_date, score) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, sc.Code, sc.Date, sc.Score); err != nil {
			return fmt.Errorf("inserting sentiment %s/%s: %w", sc.Code, sc.Date, err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Consolidation query
// ---------------------------------------------------------------------------

const consolidatedSQL = `
SELECT
	b.ts_code                       AS ts_code,
	b.trade_date                    AS trade_date,
	b.open                          AS open,
	b.close                         AS close,
	b.high                          AS high,
	b.low                           AS low,
	b.vol                           AS volume,
	b.amount                        AS amount,
	IFNULL(b.turnover_rate, 0)      AS turnover,
	IFNULL(sent.avg_score, 0)       AS sentiment,
	IFNULL(sector.alpha_score, 0)   AS sector_score,
	IFNULL(total.alpha_score, 0)    AS total_score
FROM stock_daily b
LEFT JOIN (
	SELECT ts_code, trade_date, AVG(score) AS avg_score
	FROM stock_news_sentiment
	GROUP BY ts_code, trade_date
) sent ON b.ts_code = sent.ts_code AND b.trade_date = sent.trade_date
LEFT JOIN (
	SELECT ts_code, trade_date, alpha_score
	FROM stock_daily_alpha
	WHERE strategy_name = ?
) sector ON b.ts_code = sector.ts_code AND b.trade_date = sector.trade_date
LEFT JOIN (
	SELECT ts_code, trade_date, alpha_score
	FROM stock_daily_alpha
	WHERE strategy_name = ?
) total ON b.ts_code = total.ts_code AND b.trade_date = total.trade_date
ORDER BY b.trade_date ASC, b.ts_code ASC`

// ConsolidatedRows runs the three-way left join of daily bars against
// averaged sentiment and the two named factor strategies, ordered by date.
// Unmatched auxiliary rows resolve to zero; a bar row is never dropped. The
// caller owns the returned rows.
func (s *SQLiteStore) ConsolidatedRows(ctx context.Context, sectorStrategy, totalStrategy string) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, consolidatedSQL, sectorStrategy, totalStrategy)
}
