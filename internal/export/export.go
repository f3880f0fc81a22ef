package export

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"quantpipe/internal/store"
)

// Exporter materializes the consolidated daily table as one CSV per symbol
// and then shells out to the dataset conversion tool. Both output
// directories are hard-reset on every run so the result never mixes with a
// previous export.
type Exporter struct {
	Store          *store.SQLiteStore
	CSVDir         string
	OutDir         string
	SectorStrategy string
	TotalStrategy  string

	// DumpCommand is the conversion tool argv; the exporter appends its
	// own data-path and field flags. Empty means skip the conversion step.
	DumpCommand []string

	Log *slog.Logger
}

var csvHeader = []string{
	"date", "open", "close", "high", "low", "volume", "amount",
	"factor", "turnover", "sentiment", "sector_score", "total_score",
}

// Run exports every symbol and then runs the conversion tool.
func (e *Exporter) Run(ctx context.Context) error {
	n, err := e.WriteCSVs(ctx)
	if err != nil {
		return err
	}
	e.Log.Info("csv export finished", "symbols", n, "dir", e.CSVDir)

	if len(e.DumpCommand) == 0 {
		e.Log.Warn("no conversion command configured, skipping dump")
		return nil
	}
	return e.Dump(ctx)
}

// ---------------------------------------------------------------------------
// CSV materialization
// ---------------------------------------------------------------------------

type consolidatedRow struct {
	code string
	date string
	vals [10]float64 // open, close, high, low, volume, amount, turnover, sentiment, sector, total
}

// WriteCSVs scans the consolidated join and writes one CSV per symbol into
// CSVDir, returning the number of symbols written.
func (e *Exporter) WriteCSVs(ctx context.Context) (int, error) {
	for _, dir := range []string{e.CSVDir, e.OutDir} {
		if err := os.RemoveAll(dir); err != nil {
			return 0, fmt.Errorf("resetting %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	rows, err := e.Store.ConsolidatedRows(ctx, e.SectorStrategy, e.TotalStrategy)
	if err != nil {
		return 0, fmt.Errorf("querying consolidated rows: %w", err)
	}
	defer rows.Close()

	byCode, order, err := groupRows(rows)
	if err != nil {
		return 0, err
	}

	for _, code := range order {
		if err := e.writeSymbolCSV(code, byCode[code]); err != nil {
			return 0, err
		}
	}

	if err := e.sweepStray(); err != nil {
		return 0, err
	}
	return len(order), nil
}

// Column aliases, tried in order. The scan fails fast when a required
// field resolves to no column at all.
var columnAliases = map[string][]string{
	"ts_code":      {"ts_code", "symbol", "code"},
	"trade_date":   {"trade_date", "date"},
	"open":         {"open"},
	"close":        {"close"},
	"high":         {"high"},
	"low":          {"low"},
	"volume":       {"volume"},
	"amount":       {"amount"},
	"turnover":     {"turnover"},
	"sentiment":    {"sentiment"},
	"sector_score": {"sector_score"},
	"total_score":  {"total_score"},
}

// numericFields lists the float columns in CSV value order.
var numericFields = []string{
	"open", "close", "high", "low", "volume", "amount",
	"turnover", "sentiment", "sector_score", "total_score",
}

func resolveColumns(cols []string) (map[string]int, error) {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, ok := pos[c]; !ok {
			pos[c] = i
		}
	}

	resolved := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		found := -1
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("consolidated result has no column for %q (tried %s)",
				field, strings.Join(aliases, ", "))
		}
		resolved[field] = found
	}
	return resolved, nil
}

func groupRows(rows *sql.Rows) (map[string][]consolidatedRow, []string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	at, err := resolveColumns(cols)
	if err != nil {
		return nil, nil, err
	}

	byCode := make(map[string][]consolidatedRow)
	var order []string

	for rows.Next() {
		dest := make([]any, len(cols))
		var code, date string
		var vals [10]float64

		var discard any
		for i := range dest {
			dest[i] = &discard
		}
		dest[at["ts_code"]] = &code
		dest[at["trade_date"]] = &date
		for vi, f := range numericFields {
			dest[at[f]] = &vals[vi]
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scanning consolidated row: %w", err)
		}

		if _, seen := byCode[code]; !seen {
			order = append(order, code)
		}
		byCode[code] = append(byCode[code], consolidatedRow{code: code, date: date, vals: vals})
	}
	return byCode, order, rows.Err()
}

// sanitizeFilename makes a symbol code safe as a file name. Path separators
// would otherwise escape the export directory.
func sanitizeFilename(code string) string {
	code = strings.ReplaceAll(code, "/", "_")
	code = strings.ReplaceAll(code, "\\", "_")
	return strings.TrimSpace(code)
}

func (e *Exporter) writeSymbolCSV(code string, rows []consolidatedRow) error {
	name := sanitizeFilename(code)
	if name == "" {
		e.Log.Warn("skipping symbol with empty name after sanitization", "code", code)
		return nil
	}
	path := filepath.Join(e.CSVDir, name+".csv")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	record := make([]string, len(csvHeader))
	for _, r := range rows {
		record[0] = r.date
		for vi := 0; vi < 6; vi++ {
			record[vi+1] = strconv.FormatFloat(r.vals[vi], 'g', -1, 64)
		}
		// No corporate-action adjustment is modeled, so factor is constant.
		record[7] = "1.0"
		for vi := 6; vi < 10; vi++ {
			record[vi+2] = strconv.FormatFloat(r.vals[vi], 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// sweepStray removes any non-CSV file left in the export directory so the
// conversion tool never trips over partial downloads or editor droppings.
func (e *Exporter) sweepStray() error {
	entries, err := os.ReadDir(e.CSVDir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() || strings.HasSuffix(ent.Name(), ".csv") {
			continue
		}
		stray := filepath.Join(e.CSVDir, ent.Name())
		e.Log.Warn("removing stray file from export dir", "file", stray)
		if err := os.Remove(stray); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversion tool
// ---------------------------------------------------------------------------

// Dump invokes the dataset conversion tool over the exported CSVs. A
// non-zero exit is fatal: a half-converted dataset is worse than none.
func (e *Exporter) Dump(ctx context.Context) error {
	args := append([]string(nil), e.DumpCommand[1:]...)
	args = append(args,
		"--data_path", e.CSVDir,
		"--qlib_dir", e.OutDir,
		"--include_fields", strings.Join(csvHeader[1:], ","),
		"--date_field_name", "date",
		"--symbol_field_name", "symbol",
		"--file_suffix", ".csv",
	)

	cmd := exec.CommandContext(ctx, e.DumpCommand[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("conversion tool %q failed: %w (output: %s)",
			e.DumpCommand[0], err, strings.TrimSpace(string(out)))
	}

	e.Log.Info("conversion tool finished", "out_dir", e.OutDir)
	return nil
}
