package exporter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"valuepulse/internal/config"
	"valuepulse/internal/statistics"
	"valuepulse/internal/table"
)

// Sheet names used by exported workbooks
const (
	DataSheet    = "data"
	SummarySheet = "summary"
)

// ErrSheetNotFound is returned when a workbook has no sheet of that name
var ErrSheetNotFound = errors.New("sheet not found")

// XLSXWriter writes tables to Excel workbooks
type XLSXWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewXLSXWriter creates a workbook writer rooted at the exports directory
func NewXLSXWriter(paths *config.Paths, logger *slog.Logger) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXWriter{paths: paths, logger: logger.With(slog.String("component", "xlsx_exporter"))}
}

// XLSXOptions configures a workbook export
type XLSXOptions struct {
	// Summary adds a sheet with per-column statistics of numeric columns
	Summary bool
}

// WriteTable writes t to the data sheet of a new workbook at filePath and
// returns the resolved path.
func (w *XLSXWriter) WriteTable(filePath string, t *table.Table, opts XLSXOptions) (string, error) {
	fullPath := filePath
	if !filepath.IsAbs(fullPath) && w.paths != nil {
		fullPath = w.paths.ExportPath(filePath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return "", fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeSheet(f, DataSheet, t); err != nil {
		return "", err
	}
	if opts.Summary {
		if _, err := f.NewSheet(SummarySheet); err != nil {
			return "", fmt.Errorf("failed to add summary sheet: %w", err)
		}
		if err := writeSheet(f, SummarySheet, Summarize(t)); err != nil {
			return "", err
		}
	}
	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("Wrote workbook",
		slog.String("file_path", fullPath),
		slog.Int("record_count", t.Len()),
		slog.Bool("summary", opts.Summary))
	return fullPath, nil
}

// writeSheet streams the header in bold followed by every row
func writeSheet(f *excelize.File, sheet string, t *table.Table) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}

	columns := t.Columns()
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = excelize.Cell{StyleID: bold, Value: c}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for r := 0; r < t.Len(); r++ {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, t.Row(r)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	return sw.Flush()
}

// ReadXLSX loads one sheet of a workbook. The first row is the header and
// cells are parsed like CSV fields.
func ReadXLSX(filePath, sheet string) (*table.Table, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return table.New(), nil
	}
	out := table.New(rows[0]...)
	width := len(rows[0])
	for _, row := range rows[1:] {
		// GetRows trims trailing empty cells
		values := make([]any, width)
		for i := 0; i < width && i < len(row); i++ {
			values[i] = table.ParseCell(row[i])
		}
		if err := out.AppendRow(values...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Summarize describes every numeric column: count, nulls, mean, median,
// min and max, rounded to two decimals.
func Summarize(t *table.Table) *table.Table {
	out := table.New("column", "count", "nulls", "mean", "median", "min", "max")
	for _, c := range t.Columns() {
		if !t.IsNumeric(c) {
			continue
		}
		values, valid, err := t.Floats(c)
		if err != nil {
			continue
		}
		var xs []float64
		for i, v := range values {
			if valid[i] {
				xs = append(xs, v)
			}
		}
		row := []any{c, float64(len(xs)), float64(t.Len() - len(xs)), nil, nil, nil, nil}
		if len(xs) > 0 {
			mean, _ := statistics.Mean(xs)
			median, _ := statistics.Median(xs)
			lo, hi := xs[0], xs[0]
			for _, x := range xs[1:] {
				lo, hi = min(lo, x), max(hi, x)
			}
			row[3] = statistics.Round(mean, 2)
			row[4] = statistics.Round(median, 2)
			row[5], row[6] = lo, hi
		}
		_ = out.AppendRow(row...)
	}
	return out
}
