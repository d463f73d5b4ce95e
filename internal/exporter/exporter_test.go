package exporter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/config"
	"valuepulse/internal/table"
)

func setupTestEnv(t *testing.T) (*config.Paths, *CSVWriter, *XLSXWriter) {
	t.Helper()
	dir := t.TempDir()
	paths := &config.Paths{DataDir: dir, ExportsDir: filepath.Join(dir, "exports")}
	return paths, NewCSVWriter(paths, nil), NewXLSXWriter(paths, nil)
}

func predictions(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.FromRecords(
		[]string{"player", "comp", "market_value", "prediction"},
		[][]any{
			{"Bukayo Saka", "Premier League", 120.0, 131.456},
			{"Jamal Musiala", "Bundesliga", 110.0, nil},
			{"Pedri", "La Liga", 80.0, 95.5},
		})
	require.NoError(t, err)
	return tbl
}

func TestCSVWriter_WriteTable(t *testing.T) {
	paths, w, _ := setupTestEnv(t)

	path, err := w.WriteTable("predictions.csv", predictions(t), WriteOptions{BOMPrefix: true})
	require.NoError(t, err)
	assert.Equal(t, paths.ExportPath("predictions.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, raw[:3])

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	back, err := table.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"player", "comp", "market_value", "prediction"}, back.Columns())
	assert.Equal(t, 3, back.Len())
	assert.Nil(t, back.Get(1, "prediction"))
}

func TestCSVWriter_Append(t *testing.T) {
	_, w, _ := setupTestEnv(t)
	abs := filepath.Join(t.TempDir(), "out.csv")

	_, err := w.WriteTable(abs, predictions(t), WriteOptions{})
	require.NoError(t, err)
	_, err = w.WriteTable(abs, predictions(t), WriteOptions{Append: true, BOMPrefix: true})
	require.NoError(t, err)

	f, err := os.Open(abs)
	require.NoError(t, err)
	defer f.Close()
	back, err := table.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, 6, back.Len(), "header is written once")
}

func TestXLSXWriter_RoundTrip(t *testing.T) {
	_, _, w := setupTestEnv(t)

	path, err := w.WriteTable("predictions.xlsx", predictions(t), XLSXOptions{Summary: true})
	require.NoError(t, err)

	data, err := ReadXLSX(path, DataSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"player", "comp", "market_value", "prediction"}, data.Columns())
	require.Equal(t, 3, data.Len())
	assert.Equal(t, "Bukayo Saka", data.Get(0, "player"))
	assert.Equal(t, 131.456, data.Get(0, "prediction"))
	assert.Nil(t, data.Get(1, "prediction"))

	summary, err := ReadXLSX(path, SummarySheet)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Len())
	assert.Equal(t, "market_value", summary.Get(0, "column"))
	assert.Equal(t, 3.0, summary.Get(0, "count"))
	assert.Equal(t, 103.33, summary.Get(0, "mean"))
	assert.Equal(t, 1.0, summary.Get(1, "nulls"))

	_, err = ReadXLSX(path, "missing")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestSummarize(t *testing.T) {
	s := Summarize(predictions(t))
	assert.Equal(t, []string{"column", "count", "nulls", "mean", "median", "min", "max"}, s.Columns())
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []any{"prediction", 2.0, 1.0, 113.48, 113.48, 95.5, 131.456}, s.Row(1))
}

func TestSaver(t *testing.T) {
	paths, cw, xw := setupTestEnv(t)

	_, err := NewSaver("parquet", cw, xw)
	assert.Error(t, err)

	tests := []struct {
		format Format
		want   string
	}{
		{FormatCSV, "values_predictions/attacking_predictions.csv"},
		{FormatXLSX, "values_predictions/attacking_predictions.xlsx"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			s, err := NewSaver(tt.format, cw, xw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.ExportName("values_predictions", "attacking_predictions.csv"))
			require.NoError(t, s.Save(context.Background(), predictions(t), "values_predictions", "attacking_predictions.csv"))
			assert.True(t, config.FileExists(paths.ExportPath(tt.want)))
		})
	}
}
