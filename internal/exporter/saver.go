package exporter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"valuepulse/internal/table"
)

// Format selects the exported file type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Saver writes tables to <exports>/<bucket>/<blob> in a spreadsheet
// friendly format. The blob extension is replaced to match the format.
type Saver struct {
	Format  Format
	Summary bool
	csv     *CSVWriter
	xlsx    *XLSXWriter
}

// NewSaver creates a saver backed by both writers
func NewSaver(format Format, csvWriter *CSVWriter, xlsxWriter *XLSXWriter) (*Saver, error) {
	switch format {
	case FormatCSV, FormatXLSX:
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return &Saver{Format: format, csv: csvWriter, xlsx: xlsxWriter}, nil
}

// ExportName returns the relative export path for bucket/blob
func (s *Saver) ExportName(bucket, blob string) string {
	base := strings.TrimSuffix(blob, filepath.Ext(blob))
	return filepath.Join(bucket, base+"."+string(s.Format))
}

// Save implements storage.Saver
func (s *Saver) Save(ctx context.Context, t *table.Table, bucket, blob string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := s.ExportName(bucket, blob)
	var err error
	switch s.Format {
	case FormatXLSX:
		_, err = s.xlsx.WriteTable(name, t, XLSXOptions{Summary: s.Summary})
	default:
		_, err = s.csv.WriteTable(name, t, WriteOptions{BOMPrefix: true})
	}
	return err
}
