package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// nullTokens are read as missing values
var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// ParseCell turns a raw CSV field into a cell: nulls for missing tokens,
// float64 for numbers, the trimmed string otherwise.
func ParseCell(raw string) any {
	s := strings.TrimSpace(raw)
	if nullTokens[s] {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ReadCSV reads a header row followed by records. A leading UTF-8 BOM is
// skipped. Short or long records are rejected.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := New(header...)
	if len(t.columns) != len(header) {
		return nil, fmt.Errorf("%w in CSV header", ErrDuplicateColumn)
	}

	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		row := make([]any, len(rec))
		for j, field := range rec {
			row[j] = ParseCell(field)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// WriteCSV writes the header and every row. Nulls become empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	for _, rec := range t.Records() {
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
