package table

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNotFound is returned when an operation names a missing column
	ErrColumnNotFound = errors.New("column not found")
	// ErrEmptyTable is returned when an operation needs at least one row
	ErrEmptyTable = errors.New("table is empty")
	// ErrRowLength is returned when a row does not match the column count
	ErrRowLength = errors.New("row length does not match columns")
	// ErrDuplicateColumn is returned when a rename would collide
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Table holds rows of player-season observations under ordered, named
// columns. Cells are nil, float64, string or bool.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty table with the given columns
func New(columns ...string) *Table {
	t := &Table{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t
}

// FromRecords builds a table from a header and row values
func FromRecords(header []string, records [][]any) (*Table, error) {
	t := New(header...)
	if len(t.columns) != len(header) {
		return nil, fmt.Errorf("%w: header has repeated names", ErrDuplicateColumn)
	}
	for i, rec := range records {
		if err := t.AppendRow(rec...); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return t, nil
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns
func (t *Table) Width() int { return len(t.columns) }

// Empty reports whether the table has no rows
func (t *Table) Empty() bool { return len(t.rows) == 0 }

// Columns returns a copy of the column names in order
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Require returns ErrColumnNotFound naming the first missing column
func (t *Table) Require(names ...string) error {
	for _, n := range names {
		if !t.HasColumn(n) {
			return fmt.Errorf("%w: %q", ErrColumnNotFound, n)
		}
	}
	return nil
}

// AppendRow adds a row. Values are normalised to the cell representation.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrRowLength, len(values), len(t.columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Normalize(v)
	}
	t.rows = append(t.rows, row)
	return nil
}

// AddColumn appends a column filled with fill. Existing columns are left
// untouched.
func (t *Table) AddColumn(name string, fill any) {
	if t.HasColumn(name) {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	fill = Normalize(fill)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], fill)
	}
}

// Get returns the cell at row i in column name, or nil when the column is
// missing.
func (t *Table) Get(i int, name string) any {
	j, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.rows[i][j]
}

// Set writes a cell, creating the column when needed
func (t *Table) Set(i int, name string, v any) {
	if !t.HasColumn(name) {
		t.AddColumn(name, nil)
	}
	t.rows[i][t.index[name]] = Normalize(v)
}

// Row returns a copy of row i
func (t *Table) Row(i int) []any {
	out := make([]any, len(t.columns))
	copy(out, t.rows[i])
	return out
}

// Column returns a copy of the values in a column
func (t *Table) Column(name string) ([]any, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Floats returns the numeric values of a column; valid[i] is false for
// nulls and non-numeric cells.
func (t *Table) Floats(name string) (values []float64, valid []bool, err error) {
	j, ok := t.index[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	values = make([]float64, len(t.rows))
	valid = make([]bool, len(t.rows))
	for i, row := range t.rows {
		values[i], valid[i] = ToFloat(row[j])
	}
	return values, valid, nil
}

// SetColumn replaces or appends a whole column
func (t *Table) SetColumn(name string, values []any) error {
	if len(values) != len(t.rows) {
		return fmt.Errorf("%w: column %q has %d values for %d rows", ErrRowLength, name, len(values), len(t.rows))
	}
	t.AddColumn(name, nil)
	j := t.index[name]
	for i := range t.rows {
		t.rows[i][j] = Normalize(values[i])
	}
	return nil
}

// IsNumeric reports whether every non-null cell of the column is a number
// and at least one is present.
func (t *Table) IsNumeric(name string) bool {
	j, ok := t.index[name]
	if !ok {
		return false
	}
	seen := false
	for _, row := range t.rows {
		v := row[j]
		if IsNull(v) {
			continue
		}
		if _, isNum := numeric(v); !isNum {
			return false
		}
		seen = true
	}
	return seen
}

// NullCount returns the number of missing cells in a column
func (t *Table) NullCount(name string) int {
	j, ok := t.index[name]
	if !ok {
		return 0
	}
	n := 0
	for _, row := range t.rows {
		if IsNull(row[j]) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	c := New(t.columns...)
	c.rows = make([][]any, len(t.rows))
	for i, row := range t.rows {
		c.rows[i] = append([]any(nil), row...)
	}
	return c
}

// Records returns the rows as string slices, header first
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, t.Columns())
	for _, row := range t.rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = ToString(v)
		}
		out = append(out, rec)
	}
	return out
}
