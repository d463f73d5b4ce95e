package table

import (
	"fmt"
	"sort"
)

// Row is a read-only view of one row, handed to predicates and row
// functions.
type Row struct {
	t *Table
	i int
}

// Index returns the row position in its table
func (r Row) Index() int { return r.i }

// Get returns the cell in column name, nil when the column is missing
func (r Row) Get(name string) any { return r.t.Get(r.i, name) }

// Float returns the numeric value of a cell
func (r Row) Float(name string) (float64, bool) { return ToFloat(r.Get(name)) }

// String returns the string form of a cell
func (r Row) String(name string) string { return ToString(r.Get(name)) }

// RowAt returns a view of row i
func (t *Table) RowAt(i int) Row { return Row{t: t, i: i} }

// Drop returns a table without the named columns. Missing names are
// ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Select returns a table with only the named columns in the given order
func (t *Table) Select(names ...string) (*Table, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	out := New(names...)
	idx := make([]int, len(out.columns))
	for j, c := range out.columns {
		idx[j] = t.index[c]
	}
	out.rows = make([][]any, len(t.rows))
	for i, row := range t.rows {
		nr := make([]any, len(idx))
		for j, k := range idx {
			nr[j] = row[k]
		}
		out.rows[i] = nr
	}
	return out, nil
}

// Rename returns a table with columns renamed by mapping. Names not in the
// mapping are kept.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	return t.RenameFunc(func(name string) string {
		if to, ok := mapping[name]; ok {
			return to
		}
		return name
	})
}

// RenameFunc returns a table with every column name passed through fn
func (t *Table) RenameFunc(fn func(string) string) (*Table, error) {
	names := make([]string, len(t.columns))
	seen := make(map[string]bool, len(t.columns))
	for j, c := range t.columns {
		n := fn(c)
		if seen[n] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, n)
		}
		seen[n] = true
		names[j] = n
	}
	out := t.Clone()
	out.columns = names
	out.index = make(map[string]int, len(names))
	for j, n := range names {
		out.index[n] = j
	}
	return out, nil
}

// Filter returns the rows for which keep returns true
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.columns...)
	for i, row := range t.rows {
		if keep(Row{t: t, i: i}) {
			out.rows = append(out.rows, append([]any(nil), row...))
		}
	}
	return out
}

// Take returns the rows at the given positions, in that order
func (t *Table) Take(positions []int) *Table {
	out := New(t.columns...)
	out.rows = make([][]any, 0, len(positions))
	for _, p := range positions {
		out.rows = append(out.rows, append([]any(nil), t.rows[p]...))
	}
	return out
}

// SortBy returns a copy stably sorted on one column. Nulls sort last in
// both directions.
func (t *Table) SortBy(name string, desc bool) (*Table, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	out := t.Clone()
	sort.SliceStable(out.rows, func(a, b int) bool {
		va, vb := out.rows[a][j], out.rows[b][j]
		if IsNull(va) || IsNull(vb) {
			return !IsNull(va) && IsNull(vb)
		}
		if desc {
			return Less(vb, va)
		}
		return Less(va, vb)
	})
	return out, nil
}

// Head returns the first n rows
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}
	return t.Take(positions)
}

// Unique returns the distinct non-null values of a column in first-seen
// order.
func (t *Table) Unique(name string) ([]any, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	seen := make(map[string]bool)
	var out []any
	for _, row := range t.rows {
		v := row[j]
		if IsNull(v) {
			continue
		}
		k := ToString(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out, nil
}

// DropNulls removes rows holding a null in any of the named columns, or in
// any column when none are named.
func (t *Table) DropNulls(names ...string) (*Table, error) {
	if len(names) == 0 {
		names = t.columns
	}
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	idx := make([]int, len(names))
	for k, n := range names {
		idx[k] = t.index[n]
	}
	out := New(t.columns...)
	for _, row := range t.rows {
		complete := true
		for _, j := range idx {
			if IsNull(row[j]) {
				complete = false
				break
			}
		}
		if complete {
			out.rows = append(out.rows, append([]any(nil), row...))
		}
	}
	return out, nil
}

// Concat stacks tables vertically. The result holds the union of columns in
// first-seen order; cells missing from a source are null.
func Concat(tables ...*Table) *Table {
	var names []string
	for _, t := range tables {
		if t != nil {
			names = append(names, t.columns...)
		}
	}
	out := New(names...)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.rows {
			nr := make([]any, len(out.columns))
			for j, c := range t.columns {
				nr[out.index[c]] = row[j]
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out
}
