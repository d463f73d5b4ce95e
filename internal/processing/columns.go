package processing

import (
	"context"
	"strings"

	"valuepulse/internal/table"
)

// Rename renames columns by mapping
type Rename struct {
	Mapping map[string]string
}

func (p Rename) Name() string { return "rename" }

func (p Rename) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.Rename(p.Mapping)
}

// DropColumns removes columns. Missing columns are ignored.
type DropColumns struct {
	Columns []string
}

func (p DropColumns) Name() string { return "drop_columns" }

func (p DropColumns) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.Drop(p.Columns...), nil
}

// SelectColumns keeps only the listed columns, in order
type SelectColumns struct {
	Columns []string
}

func (p SelectColumns) Name() string { return "select_columns" }

func (p SelectColumns) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.Select(p.Columns...)
}

// FilterColumns drops every column whose name contains NotLike
type FilterColumns struct {
	NotLike string
}

func (p FilterColumns) Name() string { return "filter_columns" }

func (p FilterColumns) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if p.NotLike == "" {
		return t.Clone(), nil
	}
	var drop []string
	for _, c := range t.Columns() {
		if strings.Contains(c, p.NotLike) {
			drop = append(drop, c)
		}
	}
	return t.Drop(drop...), nil
}

// StripSuffix removes Suffix from every column name that ends with it
type StripSuffix struct {
	Suffix string
}

func (p StripSuffix) Name() string { return "strip_suffix" }

func (p StripSuffix) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.RenameFunc(func(name string) string {
		return strings.TrimSuffix(name, p.Suffix)
	})
}

// DropNA removes rows with a null in Subset, or in any column when Subset
// is empty.
type DropNA struct {
	Subset []string
}

func (p DropNA) Name() string { return "drop_na" }

func (p DropNA) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	return t.DropNulls(p.Subset...)
}

// FilterRows keeps rows where Column does not equal any of Exclude
type FilterRows struct {
	Column  string
	Exclude []any
}

func (p FilterRows) Name() string { return "filter_rows" }

func (p FilterRows) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require(p.Column); err != nil {
		return nil, err
	}
	return t.Filter(func(r table.Row) bool {
		v := r.Get(p.Column)
		for _, ex := range p.Exclude {
			if table.Equal(v, ex) {
				return false
			}
		}
		return true
	}), nil
}
