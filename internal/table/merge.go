package table

import (
	"fmt"
)

// DefaultSuffixes are applied to overlapping column names when no suffixes
// are given.
var DefaultSuffixes = [2]string{"_x", "_y"}

// MergeOptions configures an inner join. Either On names key columns
// present in both tables, or LeftOn and RightOn pair them up positionally.
type MergeOptions struct {
	On       []string
	LeftOn   []string
	RightOn  []string
	Suffixes [2]string
}

func (o MergeOptions) keys() (left, right []string, err error) {
	if len(o.On) > 0 {
		return o.On, o.On, nil
	}
	if len(o.LeftOn) == 0 || len(o.LeftOn) != len(o.RightOn) {
		return nil, nil, fmt.Errorf("merge needs On or equally sized LeftOn/RightOn")
	}
	return o.LeftOn, o.RightOn, nil
}

// Merge inner-joins left and right. Output rows follow left order, then
// right order within a key. Key columns that share a name on both sides
// appear once; every other overlapping name gets the left or right suffix.
// Rows with a null key never match.
func Merge(left, right *Table, opts MergeOptions) (*Table, error) {
	lk, rk, err := opts.keys()
	if err != nil {
		return nil, err
	}
	if err := left.Require(lk...); err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	if err := right.Require(rk...); err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}
	suffixes := opts.Suffixes
	if suffixes[0] == "" && suffixes[1] == "" {
		suffixes = DefaultSuffixes
	}

	// right key columns merged into the left one of the same name
	shared := make(map[string]bool)
	for i := range lk {
		if lk[i] == rk[i] {
			shared[rk[i]] = true
		}
	}
	var rightCols []string
	for _, c := range right.columns {
		if !shared[c] {
			rightCols = append(rightCols, c)
		}
	}
	overlap := make(map[string]bool)
	for _, c := range rightCols {
		if left.HasColumn(c) {
			overlap[c] = true
		}
	}

	names := make([]string, 0, len(left.columns)+len(rightCols))
	for _, c := range left.columns {
		if overlap[c] {
			c += suffixes[0]
		}
		names = append(names, c)
	}
	for _, c := range rightCols {
		if overlap[c] {
			c += suffixes[1]
		}
		names = append(names, c)
	}
	out := New(names...)
	if len(out.columns) != len(names) {
		return nil, fmt.Errorf("%w: suffixes %q produce colliding names", ErrDuplicateColumn, suffixes)
	}

	rightIdx := make([]int, len(rightCols))
	for j, c := range rightCols {
		rightIdx[j] = right.index[c]
	}
	buckets := make(map[string][]int)
	for i := range right.rows {
		vals, ok := keyValues(right, i, rk)
		if !ok {
			continue
		}
		k := key(vals)
		buckets[k] = append(buckets[k], i)
	}
	for i, lrow := range left.rows {
		vals, ok := keyValues(left, i, lk)
		if !ok {
			continue
		}
		for _, ri := range buckets[key(vals)] {
			row := make([]any, 0, len(names))
			row = append(row, lrow...)
			for _, j := range rightIdx {
				row = append(row, right.rows[ri][j])
			}
			out.rows = append(out.rows, row)
		}
	}
	return out, nil
}

func keyValues(t *Table, i int, cols []string) ([]any, bool) {
	vals := make([]any, len(cols))
	for k, c := range cols {
		v := t.rows[i][t.index[c]]
		if IsNull(v) {
			return nil, false
		}
		vals[k] = v
	}
	return vals, true
}
