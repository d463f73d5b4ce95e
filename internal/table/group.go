package table

// Group is one key tuple and the row positions that carry it
type Group struct {
	Key  []any
	Rows []int
}

// GroupBy partitions row positions by the values of the named columns.
// Groups come back in first-seen order. Rows with a null in any key column
// belong to no group.
func (t *Table) GroupBy(names ...string) ([]Group, error) {
	if err := t.Require(names...); err != nil {
		return nil, err
	}
	pos := make(map[string]int)
	var groups []Group
	for i := range t.rows {
		vals, ok := keyValues(t, i, names)
		if !ok {
			continue
		}
		k := key(vals)
		g, seen := pos[k]
		if !seen {
			g = len(groups)
			pos[k] = g
			groups = append(groups, Group{Key: vals})
		}
		groups[g].Rows = append(groups[g].Rows, i)
	}
	return groups, nil
}
