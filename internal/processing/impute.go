package processing

import (
	"context"
	"fmt"
	"strings"

	"valuepulse/internal/statistics"
	"valuepulse/internal/table"
)

// Strategy selects the group statistic used to fill nulls
type Strategy string

const (
	StrategyMean   Strategy = "mean"
	StrategyMedian Strategy = "median"
)

func (s Strategy) apply(values []float64) (float64, error) {
	switch s {
	case StrategyMean:
		return statistics.Mean(values)
	case StrategyMedian, "":
		return statistics.Median(values)
	}
	return 0, fmt.Errorf("%w: strategy %q", ErrInvalidParams, s)
}

// ConditionImputer writes Value where the first feature equals Condition.
// With two features the second column receives the value; with one the
// matching cells themselves are replaced.
type ConditionImputer struct {
	Features  []string
	Condition any
	Value     any
}

func (p ConditionImputer) Name() string {
	return "condition_imputer(" + strings.Join(p.Features, ",") + ")"
}

func (p ConditionImputer) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if len(p.Features) == 0 || len(p.Features) > 2 {
		return nil, fmt.Errorf("%w: condition imputer needs one or two features", ErrInvalidParams)
	}
	if err := t.Require(p.Features...); err != nil {
		return nil, err
	}
	source, target := p.Features[0], p.Features[0]
	if len(p.Features) == 2 {
		target = p.Features[1]
	}
	out := t.Clone()
	for i := 0; i < out.Len(); i++ {
		if table.Equal(out.Get(i, source), p.Condition) {
			out.Set(i, target, p.Value)
		}
	}
	return out, nil
}

// GroupbyImputer fills nulls in each feature with the mean or median of the
// feature within its group. Rows whose group key is null, or whose group
// has no values, stay null.
type GroupbyImputer struct {
	Features []string
	GroupBy  []string
	Strategy Strategy
}

func (p GroupbyImputer) Name() string {
	return "groupby_imputer(" + strings.Join(p.Features, ",") + ")"
}

func (p GroupbyImputer) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if len(p.GroupBy) == 0 {
		return nil, fmt.Errorf("%w: groupby imputer needs group columns", ErrInvalidParams)
	}
	if err := t.Require(p.Features...); err != nil {
		return nil, err
	}
	groups, err := t.GroupBy(p.GroupBy...)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, feature := range p.Features {
		if err := fillByGroup(out, feature, groups, p.Strategy); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func fillByGroup(t *table.Table, feature string, groups []table.Group, strategy Strategy) error {
	for _, g := range groups {
		var values []float64
		var missing []int
		for _, i := range g.Rows {
			v := t.Get(i, feature)
			if table.IsNull(v) {
				missing = append(missing, i)
				continue
			}
			if f, ok := table.ToFloat(v); ok {
				values = append(values, f)
			}
		}
		if len(missing) == 0 || len(values) == 0 {
			continue
		}
		fill, err := strategy.apply(values)
		if err != nil {
			return err
		}
		for _, i := range missing {
			t.Set(i, feature, fill)
		}
	}
	return nil
}

// FillnaImputer fills nulls in each feature. ColumnFill copies from another
// column, Method "mode" uses the most frequent value, otherwise Value is
// used.
type FillnaImputer struct {
	Features   []string
	Value      any
	ColumnFill string
	Method     string
}

func (p FillnaImputer) Name() string {
	return "fillna_imputer(" + strings.Join(p.Features, ",") + ")"
}

func (p FillnaImputer) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require(p.Features...); err != nil {
		return nil, err
	}
	out := t.Clone()
	switch {
	case p.ColumnFill != "" && p.Value == nil:
		if err := t.Require(p.ColumnFill); err != nil {
			return nil, err
		}
		for _, f := range p.Features {
			for i := 0; i < out.Len(); i++ {
				if table.IsNull(out.Get(i, f)) {
					out.Set(i, f, out.Get(i, p.ColumnFill))
				}
			}
		}
	case p.Method != "":
		if p.Method != "mode" {
			return nil, fmt.Errorf("%w: fill method %q", ErrInvalidParams, p.Method)
		}
		for _, f := range p.Features {
			col, _ := out.Column(f)
			mode := Mode(col)
			if mode == nil {
				continue
			}
			fillNulls(out, f, mode)
		}
	default:
		if p.Value == nil {
			return nil, fmt.Errorf("%w: fillna imputer needs a value, column or method", ErrInvalidParams)
		}
		for _, f := range p.Features {
			fillNulls(out, f, p.Value)
		}
	}
	return out, nil
}

func fillNulls(t *table.Table, column string, v any) {
	for i := 0; i < t.Len(); i++ {
		if table.IsNull(t.Get(i, column)) {
			t.Set(i, column, v)
		}
	}
}

// Mode returns the most frequent non-null value. Ties resolve to the
// smallest value.
func Mode(values []any) any {
	counts := make(map[string]int)
	first := make(map[string]any)
	for _, v := range values {
		if table.IsNull(v) {
			continue
		}
		k := table.ToString(v)
		counts[k]++
		if _, ok := first[k]; !ok {
			first[k] = v
		}
	}
	var best any
	bestCount := 0
	for k, n := range counts {
		v := first[k]
		if n > bestCount || (n == bestCount && table.Less(v, best)) {
			best, bestCount = v, n
		}
	}
	return best
}

// CustomImputer fills every numeric column that has nulls using the group
// statistic over GroupBy.
type CustomImputer struct {
	GroupBy  []string
	Strategy Strategy
}

func (p CustomImputer) Name() string { return "custom_imputer" }

func (p CustomImputer) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	skip := make(map[string]bool, len(p.GroupBy))
	for _, g := range p.GroupBy {
		skip[g] = true
	}
	var features []string
	for _, c := range t.Columns() {
		if !skip[c] && t.NullCount(c) > 0 && t.IsNumeric(c) {
			features = append(features, c)
		}
	}
	if len(features) == 0 {
		return t.Clone(), nil
	}
	return GroupbyImputer{Features: features, GroupBy: p.GroupBy, Strategy: p.Strategy}.Transform(ctx, t)
}

// BoolImputer writes Value into null Feature cells on rows whose
// ConditionColumn is truthy and matches Condition.
type BoolImputer struct {
	Feature         string
	ConditionColumn string
	Condition       bool
	Value           any
}

func (p BoolImputer) Name() string { return "bool_imputer(" + p.Feature + ")" }

func (p BoolImputer) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if err := t.Require(p.Feature, p.ConditionColumn); err != nil {
		return nil, err
	}
	out := t.Clone()
	for i := 0; i < out.Len(); i++ {
		if !table.IsNull(out.Get(i, p.Feature)) {
			continue
		}
		if Truthy(out.Get(i, p.ConditionColumn)) == p.Condition {
			out.Set(i, p.Feature, p.Value)
		}
	}
	return out, nil
}

// Truthy interprets flag cells written as bools, numbers or "True"/"False"
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true
		}
		return false
	}
	f, ok := table.ToFloat(v)
	return ok && f != 0
}
