package processing

import (
	"context"
	"fmt"
	"math"

	"valuepulse/internal/table"
)

// RowFunc computes a cell from a row
type RowFunc func(r table.Row) any

// Apply writes Fn's result for every row into Column, creating it when
// needed.
type Apply struct {
	Column string
	Fn     RowFunc
}

func (p Apply) Name() string { return "apply(" + p.Column + ")" }

func (p Apply) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if p.Fn == nil {
		return nil, fmt.Errorf("%w: apply %s has no function", ErrInvalidParams, p.Column)
	}
	values := make([]any, t.Len())
	for i := range values {
		values[i] = p.Fn(t.RowAt(i))
	}
	out := t.Clone()
	if err := out.SetColumn(p.Column, values); err != nil {
		return nil, err
	}
	return out, nil
}

// LogMethod selects the logarithm used by LogTransformer
type LogMethod string

const (
	LogNatural LogMethod = "log"
	Log10      LogMethod = "log10"
	Log1p      LogMethod = "log1p"
)

// LogTransformer log-transforms numeric columns, or applies the inverse
// when Inverse is set. Non-numeric and out-of-domain cells become null.
type LogTransformer struct {
	Columns []string
	Method  LogMethod
	Inverse bool
}

func (p LogTransformer) Name() string { return "log_transformer(" + string(p.Method) + ")" }

func (p LogTransformer) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	fn, err := p.fn()
	if err != nil {
		return nil, err
	}
	if err := t.Require(p.Columns...); err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, c := range p.Columns {
		for i := 0; i < out.Len(); i++ {
			f, ok := table.ToFloat(out.Get(i, c))
			if !ok {
				out.Set(i, c, nil)
				continue
			}
			r := fn(f)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				out.Set(i, c, nil)
				continue
			}
			out.Set(i, c, r)
		}
	}
	return out, nil
}

func (p LogTransformer) fn() (func(float64) float64, error) {
	switch p.Method {
	case LogNatural, "":
		if p.Inverse {
			return math.Exp, nil
		}
		return math.Log, nil
	case Log10:
		if p.Inverse {
			return func(x float64) float64 { return math.Pow(10, x) }, nil
		}
		return math.Log10, nil
	case Log1p:
		if p.Inverse {
			return math.Expm1, nil
		}
		return math.Log1p, nil
	}
	return nil, fmt.Errorf("%w: log method %q", ErrInvalidParams, p.Method)
}
