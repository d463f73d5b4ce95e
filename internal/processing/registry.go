package processing

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a processor from definition parameters
type Factory func(params Params) (Processor, error)

// Registry maps step kinds to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry creates a registry preloaded with the generic step library
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	registerBuiltins(r)
	return r
}

// Register adds a factory. Registering a kind twice is an error.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" {
		return fmt.Errorf("step kind cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("factory for %s cannot be nil", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("step kind %s already registered", kind)
	}
	r.factories[kind] = f
	r.order = append(r.order, kind)
	return nil
}

// Build creates a processor of the given kind
func (r *Registry) Build(kind string, params Params) (Processor, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, kind)
	}
	p, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", kind, err)
	}
	return p, nil
}

// Has reports whether a kind is registered
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds returns every registered kind, sorted
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

func registerBuiltins(r *Registry) {
	builtins := map[string]Factory{
		"rename": func(p Params) (Processor, error) {
			m, err := p.StringMap("mapping")
			if err != nil {
				return nil, err
			}
			return Rename{Mapping: m}, nil
		},
		"drop_columns": func(p Params) (Processor, error) {
			cols, err := p.Strings("columns")
			return DropColumns{Columns: cols}, err
		},
		"select_columns": func(p Params) (Processor, error) {
			cols, err := p.Strings("columns")
			return SelectColumns{Columns: cols}, err
		},
		"filter_columns": func(p Params) (Processor, error) {
			s, err := p.String("not_like")
			return FilterColumns{NotLike: s}, err
		},
		"strip_suffix": func(p Params) (Processor, error) {
			s, err := p.String("suffix")
			return StripSuffix{Suffix: s}, err
		},
		"drop_na": func(p Params) (Processor, error) {
			return DropNA{Subset: p.OptionalStrings("subset")}, nil
		},
		"filter_rows": func(p Params) (Processor, error) {
			col, err := p.String("column")
			if err != nil {
				return nil, err
			}
			return FilterRows{Column: col, Exclude: p.Values("exclude")}, nil
		},
		"condition_imputer": func(p Params) (Processor, error) {
			features, err := p.Strings("features")
			if err != nil {
				return nil, err
			}
			return ConditionImputer{Features: features, Condition: p.Value("condition"), Value: p.Value("value")}, nil
		},
		"groupby_imputer": func(p Params) (Processor, error) {
			features, err := p.Strings("features")
			if err != nil {
				return nil, err
			}
			groupBy, err := p.Strings("groupby")
			if err != nil {
				return nil, err
			}
			return GroupbyImputer{Features: features, GroupBy: groupBy, Strategy: Strategy(p.OptionalString("strategy"))}, nil
		},
		"fillna_imputer": func(p Params) (Processor, error) {
			features, err := p.Strings("features")
			if err != nil {
				return nil, err
			}
			return FillnaImputer{
				Features:   features,
				Value:      p.Value("value"),
				ColumnFill: p.OptionalString("column_fill"),
				Method:     p.OptionalString("method"),
			}, nil
		},
		"custom_imputer": func(p Params) (Processor, error) {
			groupBy, err := p.Strings("groupby")
			if err != nil {
				return nil, err
			}
			return CustomImputer{GroupBy: groupBy, Strategy: Strategy(p.OptionalString("strategy"))}, nil
		},
		"bool_imputer": func(p Params) (Processor, error) {
			feature, err := p.String("feature")
			if err != nil {
				return nil, err
			}
			cond, err := p.String("condition_column")
			if err != nil {
				return nil, err
			}
			return BoolImputer{Feature: feature, ConditionColumn: cond, Condition: p.Bool("condition", true), Value: p.Value("value")}, nil
		},
		"log_transformer": func(p Params) (Processor, error) {
			cols, err := p.Strings("columns")
			if err != nil {
				return nil, err
			}
			return LogTransformer{Columns: cols, Method: LogMethod(p.OptionalString("method")), Inverse: p.Bool("inverse", false)}, nil
		},
		"youth_player":       func(Params) (Processor, error) { return YouthPlayerFeature(), nil },
		"penalty_taker":      func(Params) (Processor, error) { return PenaltyTakerFeature(), nil },
		"years_since_signed": func(Params) (Processor, error) { return YearsSinceSignedFeature(), nil },
		"league_signed_from": func(Params) (Processor, error) { return LeagueSignedFromFeature(), nil },
	}
	kinds := make([]string, 0, len(builtins))
	for k := range builtins {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_ = r.Register(k, builtins[k])
	}
}
