package processing

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// Definition is a pipeline declared in YAML:
//
//	name: clean_wages
//	steps:
//	  - kind: rename
//	    params:
//	      mapping: {Squad: squad}
//	  - kind: drop_na
type Definition struct {
	Name  string           `yaml:"name"`
	Steps []StepDefinition `yaml:"steps"`
}

// StepDefinition declares one step by kind
type StepDefinition struct {
	Kind   string `yaml:"kind"`
	Params Params `yaml:"params"`
}

// ParseDefinition decodes a YAML pipeline definition
func ParseDefinition(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("%w: definition has no name", ErrInvalidParams)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: definition %s has no steps", ErrInvalidParams, def.Name)
	}
	return &def, nil
}

// LoadDefinition reads a YAML pipeline definition from disk
func LoadDefinition(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition %s: %w", path, err)
	}
	defer f.Close()
	return ParseDefinition(f)
}

// BuildDefinition resolves every step of a definition against the registry
func (r *Registry) BuildDefinition(def *Definition, opts ...Option) (*Composer, error) {
	steps := make([]Processor, 0, len(def.Steps))
	for i, sd := range def.Steps {
		p, err := r.Build(sd.Kind, sd.Params)
		if err != nil {
			return nil, fmt.Errorf("definition %s step %d: %w", def.Name, i, err)
		}
		steps = append(steps, p)
	}
	return NewComposer(def.Name, steps, opts...), nil
}

// Params holds raw step parameters as decoded from YAML
type Params map[string]interface{}

// String returns a required string parameter
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidParams, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return s, nil
}

// OptionalString returns a string parameter or ""
func (p Params) OptionalString(key string) string {
	s, _ := p[key].(string)
	return s
}

// Strings returns a required list of strings
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidParams, key)
	}
	return toStrings(key, v)
}

// OptionalStrings returns a list of strings or nil
func (p Params) OptionalStrings(key string) []string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	out, _ := toStrings(key, v)
	return out
}

func toStrings(key string, v interface{}) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must contain strings", ErrInvalidParams, key)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidParams, key)
}

// StringMap returns a required string-to-string mapping
func (p Params) StringMap(key string) (map[string]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidParams, key)
	}
	out := make(map[string]string)
	switch x := v.(type) {
	case map[string]string:
		for k, val := range x {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range x {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s must be a string", ErrInvalidParams, key, k)
			}
			out[k] = s
		}
	case map[interface{}]interface{}:
		for k, val := range x {
			ks, ok1 := k.(string)
			vs, ok2 := val.(string)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("%w: %s must map strings to strings", ErrInvalidParams, key)
			}
			out[ks] = vs
		}
	default:
		return nil, fmt.Errorf("%w: %s must be a mapping", ErrInvalidParams, key)
	}
	return out, nil
}

// Value returns a scalar parameter normalised to the table's cell types
func (p Params) Value(key string) any {
	return normalizeParam(p[key])
}

// Values returns a list parameter with each item normalised
func (p Params) Values(key string) []any {
	switch x := p[key].(type) {
	case []interface{}:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = normalizeParam(v)
		}
		return out
	case nil:
		return nil
	default:
		return []any{normalizeParam(x)}
	}
}

// Bool returns a boolean parameter or def
func (p Params) Bool(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

func normalizeParam(v interface{}) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}
