package table

import (
	"math"
	"strconv"
	"strings"
)

// IsNull reports whether v is a missing value. NaN floats count as missing.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// ToFloat converts a cell to float64. Numeric strings are parsed, bools map
// to 0/1. The second return is false for nulls and non-numeric values.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ToString renders a cell the way it is written to CSV.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	return ""
}

// Normalize coerces Go integer types to float64 so every numeric cell
// shares one representation.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	}
	return v
}

// Equal compares two cells. Numbers compare numerically, everything else by
// its string form. Nulls are never equal to anything.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	fa, okA := numeric(a)
	fb, okB := numeric(b)
	if okA && okB {
		return fa == fb
	}
	return ToString(a) == ToString(b)
}

// Less orders two cells, numbers before strings. Nulls sort last.
func Less(a, b any) bool {
	if IsNull(a) {
		return false
	}
	if IsNull(b) {
		return true
	}
	fa, okA := numeric(a)
	fb, okB := numeric(b)
	switch {
	case okA && okB:
		return fa < fb
	case okA:
		return true
	case okB:
		return false
	}
	return ToString(a) < ToString(b)
}

// key builds a stable map key for grouping and joins. Numeric-looking
// strings render through ToFloat so 2022, 2022.0 and "2022.0" share a key.
func key(values []any) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		if s, ok := v.(string); ok {
			if f, ok := ToFloat(s); ok {
				v = f
			}
		}
		b.WriteString(ToString(v))
	}
	return b.String()
}

// numeric only treats true numbers as numeric, never numeric-looking strings.
func numeric(v any) (float64, bool) {
	switch v.(type) {
	case float64, int, int64, int32:
		return ToFloat(v)
	}
	return 0, false
}
