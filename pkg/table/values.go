package table

import (
	"fmt"
	"strconv"
	"strings"
)

// IsNull reports whether a cell value counts as missing. Empty strings are
// not null; only nil is.
func IsNull(v any) bool {
	return v == nil
}

// Float64 coerces a cell to float64. Database drivers hand back a mix of
// numeric widths, and postgres NUMERIC columns may scan as strings.
func Float64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Int64 coerces a cell to int64. Fractional floats do not qualify.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// String renders a cell as its string form. Nil yields "".
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Key normalizes a cell into a comparable map key so that int64(7),
// int(7) and float64(7) collide as the same identity.
func Key(v any) any {
	if v == nil {
		return nil
	}
	if i, ok := Int64(v); ok {
		return i
	}
	if f, ok := Float64(v); ok {
		return f
	}
	return String(v)
}

// CompositeKey joins several cells into one comparable key.
func CompositeKey(vals ...any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			parts[i] = "\x00"
			continue
		}
		parts[i] = fmt.Sprintf("%v", Key(v))
	}
	return strings.Join(parts, "\x1f")
}
