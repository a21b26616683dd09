package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToFloat converts a cell to float64. Missing, non-numeric, NaN and infinite
// values yield (0, false) so they never propagate into a sum.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Float is ToFloat without the ok flag.
func Float(v any) float64 {
	f, _ := ToFloat(v)
	return f
}

// Floats coerces a whole column to n values. Unparseable cells become 0;
// a nil column yields def for every row.
func Floats(col []any, n int, def float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if col == nil || i >= len(col) {
			out[i] = def
			continue
		}
		if f, ok := ToFloat(col[i]); ok {
			out[i] = f
		} else {
			out[i] = 0
		}
	}
	return out
}

// ToBool interprets common truthy spellings ("true", "yes", "1", 1.0).
func ToBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "t":
			return true
		}
	}
	f, ok := ToFloat(v)
	return ok && f != 0
}

// Text renders a cell as a trimmed string. Integral floats print without a
// fractional part so that 101.0 and "101" compare equal as join keys.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
