package logic

import (
	"math"
	"strconv"
	"strings"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// Truthy implements the engine's truthiness rules: null, false, 0, NaN,
// empty string, empty array, and empty object are falsy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case *ordered.Map:
		return t.Len() > 0
	default:
		return true
	}
}

// ToNumber coerces a value to float64: numbers pass through, strings parse
// as decimals (invalid parses coerce to 0), booleans map to 0/1, null to 0,
// and arrays coerce via their first element.
func ToNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	case []any:
		if len(t) == 0 {
			return 0
		}
		return ToNumber(t[0])
	default:
		return 0
	}
}

// ToString renders a value the way string operators observe it. Numbers
// drop a trailing ".0"; nil renders empty.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(t)
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// formatNumber renders a float64 without an unnecessary fractional part.
func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// LooseEqual implements JavaScript-style loose equality: numbers and
// strings cross-coerce, booleans coerce to numbers, and null equals only
// null.
func LooseEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		return LooseEqual(boolToNum(av), b)
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case string:
			f, ok := strToNum(bv)
			return ok && av == f
		case bool:
			return av == boolToNum(bv)
		case nil:
			return false
		}
		return false
	case string:
		switch bv := b.(type) {
		case string:
			return av == bv
		case float64:
			f, ok := strToNum(av)
			return ok && f == bv
		case bool:
			f, ok := strToNum(av)
			return ok && f == boolToNum(bv)
		case nil:
			return false
		}
		return false
	default:
		if b == nil {
			return false
		}
		switch b.(type) {
		case float64, string, bool:
			return LooseEqual(b, a)
		}
		return DeepEqual(a, b)
	}
}

// strToNum applies JavaScript numeric string coercion: empty or blank
// strings coerce to 0, anything unparsable reports ok=false.
func strToNum(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func boolToNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// DeepEqual compares two decoded JSON values structurally.
func DeepEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !DeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *ordered.Map:
		bv, ok := b.(*ordered.Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		equal := true
		av.Range(func(k string, v any) bool {
			other, has := bv.Get(k)
			if !has || !DeepEqual(v, other) {
				equal = false
				return false
			}
			return true
		})
		return equal
	default:
		return false
	}
}

// GetPath walks a decoded value by pre-split path segments. Numeric
// segments index arrays. The second return reports whether the full path
// resolved.
func GetPath(root any, segs []string) (any, bool) {
	cur := root
	for _, seg := range segs {
		switch t := cur.(type) {
		case *ordered.Map:
			v, ok := t.Get(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, false
			}
			cur = t[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// scalarKey returns a collision-free string key for scalar values, used by
// the hash-set fast path of the "in" operator. Non-scalars return ok=false.
func scalarKey(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "n", true
	case bool:
		if t {
			return "b1", true
		}
		return "b0", true
	case float64:
		return "f" + strconv.FormatFloat(t, 'g', -1, 64), true
	case string:
		return "s" + t, true
	default:
		return "", false
	}
}
