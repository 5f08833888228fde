package query

import (
	"strings"
	"time"
)

// evalCondition applies op to a stored property value and the normalized
// clause value. Type mismatches evaluate to false rather than erroring,
// mirroring three-valued comparison semantics where an untyped comparison
// yields no match.
func evalCondition(stored any, op string, want any) bool {
	switch op {
	case "STARTS WITH", "ENDS WITH", "CONTAINS":
		s, ok1 := stored.(string)
		w, ok2 := want.(string)
		if !ok1 || !ok2 {
			return false
		}
		switch op {
		case "STARTS WITH":
			return strings.HasPrefix(s, w)
		case "ENDS WITH":
			return strings.HasSuffix(s, w)
		default:
			return strings.Contains(s, w)
		}

	case "=":
		eq, ok := equalValues(stored, want)
		return ok && eq
	case "<>":
		eq, ok := equalValues(stored, want)
		return ok && !eq

	default:
		cmp, ok := compareValues(stored, want)
		if !ok {
			return false
		}
		switch op {
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		}
		return false
	}
}

func equalValues(a, b any) (equal, ok bool) {
	if ab, ok1 := a.(bool); ok1 {
		bb, ok2 := b.(bool)
		return ok2 && ab == bb, ok2
	}
	if _, isBool := b.(bool); isBool {
		return false, false
	}
	cmp, ok := compareValues(a, b)
	return cmp == 0, ok
}

// compareValues orders two values of compatible kinds. Numbers compare
// numerically across integer and float representations, strings
// lexicographically, timestamps chronologically.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
