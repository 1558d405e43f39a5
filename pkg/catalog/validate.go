package catalog

import (
	"fmt"
	"math"
)

// ValidateParams normalizes candidate against paramTypes: no unknown
// params are allowed, an absent param is filled from its type's default
// (an absent non-readOnly param with no default is MissingParameter),
// values are coerced to their declared ValueType, and bounds and
// allowedValues are enforced (spec.md §4.1).
func ValidateParams(paramTypes []ParamType, candidate ParamList) (ParamList, ThingError) {
	byID := make(map[string]ParamType, len(paramTypes))
	for _, pt := range paramTypes {
		byID[pt.ID.String()] = pt
	}

	for _, p := range candidate {
		if _, ok := byID[p.ParamTypeID.String()]; !ok {
			return nil, InvalidParameter
		}
	}

	out := make(ParamList, 0, len(paramTypes))
	for _, pt := range paramTypes {
		val := candidate.Value(pt.ID)
		present := candidate.Has(pt.ID)

		if !present {
			if pt.ReadOnly || pt.DefaultValue != nil {
				val = pt.DefaultValue
			} else {
				return nil, MissingParameter
			}
		}

		coerced, err := coerce(pt, val)
		if err != NoError {
			return nil, err
		}

		out = append(out, Param{ParamTypeID: pt.ID, Value: coerced})
	}

	return out, NoError
}

func coerce(pt ParamType, val any) (any, ThingError) {
	switch pt.ValueType {
	case ValueBool:
		b, ok := val.(bool)
		if !ok {
			return nil, InvalidParameter
		}
		return b, NoError

	case ValueInt, ValueUint:
		n, ok := toFloat(val)
		if !ok {
			return nil, InvalidParameter
		}
		if pt.ValueType == ValueUint && n < 0 {
			return nil, InvalidParameter
		}
		if err := checkBounds(pt, n); err != NoError {
			return nil, err
		}
		if pt.ValueType == ValueUint {
			return uint64(n), NoError
		}
		return int64(n), NoError

	case ValueDouble:
		n, ok := toFloat(val)
		if !ok {
			return nil, InvalidParameter
		}
		if err := checkBounds(pt, n); err != NoError {
			return nil, err
		}
		return n, NoError

	case ValueString, ValueColor, ValueTime, ValueTimestamp:
		s, ok := val.(string)
		if !ok {
			return nil, InvalidParameter
		}
		if len(pt.AllowedValues) > 0 && !allowedContains(pt.AllowedValues, s) {
			return nil, InvalidParameter
		}
		return s, NoError

	default:
		return nil, InvalidParameter
	}
}

func checkBounds(pt ParamType, n float64) ThingError {
	if pt.MinValue != nil {
		if min, ok := toFloat(pt.MinValue); ok && n < min {
			return InvalidParameter
		}
	}
	if pt.MaxValue != nil {
		if max, ok := toFloat(pt.MaxValue); ok && n > max {
			return InvalidParameter
		}
	}
	if len(pt.AllowedValues) > 0 && !allowedContains(pt.AllowedValues, n) {
		return InvalidParameter
	}
	return NoError
}

func allowedContains(allowed []any, v any) bool {
	for _, a := range allowed {
		if fmt.Sprint(a) == fmt.Sprint(v) {
			return true
		}
		if af, ok := toFloat(a); ok {
			if vf, ok := toFloat(v); ok && af == vf {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
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
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// IsFinite reports whether a bound value (used by the IO Connection Engine
// to classify a state as analog) is a real, finite number.
func IsFinite(v any) bool {
	f, ok := toFloat(v)
	return ok && !math.IsInf(f, 0) && !math.IsNaN(f)
}
