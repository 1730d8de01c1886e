package automation

import (
	"fmt"
	"reflect"
	"strings"

	"riseloop/models"
)

// EvaluateCondition checks a rule condition against an event payload. An
// empty condition always matches. A lookup or type error is a configuration
// problem with the rule, not the event, and is returned so the caller can
// log and skip the rule.
func EvaluateCondition(cond models.RuleCondition, payload map[string]interface{}) (bool, error) {
	if cond.IsEmpty() {
		return true, nil
	}

	if len(cond.All) > 0 {
		for _, sub := range cond.All {
			ok, err := EvaluateCondition(sub, payload)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	if len(cond.Any) > 0 {
		for _, sub := range cond.Any {
			ok, err := EvaluateCondition(sub, payload)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	actual, found := lookupField(payload, cond.Field)
	if !found {
		// A missing field fails the comparison rather than erroring: events of
		// the same name can legitimately carry sparse payloads.
		return false, nil
	}

	switch cond.Op {
	case models.OpEqual:
		return looseEqual(actual, cond.Value), nil
	case models.OpNotEqual:
		return !looseEqual(actual, cond.Value), nil
	case models.OpGreaterOrEqual, models.OpLessOrEqual, models.OpGreater, models.OpLess:
		a, b, err := numericPair(actual, cond.Value)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", cond.Field, err)
		}
		switch cond.Op {
		case models.OpGreaterOrEqual:
			return a >= b, nil
		case models.OpLessOrEqual:
			return a <= b, nil
		case models.OpGreater:
			return a > b, nil
		default:
			return a < b, nil
		}
	case models.OpIn:
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("field %q: operator %q requires a list value", cond.Field, models.OpIn)
		}
		for _, item := range list {
			if looseEqual(actual, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Op)
	}
}

// lookupField resolves a dotted path ("profile.streak") into nested payload
// maps.
func lookupField(payload map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = payload
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares with numeric coercion: JSON decoding hands the engine
// float64s while rule values loaded through the serializer may be ints.
func looseEqual(a, b interface{}) bool {
	if af, bf, err := numericPair(a, b); err == nil {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func numericPair(a, b interface{}) (float64, float64, error) {
	af, err := toFloat(a)
	if err != nil {
		return 0, 0, err
	}
	bf, err := toFloat(b)
	if err != nil {
		return 0, 0, err
	}
	return af, bf, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
