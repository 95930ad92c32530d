// Package segment validates and evaluates segmentation rules, the
// attribute predicates that gate experiment eligibility.
package segment

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/splitkit/splitkit/internal/store"
)

// Supported rule operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
)

var operators = map[string]bool{
	OpEquals:      true,
	OpNotEquals:   true,
	OpIn:          true,
	OpNotIn:       true,
	OpGreaterThan: true,
	OpLessThan:    true,
	OpContains:    true,
}

// Validate checks rule shape: non-empty field, known operator, present
// value, and value type matching the operator. An empty rule set is valid.
// The first violation short-circuits.
func Validate(rules []store.SegmentationRule) error {
	for i, r := range rules {
		if r.Field == "" {
			return fmt.Errorf("segmentation rule %d: field is required", i)
		}
		if !operators[r.Operator] {
			return fmt.Errorf("segmentation rule %d: unsupported operator %q", i, r.Operator)
		}
		if r.Value == nil {
			return fmt.Errorf("segmentation rule %d: value is required", i)
		}
		switch r.Operator {
		case OpIn, OpNotIn:
			if _, ok := toSlice(r.Value); !ok {
				return fmt.Errorf("segmentation rule %d: operator %q requires a list value", i, r.Operator)
			}
		case OpGreaterThan, OpLessThan:
			if _, ok := toFloat(r.Value); !ok {
				return fmt.Errorf("segmentation rule %d: operator %q requires a numeric value", i, r.Operator)
			}
		}
	}
	return nil
}

// Matches reports whether the user attributes satisfy every rule. An empty
// rule set means open eligibility. Rules are evaluated left to right and
// combined with AND. The predicate is pure and never panics; anything
// ambiguous fails closed.
func Matches(rules []store.SegmentationRule, attrs map[string]any) bool {
	if len(rules) == 0 {
		return true
	}
	for _, r := range rules {
		if !matchRule(r, attrs) {
			return false
		}
	}
	return true
}

func matchRule(r store.SegmentationRule, attrs map[string]any) bool {
	userValue, ok := attrs[r.Field]
	if !ok || userValue == nil {
		return false
	}

	switch r.Operator {
	case OpEquals:
		return valuesEqual(userValue, r.Value)
	case OpNotEquals:
		return !valuesEqual(userValue, r.Value)
	case OpIn:
		return valueIn(userValue, r.Value)
	case OpNotIn:
		return !valueIn(userValue, r.Value)
	case OpGreaterThan:
		uv, uok := toFloat(userValue)
		rv, rok := toFloat(r.Value)
		return uok && rok && uv > rv
	case OpLessThan:
		uv, uok := toFloat(userValue)
		rv, rok := toFloat(r.Value)
		return uok && rok && uv < rv
	case OpContains:
		us, uok := userValue.(string)
		rs, rok := r.Value.(string)
		return uok && rok && strings.Contains(us, rs)
	}
	// Unknown operator: fail closed.
	return false
}

func valueIn(userValue, ruleValue any) bool {
	list, ok := toSlice(ruleValue)
	if !ok {
		return false
	}
	for _, item := range list {
		if valuesEqual(userValue, item) {
			return true
		}
	}
	return false
}

// valuesEqual is strict equality over JSON scalars: numbers compare
// numerically across int/float representations, everything else requires
// matching types. Composite values never compare equal.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}
