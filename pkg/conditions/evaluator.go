// Package conditions evaluates declarative condition predicates against an
// execution's data bag.
package conditions

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/oliveagle/jsonpath"
	"github.com/spf13/cast"
)

// Supported operators.
const (
	OperatorEquals   = "equals"
	OperatorContains = "contains"
	OperatorGreater  = "greater"
	OperatorLess     = "less"
	OperatorExists   = "exists"
)

// Evaluator evaluates ConditionConfig predicates.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With("module", "condition_evaluator")}
}

// Evaluate returns the truth value of cond against data.
//
// Unrecognised operators evaluate to true and log a warning.
func (e *Evaluator) Evaluate(cond models.ConditionConfig, data map[string]any) bool {
	value, found := Resolve(data, cond.Field)

	switch cond.Operator {
	case OperatorEquals:
		return found && strictEqual(value, cond.Value)
	case OperatorContains:
		if !found || value == nil {
			return false
		}

		return strings.Contains(toString(value), toString(cond.Value))
	case OperatorGreater:
		left, lok := toNumber(value, found)
		right, rok := toNumber(cond.Value, true)

		return lok && rok && left > right
	case OperatorLess:
		left, lok := toNumber(value, found)
		right, rok := toNumber(cond.Value, true)

		return lok && rok && left < right
	case OperatorExists:
		return found && value != nil
	default:
		e.logger.Warn("Unrecognised condition operator, defaulting to true",
			"operator", cond.Operator,
			"field", cond.Field,
		)

		return true
	}
}

// Resolve looks up a dotted path ("lead.score") in data. A missing key at any
// level reports found=false; an explicit null reports (nil, true).
func Resolve(data map[string]any, field string) (any, bool) {
	if field == "" || data == nil {
		return nil, false
	}

	path := field
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}

	value, err := jsonpath.JsonPathLookup(data, path)
	if err != nil {
		return nil, false
	}

	return value, true
}

func strictEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	if isNumber(left) && isNumber(right) {
		return cast.ToFloat64(left) == cast.ToFloat64(right)
	}

	if reflect.TypeOf(left) != reflect.TypeOf(right) {
		return false
	}

	return reflect.DeepEqual(left, right)
}

func isNumber(v any) bool {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// toNumber coerces v to a float. Absent and null values are not numbers.
func toNumber(v any, found bool) (float64, bool) {
	if !found || v == nil {
		return 0, false
	}

	n, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

func toString(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return s
}
