package condition

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Source provides live sensor values.
type Source interface {
	Lookup(key string) (any, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(key string) (any, bool)

func (f SourceFunc) Lookup(key string) (any, bool) { return f(key) }

// Evaluator resolves operands and compares them. It is created once per
// evaluation cycle. The memo carries the last observed value per operand
// across cycles; warnings about unresolvable operands are emitted at most
// once per cycle per operand.
type Evaluator struct {
	source Source
	memo   map[string]any
	warned map[string]struct{}
	logger *slog.Logger
}

func NewEvaluator(source Source, memo map[string]any, logger *slog.Logger) *Evaluator {
	if memo == nil {
		memo = make(map[string]any)
	}
	return &Evaluator{
		source: source,
		memo:   memo,
		warned: make(map[string]struct{}),
		logger: logger,
	}
}

// Memo returns the value cache, for persisting between cycles.
func (e *Evaluator) Memo() map[string]any { return e.memo }

// Resolve returns the operand's current value. Sensor operands fall back
// to the memoized last observation; an operand with no value at all
// resolves to (nil, false) with a once-per-cycle warning.
func (e *Evaluator) Resolve(o Operand) (any, bool) {
	if o.Kind == KindLiteral {
		return o.Value, true
	}
	if value, ok := e.source.Lookup(o.Value); ok && value != nil {
		e.memo[o.Key()] = value
		return value, true
	}
	if value, ok := e.memo[o.Key()]; ok {
		e.logger.Debug("using cached value", slog.String("operand", o.Key()), slog.Any("value", value))
		return value, true
	}
	if _, ok := e.warned[o.Key()]; !ok {
		e.warned[o.Key()] = struct{}{}
		e.logger.Warn("operand not resolvable", slog.String("operand", o.Key()))
	}
	return nil, false
}

// Compare resolves both sides and applies the operator. An unresolvable
// operand makes the comparison false. It returns the result and the
// resolved threshold value (for describing the deciding clause).
func (e *Evaluator) Compare(operand Operand, op Operator, threshold Operand) (bool, any) {
	left, ok := e.Resolve(operand)
	switch op {
	case OpSet:
		return ok, nil
	case OpUnset:
		return !ok, nil
	}
	if !ok {
		return false, nil
	}
	switch op {
	case OpTrue:
		return asBool(left), nil
	case OpFalse:
		return !asBool(left), nil
	}
	right, ok := e.Resolve(threshold)
	if !ok {
		return false, nil
	}
	return compare(left, op, right), right
}

func compare(left any, op Operator, right any) bool {
	if l, lok := asFloat(left); lok {
		if r, rok := asFloat(right); rok {
			return compareFloat(l, op, r)
		}
	}
	return compareString(asString(left), op, asString(right))
}

func compareFloat(l float64, op Operator, r float64) bool {
	switch op {
	case OpEqual:
		return l == r
	case OpNotEqual:
		return l != r
	case OpLess:
		return l < r
	case OpLessOrEqual:
		return l <= r
	case OpGreater:
		return l > r
	case OpGreaterOrEqual:
		return l >= r
	}
	return compareString(strconv.FormatFloat(l, 'f', -1, 64), op, strconv.FormatFloat(r, 'f', -1, 64))
}

func compareString(l string, op Operator, r string) bool {
	switch op {
	case OpEqual:
		return l == r
	case OpNotEqual:
		return l != r
	case OpLess:
		return l < r
	case OpLessOrEqual:
		return l <= r
	case OpGreater:
		return l > r
	case OpGreaterOrEqual:
		return l >= r
	case OpContains:
		return strings.Contains(l, r)
	case OpNotContains:
		return !strings.Contains(l, r)
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	default:
		return fmt.Sprint(v)
	}
}

func asBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		b, err := strconv.ParseBool(value)
		return err == nil && b
	case float64:
		return value != 0
	case int:
		return value != 0
	}
	return false
}
