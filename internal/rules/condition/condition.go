// Package condition evaluates the boolean guards attached to rules and
// oversteer entries. Operands are either literals or references to sensor
// values kept in the value store; resolved values are memoized per cycle so
// a sensor that stops reporting keeps its last observed value.
package condition

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"strconv"
	"strings"
)

// Kind discriminates the operand union.
type Kind int

const (
	KindLiteral Kind = iota
	KindSensor
)

// Operand is one side of a comparison: a fixed literal or a reference to
// an externally maintained sensor value.
type Operand struct {
	Kind  Kind
	Value string
}

func Literal(value string) Operand { return Operand{Kind: KindLiteral, Value: value} }
func Sensor(key string) Operand    { return Operand{Kind: KindSensor, Value: key} }

// Key identifies the operand in the memo and in warning suppression.
func (o Operand) Key() string {
	if o.Kind == KindSensor {
		return "sensor." + o.Value
	}
	return "literal." + o.Value
}

func (o Operand) String() string {
	if o.Kind == KindSensor {
		return "sensor." + o.Value
	}
	return strconv.Quote(o.Value)
}

// UnmarshalYAML accepts either a scalar (literal) or a mapping with a
// "sensor" key (reference).
func (o *Operand) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*o = Literal(node.Value)
		return nil
	case yaml.MappingNode:
		var ref struct {
			Sensor string `yaml:"sensor"`
		}
		if err := node.Decode(&ref); err != nil {
			return err
		}
		if ref.Sensor == "" {
			return fmt.Errorf("invalid operand: missing sensor key")
		}
		*o = Sensor(ref.Sensor)
		return nil
	}
	return fmt.Errorf("invalid operand")
}

// Operator compares an operand against a threshold.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpContains       Operator = "contains"
	OpNotContains    Operator = "containsNot"
	OpTrue           Operator = "true"
	OpFalse          Operator = "false"
	OpSet            Operator = "set"
	OpUnset          Operator = "unset"
)

func (op Operator) valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpContains, OpNotContains, OpTrue, OpFalse, OpSet, OpUnset:
		return true
	}
	return false
}

// unary reports whether the operator ignores the threshold.
func (op Operator) unary() bool {
	switch op {
	case OpTrue, OpFalse, OpSet, OpUnset:
		return true
	}
	return false
}

func (op *Operator) UnmarshalYAML(node *yaml.Node) error {
	o := Operator(node.Value)
	if !o.valid() {
		return fmt.Errorf("invalid operator: %q", node.Value)
	}
	*op = o
	return nil
}

// Join links a condition to the running result of the ones before it.
type Join int

const (
	JoinOr Join = iota
	JoinAnd
)

func (j *Join) UnmarshalYAML(node *yaml.Node) error {
	switch strings.ToLower(node.Value) {
	case "", "or":
		*j = JoinOr
	case "and":
		*j = JoinAnd
	default:
		return fmt.Errorf("invalid join: %q", node.Value)
	}
	return nil
}

// Condition is a single operand/operator/threshold triple.
type Condition struct {
	Operand   Operand  `yaml:"operand"`
	Operator  Operator `yaml:"operator"`
	Threshold Operand  `yaml:"threshold"`
	Join      Join     `yaml:"join"`
}

func (c Condition) describe(thresholdValue any) string {
	if c.Operator.unary() {
		return fmt.Sprintf("%s %s", c.Operand, c.Operator)
	}
	if thresholdValue != nil {
		return fmt.Sprintf("%s %s %v", c.Operand, c.Operator, thresholdValue)
	}
	return fmt.Sprintf("%s %s %s", c.Operand, c.Operator, c.Threshold)
}

// List is an ordered set of conditions, joined left to right.
type List []Condition

// Evaluate runs the list with short-circuiting: once the running result is
// true and the next condition joins with OR, no further condition can
// change the outcome; a false condition joined with AND ends the scan as
// false. It returns the result and a description of the deciding clause.
func (l List) Evaluate(e *Evaluator) (bool, string) {
	var result bool
	var text string
	for _, c := range l {
		if result && c.Join == JoinOr {
			break
		}
		ok, thresholdValue := e.Compare(c.Operand, c.Operator, c.Threshold)
		if !ok {
			if c.Join == JoinAnd {
				return false, c.describe(thresholdValue)
			}
			continue
		}
		result = true
		text = c.describe(thresholdValue)
	}
	return result, text
}
