package shade

import (
	"fmt"
	"shadecontrol/internal/rules/condition"
)

// OversteerRule forces a fixed level while its condition holds,
// preempting the normal sun projection.
type OversteerRule struct {
	Operand   condition.Operand  `yaml:"value"`
	Operator  condition.Operator `yaml:"operator"`
	Threshold condition.Operand  `yaml:"threshold"`
	// Level is the resolved target level for this rule.
	Level float64 `yaml:"-"`
	// LevelSpec is the configured target, resolved against the shade's
	// bounds at load time.
	LevelSpec LevelSpec `yaml:"level"`
}

// Oversteer is an ordered list of preemption rules. The first rule
// whose condition holds wins.
type Oversteer struct {
	Rules []OversteerRule
	Topic string
}

// OversteerMatch describes which rule fired and why.
type OversteerMatch struct {
	Index int
	Level float64
	Text  string
}

// Compile resolves each rule's target level against b. Call once after
// loading the configuration.
func (o *Oversteer) Compile(b Bounds) error {
	for i := range o.Rules {
		level, err := o.Rules[i].LevelSpec.Resolve(b, b.Default)
		if err != nil {
			return fmt.Errorf("oversteer rule %d: %w", i+1, err)
		}
		o.Rules[i].Level = level
	}
	return nil
}

// Check evaluates the rules in order and returns the first match.
func (o *Oversteer) Check(e *condition.Evaluator) (OversteerMatch, bool) {
	for i, rule := range o.Rules {
		ok, resolved := e.Compare(rule.Operand, rule.Operator, rule.Threshold)
		if !ok {
			continue
		}
		return OversteerMatch{
			Index: i,
			Level: rule.Level,
			Text:  fmt.Sprintf("%s %s %v", rule.Operand.Key(), rule.Operator, resolved),
		}, true
	}
	return OversteerMatch{}, false
}
