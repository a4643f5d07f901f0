package rules

import (
	"log/slog"
	"time"

	"shadecontrol/internal/event"
	"shadecontrol/internal/rules/condition"
	"shadecontrol/internal/shade"
	"shadecontrol/internal/timespec"
)

// DefaultRuleID identifies the synthetic selection made when no rule
// applies.
const DefaultRuleID = -1

// Matched is a min/max rule captured during the scan.
type Matched struct {
	RuleID int
	Name   string
	Level  float64
}

// Selection is the outcome of one evaluation cycle.
type Selection struct {
	RuleID        int
	Name          string
	Level         float64
	Reason        event.Reason
	Text          string
	Importance    float64
	ResetOverride bool
	TimeLimited   bool
	// RuleEnd is when an "until" selection stops applying.
	RuleEnd time.Time
	// Min and Max are the captured level floor and ceiling, applied to
	// the final level with Clamp.
	Min *Matched
	Max *Matched
	// Retrigger is the next rule boundary, when the schedule needs to be
	// re-evaluated even without an incoming event.
	Retrigger time.Time
}

// Clamp applies the captured min/max rules to a level. It returns the
// clamped level and, if a clamp fired, its reason.
func (s Selection) Clamp(level float64) (float64, event.Reason, *Matched) {
	if s.Min != nil && level < s.Min.Level {
		return s.Min.Level, event.ReasonRuleMin, s.Min
	}
	if s.Max != nil && level > s.Max.Level {
		return s.Max.Level, event.ReasonRuleMax, s.Max
	}
	return level, event.ReasonNone, nil
}

// Evaluator scans a shade's rules against the current time and sensor
// values. Until-rules are scanned first to last, from-rules last to
// first, so the rule closest to the current time wins within each group.
type Evaluator struct {
	rules    []Rule
	bounds   shade.Bounds
	resolver timespec.Resolver
	// lastUntil is the index of the last rule that is not a from-rule.
	lastUntil        int
	maxImportance    float64
	canResetOverride bool
	logger           *slog.Logger
}

func New(rules []Rule, bounds shade.Bounds, resolver timespec.Resolver, logger *slog.Logger) *Evaluator {
	e := Evaluator{
		rules:     rules,
		bounds:    bounds,
		resolver:  resolver,
		lastUntil: -1,
		logger:    logger,
	}
	for i, r := range rules {
		if r.TimeOp != TimeFrom {
			e.lastUntil = i
		}
		if r.Importance > e.maxImportance {
			e.maxImportance = r.Importance
		}
		if r.ResetOverride {
			e.canResetOverride = true
		}
	}
	return &e
}

// MaxImportance is the highest importance any rule carries.
func (e *Evaluator) MaxImportance() float64 { return e.maxImportance }

// CanResetOverride reports whether any rule may reset an active override.
func (e *Evaluator) CanResetOverride() bool { return e.canResetOverride }

// Evaluate runs the two-pass scan and returns the applicable selection.
// When no rule applies it selects the default level.
func (e *Evaluator) Evaluate(now time.Time, conds *condition.Evaluator) Selection {
	dayID := timespec.DayID(now)

	var selected *Rule
	var selectedTime time.Time
	var selectedCond string
	var minRule, maxRule *Matched

	capture := func(r *Rule, overwrite bool) {
		m := &Matched{RuleID: r.Position, Name: r.describe(), Level: r.Level}
		if r.LevelOp == LevelMin && (overwrite || minRule == nil) {
			minRule = m
		} else if r.LevelOp == LevelMax && (overwrite || maxRule == nil) {
			maxRule = m
		}
	}

forward:
	for i := 0; i <= e.lastUntil; i++ {
		r := &e.rules[i]
		if r.TimeOp == TimeFrom {
			continue
		}
		ok, condText := e.applies(r, now, conds)
		if !ok {
			continue
		}
		if r.TimeLimited() {
			ts, ok := e.ruleTime(r, now)
			if !ok || timespec.DayID(ts) != dayID || ts.Before(now) {
				continue
			}
			if r.LevelOp == LevelAbsolute {
				selected, selectedTime, selectedCond = r, ts, condText
				break forward
			}
			capture(r, true)
			continue
		}
		if r.LevelOp == LevelAbsolute {
			selected, selectedCond = r, condText
			break forward
		}
		capture(r, true)
	}

	if selected == nil {
		for i := len(e.rules) - 1; i >= 0; i-- {
			r := &e.rules[i]
			if r.TimeOp == TimeUntil {
				continue
			}
			ok, condText := e.applies(r, now, conds)
			if !ok {
				continue
			}
			if r.TimeLimited() {
				ts, ok := e.ruleTime(r, now)
				if !ok || timespec.DayID(ts) != dayID || ts.After(now) {
					continue
				}
			}
			if r.LevelOp == LevelAbsolute {
				selected, selectedCond = r, condText
				break
			}
			capture(r, false)
		}
	}

	sel := Selection{
		RuleID:    DefaultRuleID,
		Level:     e.bounds.Default,
		Reason:    event.ReasonDefault,
		Text:      event.ReasonDefault.String(),
		Min:       minRule,
		Max:       maxRule,
		Retrigger: e.nextBoundary(now),
	}
	if selected != nil {
		sel.RuleID = selected.Position
		sel.Name = selected.Name
		sel.Level = selected.Level
		sel.Reason = event.ReasonRule
		sel.Text = selected.describe()
		if selectedCond != "" {
			sel.Text += " (" + selectedCond + ")"
		}
		sel.Importance = selected.Importance
		sel.ResetOverride = selected.ResetOverride
		sel.TimeLimited = selected.TimeLimited()
		sel.RuleEnd = selectedTime
	}
	return sel
}

// applies checks a rule's calendar constraints and conditions. On a
// match it also returns the deciding condition's description.
func (e *Evaluator) applies(r *Rule, now time.Time, conds *condition.Evaluator) (bool, string) {
	if !r.appliesOn(now) {
		return false, ""
	}
	if len(r.Conditions) == 0 {
		return true, ""
	}
	return r.Conditions.Evaluate(conds)
}

// ruleTime resolves the rule's time of day, constrained to its optional
// earliest/latest bounds. The bounds swap if configured inverted.
func (e *Evaluator) ruleTime(r *Rule, now time.Time) (time.Time, bool) {
	ts, err := e.resolver.Resolve(r.Time, now)
	if err != nil {
		e.logger.Warn("cannot resolve rule time", slog.String("rule", r.describe()), slog.Any("err", err))
		return time.Time{}, false
	}
	var tsMin, tsMax time.Time
	if !r.TimeMin.IsZero() {
		if tsMin, err = e.resolver.Resolve(r.TimeMin, now); err != nil {
			e.logger.Warn("cannot resolve rule time minimum", slog.String("rule", r.describe()), slog.Any("err", err))
			return time.Time{}, false
		}
	}
	if !r.TimeMax.IsZero() {
		if tsMax, err = e.resolver.Resolve(r.TimeMax, now); err != nil {
			e.logger.Warn("cannot resolve rule time maximum", slog.String("rule", r.describe()), slog.Any("err", err))
			return time.Time{}, false
		}
	}
	if !tsMin.IsZero() && !tsMax.IsZero() && tsMin.After(tsMax) {
		tsMin, tsMax = tsMax, tsMin
	}
	if !tsMin.IsZero() && ts.Before(tsMin) {
		ts = tsMin
	}
	if !tsMax.IsZero() && ts.After(tsMax) {
		ts = tsMax
	}
	return ts, true
}

// nextBoundary returns the earliest time-limited rule boundary after now:
// the next boundary today, or failing that the first one tomorrow.
func (e *Evaluator) nextBoundary(now time.Time) time.Time {
	var next time.Time
	for i := range e.rules {
		r := &e.rules[i]
		if !r.TimeLimited() {
			continue
		}
		ts, ok := e.ruleTime(r, now)
		if !ok || timespec.DayID(ts) != timespec.DayID(now) || !ts.After(now) {
			continue
		}
		if next.IsZero() || ts.Before(next) {
			next = ts
		}
	}
	if !next.IsZero() {
		return next
	}
	tomorrow := now.AddDate(0, 0, 1)
	midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, now.Location())
	for i := range e.rules {
		r := &e.rules[i]
		if !r.TimeLimited() {
			continue
		}
		ts, ok := e.ruleTime(r, midnight)
		if !ok || ts.Before(midnight) {
			continue
		}
		if next.IsZero() || ts.Before(next) {
			next = ts
		}
	}
	return next
}
