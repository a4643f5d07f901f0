// Package rules evaluates the prioritized daily schedule for a shade.
// Rules are kept in configuration order; "until" rules bound the level up
// to a time of day, "from" rules take over after one. A rule only applies
// on the days, months and dates it names and while its conditions hold.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clambin/go-common/set"

	"shadecontrol/internal/rules/condition"
	"shadecontrol/internal/shade"
	"shadecontrol/internal/timespec"
)

// TimeOp is a rule's relation to its time of day.
type TimeOp int

const (
	// TimeNone applies all day.
	TimeNone TimeOp = iota
	// TimeUntil applies up to the rule's time.
	TimeUntil
	// TimeFrom applies from the rule's time onward.
	TimeFrom
)

func (op TimeOp) String() string {
	switch op {
	case TimeUntil:
		return "until"
	case TimeFrom:
		return "from"
	}
	return ""
}

// LevelOp is how a rule's level combines with the rest of the decision.
type LevelOp int

const (
	// LevelAbsolute sets the level outright.
	LevelAbsolute LevelOp = iota
	// LevelMin raises the decision to at least this level.
	LevelMin
	// LevelMax caps the decision at this level.
	LevelMax
)

func (op LevelOp) String() string {
	switch op {
	case LevelMin:
		return "min"
	case LevelMax:
		return "max"
	}
	return "absolute"
}

// MonthDay is a year-agnostic calendar date. The zero value means unset.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (d MonthDay) IsZero() bool { return d.Month == 0 }

// key orders month-days within a year.
func (d MonthDay) key() int { return int(d.Month)*100 + d.Day }

// Rule is a compiled schedule entry. Position is its 1-based place in the
// configuration, which doubles as its identifier in decisions.
type Rule struct {
	Position      int
	Name          string
	TimeOp        TimeOp
	LevelOp       LevelOp
	Level         float64
	Importance    float64
	ResetOverride bool
	Time          timespec.Spec
	TimeMin       timespec.Spec
	TimeMax       timespec.Spec
	Days          set.Set[time.Weekday]
	Months        set.Set[time.Month]
	OnlyOddDays   bool
	OnlyEvenDays  bool
	DateStart     MonthDay
	DateEnd       MonthDay
	Conditions    condition.List
}

// TimeLimited reports whether the rule is bound to a time of day.
func (r Rule) TimeLimited() bool { return r.TimeOp != TimeNone }

func (r Rule) describe() string {
	name := r.Name
	if name == "" {
		name = "rule " + strconv.Itoa(r.Position)
	}
	if r.TimeLimited() {
		return fmt.Sprintf("%s (%s %s)", name, r.TimeOp, r.Time)
	}
	return name
}

// Config is the YAML shape of a single rule.
type Config struct {
	Name          string          `yaml:"name"`
	Time          timespec.Spec   `yaml:"time"`
	TimeOp        string          `yaml:"timeOp"`
	TimeMin       timespec.Spec   `yaml:"timeMin"`
	TimeMax       timespec.Spec   `yaml:"timeMax"`
	Level         shade.LevelSpec `yaml:"level"`
	LevelOp       string          `yaml:"levelOp"`
	Importance    float64         `yaml:"importance"`
	ResetOverride bool            `yaml:"resetOverride"`
	Days          []string        `yaml:"days"`
	Months        []string        `yaml:"months"`
	OnlyOddDays   bool            `yaml:"onlyOddDays"`
	OnlyEvenDays  bool            `yaml:"onlyEvenDays"`
	DateStart     string          `yaml:"dateStart"`
	DateEnd       string          `yaml:"dateEnd"`
	Conditions    condition.List  `yaml:"conditions"`
}

// Compile validates the configured rules and resolves their levels
// against the shade's bounds.
func Compile(configs []Config, bounds shade.Bounds) ([]Rule, error) {
	compiled := make([]Rule, 0, len(configs))
	for i, cfg := range configs {
		rule, err := cfg.compile(i+1, bounds)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

func (cfg Config) compile(position int, bounds shade.Bounds) (Rule, error) {
	r := Rule{
		Position:      position,
		Name:          cfg.Name,
		Importance:    cfg.Importance,
		ResetOverride: cfg.ResetOverride,
		Time:          cfg.Time,
		TimeMin:       cfg.TimeMin,
		TimeMax:       cfg.TimeMax,
		OnlyOddDays:   cfg.OnlyOddDays,
		OnlyEvenDays:  cfg.OnlyEvenDays,
		Conditions:    cfg.Conditions,
	}

	switch strings.ToLower(cfg.TimeOp) {
	case "":
		r.TimeOp = TimeNone
	case "until":
		r.TimeOp = TimeUntil
	case "from":
		r.TimeOp = TimeFrom
	default:
		return Rule{}, fmt.Errorf("invalid timeOp %q", cfg.TimeOp)
	}
	if r.TimeLimited() && r.Time.IsZero() {
		return Rule{}, fmt.Errorf("timeOp %q requires a time", cfg.TimeOp)
	}
	if !r.TimeLimited() && !r.Time.IsZero() {
		return Rule{}, fmt.Errorf("time %q requires a timeOp", cfg.Time)
	}

	switch strings.ToLower(cfg.LevelOp) {
	case "", "absolute":
		r.LevelOp = LevelAbsolute
	case "min":
		r.LevelOp = LevelMin
	case "max":
		r.LevelOp = LevelMax
	default:
		return Rule{}, fmt.Errorf("invalid levelOp %q", cfg.LevelOp)
	}

	var err error
	if r.Level, err = cfg.Level.Resolve(bounds, bounds.Default); err != nil {
		return Rule{}, err
	}

	if r.Days, err = parseDays(cfg.Days); err != nil {
		return Rule{}, err
	}
	if r.Months, err = parseMonths(cfg.Months); err != nil {
		return Rule{}, err
	}
	if r.OnlyOddDays && r.OnlyEvenDays {
		return Rule{}, fmt.Errorf("onlyOddDays and onlyEvenDays are mutually exclusive")
	}
	if r.DateStart, err = parseMonthDay(cfg.DateStart); err != nil {
		return Rule{}, fmt.Errorf("dateStart: %w", err)
	}
	if r.DateEnd, err = parseMonthDay(cfg.DateEnd); err != nil {
		return Rule{}, fmt.Errorf("dateEnd: %w", err)
	}
	if r.DateStart.IsZero() != r.DateEnd.IsZero() {
		return Rule{}, fmt.Errorf("dateStart and dateEnd must be set together")
	}
	return r, nil
}

// appliesOn checks the rule's calendar constraints against now.
func (r Rule) appliesOn(now time.Time) bool {
	if len(r.Days) > 0 && !r.Days.Contains(now.Weekday()) {
		return false
	}
	if len(r.Months) > 0 && !r.Months.Contains(now.Month()) {
		return false
	}
	if r.OnlyOddDays && now.Day()%2 == 0 {
		return false
	}
	if r.OnlyEvenDays && now.Day()%2 == 1 {
		return false
	}
	if !r.DateStart.IsZero() {
		today := MonthDay{Month: now.Month(), Day: now.Day()}.key()
		start, end := r.DateStart.key(), r.DateEnd.key()
		if start <= end {
			if today < start || today > end {
				return false
			}
		} else if today < start && today > end {
			// range wraps the turn of the year
			return false
		}
	}
	return true
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseDays(names []string) (set.Set[time.Weekday], error) {
	if len(names) == 0 {
		return nil, nil
	}
	days := set.New[time.Weekday]()
	for _, name := range names {
		day, ok := weekdays[strings.ToLower(name)[:min(3, len(name))]]
		if !ok {
			return nil, fmt.Errorf("invalid day %q", name)
		}
		days.Add(day)
	}
	return days, nil
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func parseMonths(names []string) (set.Set[time.Month], error) {
	if len(names) == 0 {
		return nil, nil
	}
	result := set.New[time.Month]()
	for _, name := range names {
		month, ok := months[strings.ToLower(name)[:min(3, len(name))]]
		if !ok {
			if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= 12 {
				result.Add(time.Month(n))
				continue
			}
			return nil, fmt.Errorf("invalid month %q", name)
		}
		result.Add(month)
	}
	return result, nil
}

// parseMonthDay parses "MM-DD".
func parseMonthDay(value string) (MonthDay, error) {
	if value == "" {
		return MonthDay{}, nil
	}
	t, err := time.Parse("01-02", value)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid date %q (want MM-DD)", value)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}
