package event

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reason explains why a decision produced its level. The numeric codes
// match the historical ones so downstream automations keep working.
type Reason int

const (
	ReasonNone            Reason = 0
	ReasonDefault         Reason = 1
	ReasonOverride        Reason = 2
	ReasonOverrideExpires Reason = 3
	ReasonRule            Reason = 4
	ReasonSunClampedMin   Reason = 5
	ReasonSunClampedMax   Reason = 6
	ReasonSunMinAltitude  Reason = 7
	ReasonSunNotInWindow  Reason = 8
	ReasonSunControl      Reason = 9
	ReasonOversteer       Reason = 10
	ReasonSmoothed        Reason = 11
	ReasonWinterMax       Reason = 12
	ReasonWinterMin       Reason = 13
	ReasonSunMinDelta     Reason = 14
	ReasonRuleMin         Reason = 15
	// ReasonRuleMax keeps the historical code 26 rather than the
	// expected 16.
	ReasonRuleMax Reason = 26
	// ReasonStartDelay marks decisions made before the start delay has
	// passed. These are never emitted.
	ReasonStartDelay Reason = -2
)

var reasonNames = map[Reason]string{
	ReasonNone:            "unknown",
	ReasonDefault:         "default",
	ReasonOverride:        "override",
	ReasonOverrideExpires: "override expires",
	ReasonRule:            "rule",
	ReasonSunClampedMin:   "sun control (clamped to min)",
	ReasonSunClampedMax:   "sun control (clamped to max)",
	ReasonSunMinAltitude:  "sun below min altitude",
	ReasonSunNotInWindow:  "sun not in window",
	ReasonSunControl:      "sun control",
	ReasonOversteer:       "oversteer",
	ReasonSmoothed:        "smoothed",
	ReasonWinterMax:       "sun in window (winter max)",
	ReasonWinterMin:       "sun not in window (winter min)",
	ReasonSunMinDelta:     "below min delta",
	ReasonRuleMin:         "rule minimum",
	ReasonRuleMax:         "rule maximum",
	ReasonStartDelay:      "start delay",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// TriggerCause records what bounded the auto-trigger delay.
type TriggerCause int

const (
	TriggerDefault TriggerCause = iota
	TriggerRuleEnd
	TriggerNextRule
	TriggerSunBelowHorizon
	TriggerSunNotVisible
	TriggerSunBeforeWindow
	TriggerSunInWindowSmooth
	TriggerSunInWindow
)

// SunPosition is the solar position a decision was based on.
type SunPosition struct {
	AzimuthDegrees  float64 `json:"azimuthDegrees"`
	AltitudeDegrees float64 `json:"altitudeDegrees"`
	InWindow        bool    `json:"inWindow"`
}

// Decision is the outcome of one evaluation cycle.
type Decision struct {
	Shade        string        `json:"shade"`
	Topic        string        `json:"topic"`
	Level        float64       `json:"level"`
	LevelInverse float64       `json:"levelInverse"`
	Reason       Reason        `json:"reason"`
	ReasonText   string        `json:"reasonText"`
	RuleID       int           `json:"ruleId"`
	Mode         Mode          `json:"mode"`
	Sun          *SunPosition  `json:"sun,omitempty"`
	Retrigger    time.Duration `json:"retrigger,omitempty"`
	Cause        TriggerCause  `json:"-"`
	// Changed indicates level, reason code or rule id differs from the
	// previous cycle, i.e. the decision must be emitted on the level
	// channel.
	Changed bool      `json:"changed"`
	At      time.Time `json:"at"`
}

// MarshalJSON renders unknown (NaN) levels as null.
func (d Decision) MarshalJSON() ([]byte, error) {
	type plain Decision
	aux := struct {
		plain
		Level        *float64 `json:"level"`
		LevelInverse *float64 `json:"levelInverse"`
	}{plain: plain(d)}
	if !math.IsNaN(d.Level) {
		aux.Level = &d.Level
	}
	if !math.IsNaN(d.LevelInverse) {
		aux.LevelInverse = &d.LevelInverse
	}
	return json.Marshal(aux)
}

func (d Decision) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("shade", d.Shade),
		slog.Float64("level", d.Level),
		slog.Int("reason", int(d.Reason)),
		slog.String("reasonText", d.ReasonText),
		slog.Int("rule", d.RuleID),
		slog.Bool("changed", d.Changed),
	)
}

// ExpandTopic fills the placeholders of a configured topic template.
func (d Decision) ExpandTopic(template string) string {
	if template == "" {
		return d.Topic
	}
	r := strings.NewReplacer(
		"%name%", d.Shade,
		"%level%", strconv.FormatFloat(d.Level, 'f', -1, 64),
		"%levelInverse%", strconv.FormatFloat(d.LevelInverse, 'f', -1, 64),
		"%code%", strconv.Itoa(int(d.Reason)),
		"%state%", d.Reason.String(),
		"%rule%", strconv.Itoa(d.RuleID),
		"%mode%", d.Mode.String(),
		"%topic%", d.Topic,
	)
	return r.Replace(template)
}
