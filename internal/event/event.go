// Package event defines the messages flowing into and out of a shade
// controller: inbound command/trigger events and the outbound decision
// produced for each of them.
package event

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Event is a single inbound message for one shade. Every cycle of the
// controller starts with exactly one Event, whether it came from MQTT,
// Slack, or one of the controller's own timers.
type Event struct {
	// Shade names the target shade. Empty means "all shades" for
	// trigger-only events.
	Shade string
	// Topic is the raw inbound topic, used for marker detection
	// (noExpire, roundLevel) and echoed in the decision.
	Topic string
	// Level is the requested level for a manual override. NaN means the
	// event does not carry a level.
	Level float64
	// Importance ranks the event against an active override.
	Importance int
	// ExactImportance requires equality instead of >= in the
	// significance test.
	ExactImportance bool
	// Expire sets the override lifetime. Zero means "not set"; negative
	// means "never expire".
	Expire time.Duration
	// HasExpire distinguishes an absent Expire from an explicit zero.
	HasExpire bool
	// Reset clears an active override (subject to significance).
	Reset bool
	// TriggerOnly re-evaluates without touching override state.
	TriggerOnly bool
	// Mode switches the sun-control mode (ModeOff/ModeWinter/ModeSummer).
	// Nil leaves the mode unchanged.
	Mode *Mode
	// IgnoreSameValue suppresses an override set when the level equals
	// the previous output.
	IgnoreSameValue bool
	// AllowRound quantizes the requested level to the configured
	// increment instead of rejecting off-increment values.
	AllowRound bool
	// At overrides the evaluation time. Zero means time.Now().
	At time.Time
}

// NewTrigger returns a trigger-only event, as synthesized by the
// auto-trigger and override-expiry timers.
func NewTrigger(shade, topic string) Event {
	return Event{Shade: shade, Topic: topic, Level: math.NaN(), TriggerOnly: true}
}

// NewSet returns a manual override event.
func NewSet(shade string, level float64) Event {
	return Event{Shade: shade, Level: level}
}

// Time returns the evaluation time for the event.
func (e Event) Time() time.Time {
	if e.At.IsZero() {
		return time.Now()
	}
	return e.At
}

// HasLevel reports whether the event carries a target level.
func (e Event) HasLevel() bool {
	return !math.IsNaN(e.Level)
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("shade", e.Shade),
		slog.String("topic", e.Topic),
		slog.Bool("trigger", e.TriggerOnly),
	}
	if e.HasLevel() {
		attrs = append(attrs, slog.Float64("level", e.Level))
	}
	if e.Importance > 0 {
		attrs = append(attrs, slog.Int("importance", e.Importance))
	}
	return slog.GroupValue(attrs...)
}

// Mode selects how sun geometry contributes to the output level.
type Mode int

const (
	ModeOff Mode = iota
	ModeWinter
	ModeSummer
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeWinter:
		return "winter"
	case ModeSummer:
		return "summer"
	}
	return "unknown"
}

// ParseMode converts a mode name to its Mode value.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(value) {
	case "off":
		return ModeOff, nil
	case "winter":
		return ModeWinter, nil
	case "summer":
		return ModeSummer, nil
	}
	return ModeOff, fmt.Errorf("invalid mode %q", value)
}
