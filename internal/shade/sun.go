package shade

import (
	"fmt"
	"math"
	"shadecontrol/internal/event"
	"shadecontrol/internal/rules/condition"
	"time"
)

// SunConfig tunes the altitude-to-level projection.
type SunConfig struct {
	// FloorLength is how far (meters) the sun may reach into the room.
	FloorLength float64 `yaml:"floorLength"`
	// MinAltitude suppresses sun control below this altitude (degrees),
	// summer mode only.
	MinAltitude float64 `yaml:"minAltitude"`
	// MinDelta suppresses changes smaller than this many level units,
	// unless the new level is fully open or fully closed.
	MinDelta float64 `yaml:"minDelta"`
	// Smooth suppresses sun-driven changes more frequent than this.
	Smooth time.Duration `yaml:"smooth"`
	// Topic overrides the outbound topic for sun-driven levels.
	Topic string `yaml:"topic"`
}

// Previous is the previous cycle's output, needed for smoothing and
// min-delta suppression.
type Previous struct {
	Level   float64
	Inverse float64
	Topic   string
}

// SunResult is the outcome of the geometry mapping.
type SunResult struct {
	Level   float64
	Inverse float64
	Topic   string
	Reason  event.Reason
	Text    string
	// Keep means the level is unchanged and the caller retains the
	// previous one.
	Keep bool
	// ChangeAgain is the earliest time the next sun-driven change may be
	// emitted. The caller carries it into the next cycle.
	ChangeAgain time.Time
	Oversteer   *OversteerMatch
}

// Mapper projects solar position onto a shade level.
type Mapper struct {
	Bounds    Bounds
	Window    Window
	Config    SunConfig
	Oversteer *Oversteer
}

// Compute maps the sun position to a level per the mode. changeAgain is
// the smoothing deadline carried over from the last sun-driven change.
func (m *Mapper) Compute(now time.Time, mode event.Mode, sun event.SunPosition, prev Previous, changeAgain time.Time, conds *condition.Evaluator) SunResult {
	r := SunResult{Topic: m.Config.Topic, ChangeAgain: changeAgain}

	if !sun.InWindow {
		if mode == event.ModeWinter {
			r.Level = m.Bounds.Min
			r.Inverse = m.Bounds.Inverse(r.Level)
			r.Reason = event.ReasonWinterMin
			r.Text = r.Reason.String()
			return r
		}
		r.Keep = true
		r.Reason = event.ReasonSunNotInWindow
		r.Text = r.Reason.String()
		return r
	}

	if mode == event.ModeSummer && m.Config.MinAltitude > 0 && sun.AltitudeDegrees < m.Config.MinAltitude {
		r.Keep = true
		r.Reason = event.ReasonSunMinAltitude
		r.Text = r.Reason.String()
		return r
	}

	if m.Oversteer != nil {
		if match, ok := m.Oversteer.Check(conds); ok {
			r.Level = match.Level
			r.Inverse = m.Bounds.Inverse(r.Level)
			r.Topic = m.Oversteer.Topic
			r.Reason = event.ReasonOversteer
			r.Text = fmt.Sprintf("oversteer: %s", match.Text)
			r.Oversteer = &match
			return r
		}
	}

	if mode == event.ModeWinter {
		r.Level = m.Bounds.Max
		r.Inverse = m.Bounds.Inverse(r.Level)
		r.Reason = event.ReasonWinterMax
		r.Text = r.Reason.String()
		return r
	}

	height := math.Tan(sun.AltitudeDegrees*math.Pi/180) * m.Config.FloorLength
	switch {
	case height <= m.Window.Bottom:
		r.Level = m.Bounds.Bottom
	case height >= m.Window.Top:
		r.Level = m.Bounds.Top
	default:
		r.Level = m.Bounds.FromFraction((height - m.Window.Bottom) / (m.Window.Top - m.Window.Bottom))
	}
	r.Inverse = m.Bounds.Inverse(r.Level)

	delta := math.Abs(prev.Level - r.Level)
	switch {
	case m.Config.Smooth > 0 && changeAgain.After(now):
		r.Level = prev.Level
		r.Inverse = prev.Inverse
		r.Topic = prev.Topic
		r.Reason = event.ReasonSmoothed
		r.Text = fmt.Sprintf("%s (at %v)", r.Reason, prev.Level)
	case m.Config.MinDelta > 0 && delta < m.Config.MinDelta && r.Level > m.Bounds.Bottom && r.Level < m.Bounds.Top:
		r.Level = prev.Level
		r.Inverse = prev.Inverse
		r.Topic = prev.Topic
		r.Reason = event.ReasonSunMinDelta
		r.Text = fmt.Sprintf("%s (at %v)", r.Reason, prev.Level)
	default:
		r.Reason = event.ReasonSunControl
		r.Text = r.Reason.String()
		r.ChangeAgain = now.Add(m.Config.Smooth)
	}

	// clamp to the configured sun-control range, keeping the pre-clamp
	// reason as context
	if r.Level < m.Bounds.Min {
		r.Text = fmt.Sprintf("%s (%s at %v)", event.ReasonSunClampedMin, r.Text, r.Level)
		r.Reason = event.ReasonSunClampedMin
		r.Level = m.Bounds.Min
		r.Inverse = m.Bounds.Inverse(r.Level)
	} else if r.Level > m.Bounds.Max {
		r.Text = fmt.Sprintf("%s (%s at %v)", event.ReasonSunClampedMax, r.Text, r.Level)
		r.Reason = event.ReasonSunClampedMax
		r.Level = m.Bounds.Max
		r.Inverse = m.Bounds.Inverse(r.Level)
	}
	return r
}
