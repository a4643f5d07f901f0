// Package shade holds the level arithmetic and the sun-geometry mapping
// for a single shade: bounds and quantization, typed level specs, window
// geometry and the altitude-to-level projection.
package shade

import (
	"fmt"
	"math"
)

// Bounds describes the level range of a shade. Top is the fully open
// level, Bottom fully closed. If the configuration supplied them inverted
// they are swapped at construction and Reverse is set, so all internal
// math runs on a normalized range, with the inverse level emitted for
// the actuator.
type Bounds struct {
	Top       float64
	Bottom    float64
	Increment float64
	Min       float64
	Max       float64
	Default   float64
	Reverse   bool
}

// NewBounds normalizes the configured range and resolves the default,
// minimum and maximum level specs against it.
func NewBounds(top, bottom, increment float64, def, min, max LevelSpec) (Bounds, error) {
	b := Bounds{Top: top, Bottom: bottom, Increment: increment}
	if b.Increment <= 0 {
		b.Increment = 1
	}
	if b.Top < b.Bottom {
		b.Top, b.Bottom = b.Bottom, b.Top
		b.Reverse = true
	}
	var err error
	if b.Default, err = def.Resolve(b, b.Top); err != nil {
		return Bounds{}, fmt.Errorf("default level: %w", err)
	}
	if b.Min, err = min.Resolve(b, b.Bottom); err != nil {
		return Bounds{}, fmt.Errorf("min level: %w", err)
	}
	if b.Max, err = max.Resolve(b, b.Top); err != nil {
		return Bounds{}, fmt.Errorf("max level: %w", err)
	}
	return b, nil
}

// Quantize rounds level to the nearest increment and clamps it to
// [Bottom, Top].
func (b Bounds) Quantize(level float64) float64 {
	level = math.Round(level/b.Increment) * b.Increment
	// limit float noise to the increment's precision
	level = roundPlaces(level, decimals(b.Increment))
	return math.Min(math.Max(level, b.Bottom), b.Top)
}

// Inverse mirrors a level across the midpoint of the range.
func (b Bounds) Inverse(level float64) float64 {
	if math.IsNaN(level) {
		return level
	}
	return b.Top + b.Bottom - level
}

// FromFraction converts a position in [0,1] to a quantized level.
func (b Bounds) FromFraction(f float64) float64 {
	return b.Quantize(b.Bottom + (b.Top-b.Bottom)*f)
}

// Validate checks a requested level against the range and, unless
// allowRound is set, against the increment grid.
func (b Bounds) Validate(level float64, allowRound bool) error {
	if math.IsNaN(level) {
		return fmt.Errorf("level is not a number")
	}
	if level < b.Bottom {
		return fmt.Errorf("level %v below %v", level, b.Bottom)
	}
	if level > b.Top {
		return fmt.Errorf("level %v above %v", level, b.Top)
	}
	if !allowRound && !onIncrement(level, b.Increment) {
		return fmt.Errorf("level %v does not fit increment %v", level, b.Increment)
	}
	return nil
}

func onIncrement(level, increment float64) bool {
	ratio := level / increment
	return math.Abs(ratio-math.Round(ratio)) < 1e-9
}

func decimals(v float64) int {
	var n int
	for v != math.Trunc(v) && n < 10 {
		v *= 10
		n++
	}
	return n
}

func roundPlaces(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
