package shade

import (
	"fmt"
	"strconv"
	"strings"
)

// LevelSpec is a typed level from the configuration: the keywords "open"
// and "closed", a percentage of the range ("75%"), or an absolute level
// ("42"). The empty spec resolves to a caller-supplied default.
type LevelSpec string

// Resolve returns the spec's absolute level, or def for the empty spec.
// The result is validated against the bounds.
func (s LevelSpec) Resolve(b Bounds, def float64) (float64, error) {
	level, err := s.resolve(b, def)
	if err != nil {
		return 0, err
	}
	if level < b.Bottom || level > b.Top {
		return 0, fmt.Errorf("level %v outside [%v, %v]", level, b.Bottom, b.Top)
	}
	return level, nil
}

func (s LevelSpec) resolve(b Bounds, def float64) (float64, error) {
	value := strings.TrimSpace(string(s))
	switch {
	case value == "":
		return def, nil
	case strings.EqualFold(value, "open"):
		return b.Top, nil
	case strings.EqualFold(value, "closed"):
		return b.Bottom, nil
	case strings.HasSuffix(value, "%"):
		pct, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid level %q", value)
		}
		return b.FromFraction(pct / 100), nil
	}
	level, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", value)
	}
	return level, nil
}

func (s LevelSpec) IsZero() bool {
	return strings.TrimSpace(string(s)) == ""
}
