package timespec

import (
	"fmt"
	"github.com/sixdouglas/suncalc"
	"strings"
	"time"
)

// Clock resolves specs against a geographic location, using suncalc for
// the sun events.
type Clock struct {
	Latitude  float64
	Longitude float64
}

var _ Resolver = Clock{}

// Resolve returns the spec's timestamp on the calendar day of now.
func (c Clock) Resolve(spec Spec, now time.Time) (time.Time, error) {
	var resolved time.Time
	var err error
	switch {
	case spec.Time != "":
		resolved, err = resolveFixed(spec.Time, now)
	case spec.Sun != "":
		resolved, err = c.resolveSun(spec.Sun, now)
	default:
		return time.Time{}, ErrEmptySpec
	}
	if err != nil {
		return time.Time{}, err
	}
	return resolved.Add(spec.Offset), nil
}

func resolveFixed(value string, now time.Time) (time.Time, error) {
	var parsed time.Time
	var err error
	for _, layout := range []string{"15:04:05", "15:04"} {
		if parsed, err = time.Parse(layout, value); err == nil {
			return time.Date(now.Year(), now.Month(), now.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), 0, now.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

func (c Clock) resolveSun(name string, now time.Time) (time.Time, error) {
	times := suncalc.GetTimes(now, c.Latitude, c.Longitude)
	for dayTimeName, dayTime := range times {
		if strings.EqualFold(string(dayTimeName), name) {
			if dayTime.Value.IsZero() {
				return time.Time{}, fmt.Errorf("sun event %q does not occur on %s", name, now.Format(time.DateOnly))
			}
			return dayTime.Value.In(now.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown sun event %q", name)
}
