// Package timespec resolves configured times of day to concrete
// timestamps. A spec is either a fixed wall-clock time ("06:30",
// "22:15:30") or a named sun event ("sunrise", "sunset", ...), optionally
// shifted by an offset. Sun events are resolved for the calendar day of
// the reference time.
package timespec

import (
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"time"
)

var ErrEmptySpec = errors.New("empty time spec")

// Spec is a resolvable time-of-day descriptor.
type Spec struct {
	Time   string        `yaml:"time,omitempty"`   // "15:04" or "15:04:05"
	Sun    string        `yaml:"sun,omitempty"`    // sun event name
	Offset time.Duration `yaml:"offset,omitempty"` // applied after resolution
}

func (s Spec) IsZero() bool {
	return s.Time == "" && s.Sun == ""
}

func (s Spec) String() string {
	base := s.Time
	if s.Sun != "" {
		base = s.Sun
	}
	if s.Offset != 0 {
		return fmt.Sprintf("%s%+v", base, s.Offset)
	}
	return base
}

// UnmarshalYAML accepts either a scalar ("06:30" or "sunset") or the full
// mapping form.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = parseScalar(node.Value)
		return nil
	}
	type plain Spec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Spec(p)
	return nil
}

func parseScalar(value string) Spec {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if _, err := time.Parse(layout, value); err == nil {
			return Spec{Time: value}
		}
	}
	return Spec{Sun: value}
}

// Resolver turns a Spec into a timestamp on the reference day.
type Resolver interface {
	Resolve(spec Spec, now time.Time) (time.Time, error)
}

// DayID is a calendar-day fingerprint, used to reject resolved times that
// crossed a date boundary.
func DayID(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
