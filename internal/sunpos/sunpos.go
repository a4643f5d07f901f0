// Package sunpos computes the sun's position for a configured location.
package sunpos

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Position is the sun's location in the sky, in compass degrees
// (0 = north, 90 = east) and degrees above the horizon.
type Position struct {
	AzimuthDegrees  float64
	AltitudeDegrees float64
}

// Calculator returns the sun position at a given time.
type Calculator interface {
	Position(t time.Time) Position
}

// Location is a fixed observer on earth.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Position implements Calculator. The underlying ephemeris measures
// azimuth from south; it is converted to a compass bearing here.
func (l Location) Position(t time.Time) Position {
	p := suncalc.GetPosition(t, l.Latitude, l.Longitude)
	return Position{
		AzimuthDegrees:  normalize(p.Azimuth*180/math.Pi + 180),
		AltitudeDegrees: p.Altitude * 180 / math.Pi,
	}
}

func normalize(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}
