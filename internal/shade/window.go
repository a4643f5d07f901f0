package shade

// Window is the physical opening the sun geometry projects onto: top and
// bottom of the glass (meters above the floor) and the azimuth range in
// which the sun can shine through it.
type Window struct {
	Top          float64 `yaml:"top"`
	Bottom       float64 `yaml:"bottom"`
	AzimuthStart float64 `yaml:"azimuthStart"`
	AzimuthEnd   float64 `yaml:"azimuthEnd"`
}

// Normalized returns the window with azimuth angles wrapped into [0, 360).
func (w Window) Normalized() Window {
	w.AzimuthStart = normalizeAngle(w.AzimuthStart)
	w.AzimuthEnd = normalizeAngle(w.AzimuthEnd)
	return w
}

// InWindow reports whether the given azimuth falls between the window's
// start and end angles.
func (w Window) InWindow(azimuthDegrees float64) bool {
	return azimuthDegrees >= w.AzimuthStart && azimuthDegrees <= w.AzimuthEnd
}

func normalizeAngle(angle float64) float64 {
	for angle < 0 {
		angle += 360
	}
	for angle >= 360 {
		angle -= 360
	}
	return angle
}
