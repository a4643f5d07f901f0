// Package configuration loads the shades file: per-shade geometry,
// schedule rules, sun settings and the sensor topic map.
package configuration

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"shadecontrol/internal/controller"
	"shadecontrol/internal/event"
	"shadecontrol/internal/rules"
	"shadecontrol/internal/shade"
	"shadecontrol/internal/sunpos"
	"shadecontrol/internal/timespec"
)

// Configuration is the content of the shades file.
type Configuration struct {
	Defaults Defaults             `yaml:"defaults"`
	Sensors  map[string]string    `yaml:"sensors"`
	Shades   []ShadeConfiguration `yaml:"shades"`
}

// Defaults apply to every shade that does not set its own value.
type Defaults struct {
	// Expire is the default manual override expiry.
	Expire time.Duration `yaml:"expire"`
	// StartDelay postpones the first decision after startup.
	StartDelay time.Duration `yaml:"startDelay"`
	// Mode is the initial sun-control mode (off/winter/summer).
	Mode string `yaml:"mode"`
}

// ShadeConfiguration describes one shade.
type ShadeConfiguration struct {
	Name      string  `yaml:"name"`
	Top       float64 `yaml:"top"`
	Bottom    float64 `yaml:"bottom"`
	Increment float64 `yaml:"increment"`

	Default shade.LevelSpec `yaml:"default"`
	Min     shade.LevelSpec `yaml:"min"`
	Max     shade.LevelSpec `yaml:"max"`

	Mode       string        `yaml:"mode"`
	StartDelay time.Duration `yaml:"startDelay"`
	Expire     time.Duration `yaml:"expire"`

	Window    *shade.Window         `yaml:"window"`
	Sun       *shade.SunConfig      `yaml:"sun"`
	Oversteer []shade.OversteerRule `yaml:"oversteer"`
	// OversteerTopic overrides the outbound topic while an oversteer
	// rule holds.
	OversteerTopic string `yaml:"oversteerTopic"`

	Rules []rules.Config `yaml:"rules"`
}

// Load decodes and validates the shades file.
func Load(content []byte) (Configuration, error) {
	cfg := Configuration{
		Defaults: Defaults{Expire: 2 * time.Hour, Mode: "off"},
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("invalid shades file: %w", err)
	}
	if len(cfg.Shades) == 0 {
		return Configuration{}, fmt.Errorf("no shades configured")
	}
	names := make(map[string]struct{}, len(cfg.Shades))
	for i, s := range cfg.Shades {
		if s.Name == "" {
			return Configuration{}, fmt.Errorf("shade %d: no name", i+1)
		}
		if _, ok := names[s.Name]; ok {
			return Configuration{}, fmt.Errorf("shade %q: duplicate name", s.Name)
		}
		names[s.Name] = struct{}{}
	}
	return cfg, nil
}

// Build compiles one shade's configuration into a controller config.
// The Source and Memo fields are left for the caller to wire up.
func (s ShadeConfiguration) Build(defaults Defaults, location sunpos.Location, logger *slog.Logger) (controller.Config, error) {
	top, bottom, increment := s.Top, s.Bottom, s.Increment
	if top == 0 && bottom == 0 {
		top, bottom = 100, 0
	}
	if increment == 0 {
		increment = 1
	}
	bounds, err := shade.NewBounds(top, bottom, increment, s.Default, s.Min, s.Max)
	if err != nil {
		return controller.Config{}, fmt.Errorf("shade %q: %w", s.Name, err)
	}

	compiled, err := rules.Compile(s.Rules, bounds)
	if err != nil {
		return controller.Config{}, fmt.Errorf("shade %q: %w", s.Name, err)
	}

	cfg := controller.Config{
		Name:          s.Name,
		Bounds:        bounds,
		Rules:         rules.New(compiled, bounds, timespec.Clock(location), logger),
		StartDelay:    s.StartDelay,
		DefaultExpiry: s.Expire,
		Sun:           location,
	}
	if cfg.StartDelay == 0 {
		cfg.StartDelay = defaults.StartDelay
	}
	if cfg.DefaultExpiry == 0 {
		cfg.DefaultExpiry = defaults.Expire
	}

	mode := s.Mode
	if mode == "" {
		mode = defaults.Mode
	}
	if mode != "" {
		if cfg.Mode, err = event.ParseMode(mode); err != nil {
			return controller.Config{}, fmt.Errorf("shade %q: %w", s.Name, err)
		}
	}

	if s.Sun != nil {
		if s.Window == nil {
			return controller.Config{}, fmt.Errorf("shade %q: sun control needs a window", s.Name)
		}
		oversteer := shade.Oversteer{Rules: s.Oversteer, Topic: s.OversteerTopic}
		if err = oversteer.Compile(bounds); err != nil {
			return controller.Config{}, fmt.Errorf("shade %q: %w", s.Name, err)
		}
		cfg.Mapper = &shade.Mapper{
			Bounds:    bounds,
			Window:    s.Window.Normalized(),
			Config:    *s.Sun,
			Oversteer: &oversteer,
		}
		cfg.MaxMode = event.ModeSummer
	} else if len(s.Oversteer) > 0 {
		return controller.Config{}, fmt.Errorf("shade %q: oversteer needs sun control", s.Name)
	}
	if cfg.Mode > cfg.MaxMode {
		cfg.Mode = cfg.MaxMode
	}

	return cfg, nil
}
