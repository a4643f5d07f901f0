package controller

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadecontrol/internal/event"
	"shadecontrol/internal/rules"
	"shadecontrol/internal/shade"
	"shadecontrol/internal/store"
	"shadecontrol/internal/sunpos"
	"shadecontrol/internal/timespec"
	"shadecontrol/pkg/pubsub"
)

type fakeSun struct {
	pos sunpos.Position
}

func (f fakeSun) Position(time.Time) sunpos.Position { return f.pos }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testController(t *testing.T, configs []rules.Config, mode event.Mode, sun sunpos.Calculator) (*Controller, chan event.Decision) {
	t.Helper()
	bounds, err := shade.NewBounds(100, 0, 1, "", "", "")
	require.NoError(t, err)
	compiled, err := rules.Compile(configs, bounds)
	require.NoError(t, err)

	logger := discard()
	cfg := Config{
		Name:          "living",
		Bounds:        bounds,
		Rules:         rules.New(compiled, bounds, timespec.Clock{}, logger),
		Mode:          mode,
		MaxMode:       event.ModeSummer,
		DefaultExpiry: time.Hour,
		Sun:           sun,
	}
	if sun != nil {
		cfg.Mapper = &shade.Mapper{
			Bounds: bounds,
			Window: shade.Window{Top: 2.5, Bottom: 0.5, AzimuthStart: 90, AzimuthEnd: 270},
			Config: shade.SunConfig{FloorLength: 1},
		}
	}

	publisher := pubsub.New[event.Decision](logger)
	ch := publisher.Subscribe()
	t.Cleanup(func() { publisher.Unsubscribe(ch) })

	c := New(cfg, publisher, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()
	return c, ch
}

func waitDecision(t *testing.T, ch chan event.Decision) event.Decision {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for decision")
		return event.Decision{}
	}
}

func TestController_DefaultLevel(t *testing.T) {
	_, ch := testController(t, nil, event.ModeOff, nil)

	d := waitDecision(t, ch)
	assert.Equal(t, "living", d.Shade)
	assert.Equal(t, 100.0, d.Level)
	assert.Equal(t, 0.0, d.LevelInverse)
	assert.Equal(t, event.ReasonDefault, d.Reason)
	assert.Equal(t, rules.DefaultRuleID, d.RuleID)
	assert.True(t, d.Changed)
}

func TestController_ManualOverride(t *testing.T) {
	c, ch := testController(t, nil, event.ModeOff, nil)
	waitDecision(t, ch) // startup

	c.Submit(event.NewSet("living", 25))
	d := waitDecision(t, ch)
	assert.Equal(t, 25.0, d.Level)
	assert.Equal(t, event.ReasonOverrideExpires, d.Reason)
	assert.True(t, d.Changed)

	// a trigger while overridden repeats the decision without a change
	c.Submit(event.NewTrigger("living", "trigger"))
	d = waitDecision(t, ch)
	assert.Equal(t, 25.0, d.Level)
	assert.False(t, d.Changed)

	// reset falls back to the default level
	c.Submit(event.Event{Shade: "living", Level: nan(), Reset: true})
	d = waitDecision(t, ch)
	assert.Equal(t, 100.0, d.Level)
	assert.Equal(t, event.ReasonDefault, d.Reason)
	assert.True(t, d.Changed)
}

func TestController_Rule(t *testing.T) {
	c, ch := testController(t, []rules.Config{
		{Name: "all day", TimeOp: "until", Time: timespec.Spec{Time: "23:59"}, Level: "closed"},
	}, event.ModeOff, nil)

	d := waitDecision(t, ch)
	assert.Equal(t, event.ReasonRule, d.Reason)
	assert.Equal(t, 0.0, d.Level)
	assert.Equal(t, 1, d.RuleID)
	assert.Positive(t, d.Retrigger)
	assert.Equal(t, event.TriggerRuleEnd, d.Cause)

	// a rule with higher importance preempts an override
	c.Submit(event.NewSet("living", 50))
	d = waitDecision(t, ch)
	assert.Equal(t, 50.0, d.Level)
	assert.Equal(t, event.ReasonOverrideExpires, d.Reason)
}

func TestController_MinRuleCapsSelectedRule(t *testing.T) {
	c, ch := testController(t, []rules.Config{
		{Name: "floor", LevelOp: "min", Level: "60"},
		{Name: "all day", TimeOp: "until", Time: timespec.Spec{Time: "23:59"}, Level: "20"},
	}, event.ModeOff, nil)

	d := waitDecision(t, ch)
	assert.Equal(t, 60.0, d.Level)
	assert.Equal(t, event.ReasonRuleMin, d.Reason)
	assert.Equal(t, 1, d.RuleID)

	// an override is not subject to the floor
	c.Submit(event.NewSet("living", 30))
	d = waitDecision(t, ch)
	assert.Equal(t, 30.0, d.Level)
	assert.Equal(t, event.ReasonOverrideExpires, d.Reason)
}

func TestController_RulePreemptsLowImportanceOverride(t *testing.T) {
	c, ch := testController(t, []rules.Config{
		{Name: "storm", TimeOp: "until", Time: timespec.Spec{Time: "23:59"}, Level: "open", Importance: 5},
	}, event.ModeOff, nil)
	waitDecision(t, ch)

	e := event.NewSet("living", 25)
	e.Importance = 1
	c.Submit(e)
	d := waitDecision(t, ch)
	assert.Equal(t, event.ReasonRule, d.Reason)
	assert.Equal(t, 100.0, d.Level)
}

func TestController_SunControl(t *testing.T) {
	c, ch := testController(t, nil, event.ModeSummer,
		fakeSun{pos: sunpos.Position{AzimuthDegrees: 180, AltitudeDegrees: 45}})

	d := waitDecision(t, ch)
	assert.Equal(t, event.ReasonSunControl, d.Reason)
	assert.Equal(t, 25.0, d.Level)
	require.NotNil(t, d.Sun)
	assert.True(t, d.Sun.InWindow)
	assert.Equal(t, event.TriggerSunInWindow, d.Cause)

	// unchanged position: decision repeats, not flagged as a change
	c.Submit(event.NewTrigger("living", "trigger"))
	d = waitDecision(t, ch)
	assert.Equal(t, 25.0, d.Level)
	assert.False(t, d.Changed)
}

func TestController_SunOutsideWindow(t *testing.T) {
	_, ch := testController(t, nil, event.ModeSummer,
		fakeSun{pos: sunpos.Position{AzimuthDegrees: 45, AltitudeDegrees: 30}})

	d := waitDecision(t, ch)
	assert.Equal(t, event.ReasonSunNotInWindow, d.Reason)
	assert.Equal(t, event.TriggerSunBeforeWindow, d.Cause)
}

func TestController_ModeSwitch(t *testing.T) {
	c, ch := testController(t, nil, event.ModeOff,
		fakeSun{pos: sunpos.Position{AzimuthDegrees: 180, AltitudeDegrees: 45}})

	d := waitDecision(t, ch)
	assert.Equal(t, event.ReasonDefault, d.Reason)

	mode := event.ModeSummer
	c.Submit(event.Event{Shade: "living", Level: nan(), TriggerOnly: true, Mode: &mode})
	d = waitDecision(t, ch)
	assert.Equal(t, event.ModeSummer, d.Mode)
	assert.Equal(t, event.ReasonSunControl, d.Reason)
}

func TestManager_Submit(t *testing.T) {
	logger := discard()
	bounds, err := shade.NewBounds(100, 0, 1, "", "", "")
	require.NoError(t, err)
	publisher := pubsub.New[event.Decision](logger)

	newController := func(name string) *Controller {
		return New(Config{
			Name:   name,
			Bounds: bounds,
			Rules:  rules.New(nil, bounds, timespec.Clock{}, logger),
		}, publisher, logger)
	}
	living := newController("living")
	office := newController("office")
	m := NewManager([]*Controller{living, office}, logger)

	m.Submit(event.NewSet("living", 25))
	assert.Len(t, living.events, 1)
	assert.Len(t, office.events, 0)

	m.Submit(event.NewTrigger("", "broadcast"))
	assert.Len(t, living.events, 2)
	assert.Len(t, office.events, 1)

	m.Submit(event.NewSet("garage", 25)) // unknown shade is dropped
	assert.Len(t, living.events, 2)
	assert.Len(t, office.events, 1)
}

func TestController_PersistedState(t *testing.T) {
	logger := discard()
	bounds, err := shade.NewBounds(100, 0, 1, "", "", "")
	require.NoError(t, err)
	st := store.NewMemory()
	publisher := pubsub.New[event.Decision](logger)
	ch := publisher.Subscribe()
	defer publisher.Unsubscribe(ch)

	cfg := Config{
		Name:          "living",
		Bounds:        bounds,
		Rules:         rules.New(nil, bounds, timespec.Clock{}, logger),
		DefaultExpiry: time.Hour,
		Source:        st,
		State:         st,
	}

	c := New(cfg, publisher, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = c.Run(ctx) }()

	waitDecision(t, ch) // startup
	c.Submit(event.NewSet("living", 25))
	d := waitDecision(t, ch)
	require.Equal(t, event.ReasonOverrideExpires, d.Reason)

	cancel()
	<-done

	// a fresh controller on the same store picks the override back up
	c = New(cfg, publisher, logger)
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	d = waitDecision(t, ch)
	assert.Equal(t, event.ReasonOverrideExpires, d.Reason)
	assert.Equal(t, 25.0, d.Level)
}

func nan() float64 { return math.NaN() }
