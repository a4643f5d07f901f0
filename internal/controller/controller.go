// Package controller runs the decision loop for each shade: every inbound
// event (MQTT command, Slack command, or one of its own timers) triggers
// one evaluation cycle of override, schedule rules and sun geometry, and
// every cycle ends in a published Decision.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"shadecontrol/internal/event"
	"shadecontrol/internal/override"
	"shadecontrol/internal/rules"
	"shadecontrol/internal/rules/condition"
	"shadecontrol/internal/shade"
	"shadecontrol/internal/store"
	"shadecontrol/internal/sunpos"
	"shadecontrol/pkg/pubsub"
	"shadecontrol/pkg/scheduler"
)

// AutoTriggerTopic marks cycles started by the controller's own timer.
const AutoTriggerTopic = "internal/autoTrigger"

// StartupTopic marks the initial cycle after the controller starts.
const StartupTopic = "internal/startup"

// Rescan intervals while waiting for the sun to reach or leave the
// window.
const (
	beforeWindowInterval = 10 * time.Minute
	inWindowInterval     = 5 * time.Minute
)

// Config assembles one shade's controller.
type Config struct {
	Name          string
	Bounds        shade.Bounds
	Mapper        *shade.Mapper
	Rules         *rules.Evaluator
	Mode          event.Mode
	// MaxMode caps runtime mode switches. A shade without summer
	// geometry cannot be switched into summer mode.
	MaxMode event.Mode
	StartDelay    time.Duration
	DefaultExpiry time.Duration
	Sun           sunpos.Calculator
	Source        condition.Source
	// State persists the memo, mode and override across restarts.
	// Optional.
	State store.Store
	// Memo is the condition value cache, possibly restored from the
	// store.
	Memo map[string]any
}

// Controller owns the full state of one shade. All state is touched only
// by the Run goroutine; timers and other goroutines talk to it through
// Submit.
type Controller struct {
	name      string
	bounds    shade.Bounds
	mapper    *shade.Mapper
	rules     *rules.Evaluator
	override  *override.Manager
	sun       sunpos.Calculator
	source    condition.Source
	state     store.Store
	memo      map[string]any
	publisher *pubsub.Publisher[event.Decision]
	events    chan event.Event
	logger    *slog.Logger

	mode        event.Mode
	maxMode     event.Mode
	startDelay  time.Duration
	startedAt   time.Time
	previous    previousState
	changeAgain time.Time
	autoTrigger *scheduler.Job
}

type previousState struct {
	level   float64
	inverse float64
	topic   string
	reason  event.Reason
	ruleID  int
	valid   bool
}

func New(cfg Config, publisher *pubsub.Publisher[event.Decision], logger *slog.Logger) *Controller {
	c := Controller{
		name:       cfg.Name,
		bounds:     cfg.Bounds,
		mapper:     cfg.Mapper,
		rules:      cfg.Rules,
		sun:        cfg.Sun,
		source:     cfg.Source,
		state:      cfg.State,
		memo:       cfg.Memo,
		publisher:  publisher,
		events:     make(chan event.Event, 16),
		logger:     logger,
		mode:       cfg.Mode,
		maxMode:    cfg.MaxMode,
		startDelay: cfg.StartDelay,
		previous:   previousState{level: math.NaN(), inverse: math.NaN(), ruleID: rules.DefaultRuleID},
	}
	if c.memo == nil {
		c.memo = make(map[string]any)
	}
	c.override = override.New(cfg.Name, cfg.Bounds, cfg.DefaultExpiry, c.Submit, logger)
	return &c
}

// Name returns the shade's name.
func (c *Controller) Name() string { return c.name }

// Memo returns the condition value cache, for persisting on shutdown.
func (c *Controller) Memo() map[string]any { return c.memo }

// Submit queues an event for processing. Events are dropped (with a
// warning) if the controller cannot keep up.
func (c *Controller) Submit(e event.Event) {
	select {
	case c.events <- e:
	default:
		c.logger.Warn("event dropped", slog.Any("event", e))
	}
}

// Run processes events until the context is canceled.
func (c *Controller) Run(ctx context.Context) error {
	c.startedAt = time.Now()
	c.logger.Debug("controller started")
	defer c.logger.Debug("controller stopped")
	defer c.override.Close()
	defer c.cancelAutoTrigger()

	c.restoreState(ctx)
	defer c.saveState()

	c.Submit(event.NewTrigger(c.name, StartupTopic))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-c.events:
			if e.Shade != "" && e.Shade != c.name {
				continue
			}
			c.process(ctx, e)
		}
	}
}

// persistedState survives a restart: the condition value memo, the
// sun-control mode and an active manual override.
type persistedState struct {
	Memo     map[string]any     `json:"memo,omitempty"`
	Mode     string             `json:"mode"`
	Override *override.Snapshot `json:"override,omitempty"`
}

func (c *Controller) restoreState(ctx context.Context) {
	if c.state == nil {
		return
	}
	var s persistedState
	found, err := c.state.LoadJSON(ctx, "shade/"+c.name, &s)
	if err != nil {
		c.logger.Warn("failed to restore state", slog.Any("err", err))
		return
	}
	if !found {
		return
	}
	if s.Memo != nil {
		c.memo = s.Memo
	}
	if s.Mode != "" {
		if mode, err := event.ParseMode(s.Mode); err == nil {
			c.mode = min(mode, c.maxMode)
		}
	}
	c.override.Restore(ctx, s.Override, time.Now())
}

func (c *Controller) saveState() {
	if c.state == nil {
		return
	}
	s := persistedState{
		Memo:     c.memo,
		Mode:     c.mode.String(),
		Override: c.override.Snapshot(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.state.SaveJSON(ctx, "shade/"+c.name, s); err != nil {
		c.logger.Warn("failed to save state", slog.Any("err", err))
	}
}

// process runs one evaluation cycle. A panic in a cycle is contained so a
// bad event cannot take the controller down.
func (c *Controller) process(ctx context.Context, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cycle failed", slog.Any("panic", r))
		}
	}()

	now := e.Time()
	if e.Mode != nil {
		mode := min(*e.Mode, c.maxMode)
		if mode != c.mode {
			c.logger.Info("mode changed", slog.String("mode", mode.String()))
			c.mode = mode
		}
	}

	overridden, err := c.override.Check(ctx, e, now, c.previous.level)
	if err != nil {
		c.logger.Error("override rejected", slog.Any("err", err), slog.Any("event", e))
	}

	d := event.Decision{
		Shade:  c.name,
		Topic:  e.Topic,
		Mode:   c.mode,
		RuleID: rules.DefaultRuleID,
		At:     now,
	}

	if until := c.startedAt.Add(c.startDelay); c.startDelay > 0 && now.Before(until) {
		d.Level = c.previous.level
		d.Reason = event.ReasonStartDelay
		d.ReasonText = event.ReasonStartDelay.String()
		c.finish(ctx, &d, now, until, event.TriggerDefault)
		return
	}

	conds := condition.NewEvaluator(c.source, c.memo, c.logger)

	var sel rules.Selection
	var evaluated bool
	if !overridden || c.rules.CanResetOverride() || c.rules.MaxImportance() > float64(c.override.Importance()) {
		sel = c.rules.Evaluate(now, conds)
		evaluated = true
	}
	if overridden && evaluated && sel.RuleID != rules.DefaultRuleID {
		if sel.ResetOverride && sel.RuleID != c.previous.ruleID {
			c.logger.Info("override reset by rule", slog.String("rule", sel.Text))
			c.override.Reset()
			overridden = false
		} else if sel.Importance > float64(c.override.Importance()) {
			overridden = false
		}
	}

	var retriggerAt time.Time
	cause := event.TriggerDefault

	switch {
	case overridden:
		d.Level = c.override.Level()
		if topic := c.override.Topic(); topic != "" {
			d.Topic = topic
		}
		if expires := c.override.Expires(); !expires.IsZero() {
			d.Reason = event.ReasonOverrideExpires
			d.ReasonText = fmt.Sprintf("%s at %s", event.ReasonOverrideExpires, expires.Format(time.RFC3339))
		} else {
			d.Reason = event.ReasonOverride
			d.ReasonText = fmt.Sprintf("%s (importance %d)", event.ReasonOverride, c.override.Importance())
		}

	case sel.Reason == event.ReasonRule:
		d.Level = sel.Level
		d.RuleID = sel.RuleID
		d.Reason = sel.Reason
		d.ReasonText = sel.Text
		if !sel.RuleEnd.IsZero() {
			retriggerAt, cause = sel.RuleEnd, event.TriggerRuleEnd
		}

	default:
		d.Level = c.bounds.Default
		d.Reason = event.ReasonDefault
		d.ReasonText = event.ReasonDefault.String()
		if c.mode != event.ModeOff && c.mapper != nil && c.sun != nil {
			retriggerAt, cause = c.applySun(&d, now, conds)
		}
	}

	// min/max rules cap whatever the rules or the sun produced, but never
	// an override level
	if !overridden {
		if level, reason, matched := sel.Clamp(d.Level); matched != nil {
			d.ReasonText = fmt.Sprintf("%s (%s; was %s at %v)", reason, matched.Name, d.ReasonText, d.Level)
			d.Level = level
			d.Reason = reason
			d.RuleID = matched.RuleID
		}
	}

	if evaluated && !sel.Retrigger.IsZero() && (retriggerAt.IsZero() || sel.Retrigger.Before(retriggerAt)) {
		retriggerAt, cause = sel.Retrigger, event.TriggerNextRule
	}

	c.finish(ctx, &d, now, retriggerAt, cause)
}

// applySun runs the sun-geometry mapping and returns when to rescan.
func (c *Controller) applySun(d *event.Decision, now time.Time, conds *condition.Evaluator) (time.Time, event.TriggerCause) {
	pos := c.sun.Position(now)
	sp := event.SunPosition{
		AzimuthDegrees:  pos.AzimuthDegrees,
		AltitudeDegrees: pos.AltitudeDegrees,
		InWindow:        c.mapper.Window.InWindow(pos.AzimuthDegrees),
	}
	d.Sun = &sp

	prev := shade.Previous{Level: c.previous.level, Inverse: c.previous.inverse, Topic: c.previous.topic}
	res := c.mapper.Compute(now, c.mode, sp, prev, c.changeAgain, conds)
	c.changeAgain = res.ChangeAgain

	if res.Keep {
		if c.previous.valid {
			d.Level = c.previous.level
			d.Topic = c.previous.topic
		}
	} else {
		d.Level = res.Level
		if res.Topic != "" {
			d.Topic = res.Topic
		}
	}
	d.Reason = res.Reason
	d.ReasonText = res.Text

	switch {
	case !sp.InWindow && sp.AltitudeDegrees < 0:
		return now.Add(beforeWindowInterval), event.TriggerSunBelowHorizon
	case !sp.InWindow:
		return now.Add(beforeWindowInterval), event.TriggerSunBeforeWindow
	case c.changeAgain.After(now):
		return c.changeAgain, event.TriggerSunInWindowSmooth
	default:
		return now.Add(inWindowInterval), event.TriggerSunInWindow
	}
}

// finish completes a cycle: change detection, publication, the next
// auto-trigger, and the previous-state bookkeeping.
func (c *Controller) finish(ctx context.Context, d *event.Decision, now, retriggerAt time.Time, cause event.TriggerCause) {
	d.LevelInverse = c.bounds.Inverse(d.Level)
	if d.Reason != event.ReasonStartDelay {
		d.Changed = !c.previous.valid ||
			!levelsEqual(d.Level, c.previous.level) ||
			d.Reason != c.previous.reason ||
			d.RuleID != c.previous.ruleID
		c.previous = previousState{
			level:   d.Level,
			inverse: d.LevelInverse,
			topic:   d.Topic,
			reason:  d.Reason,
			ruleID:  d.RuleID,
			valid:   true,
		}
	}

	c.cancelAutoTrigger()
	if !retriggerAt.IsZero() && retriggerAt.After(now) {
		d.Retrigger = retriggerAt.Sub(now)
		d.Cause = cause
		c.autoTrigger = scheduler.Schedule(ctx, scheduler.TaskFunc(func(_ context.Context) error {
			c.Submit(event.NewTrigger(c.name, AutoTriggerTopic))
			return nil
		}), d.Retrigger)
	}

	c.logger.Debug("decision", slog.Any("decision", d))
	c.publisher.Publish(*d)
}

func (c *Controller) cancelAutoTrigger() {
	if c.autoTrigger != nil {
		c.autoTrigger.Cancel()
		c.autoTrigger = nil
	}
}

func levelsEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
