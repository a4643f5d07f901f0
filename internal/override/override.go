// Package override tracks the manual override of a single shade: a level
// set by hand that holds against the schedule until it expires, is reset,
// or is replaced by a more important command.
package override

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"shadecontrol/internal/event"
	"shadecontrol/internal/shade"
	"shadecontrol/pkg/scheduler"
)

// ExpiredTopic marks the trigger event synthesized when an override
// expires.
const ExpiredTopic = "internal/overrideExpired"

// Manager holds the override state for one shade. It is owned by the
// shade's controller goroutine; the expiry timer never touches state
// directly but submits a trigger event back into the controller.
type Manager struct {
	shade         string
	bounds        shade.Bounds
	defaultExpiry time.Duration
	submit        func(event.Event)
	logger        *slog.Logger

	active     bool
	level      float64
	topic      string
	importance int
	expires    time.Time
	job        *scheduler.Job
}

func New(shadeName string, bounds shade.Bounds, defaultExpiry time.Duration, submit func(event.Event), logger *slog.Logger) *Manager {
	return &Manager{
		shade:         shadeName,
		bounds:        bounds,
		defaultExpiry: defaultExpiry,
		submit:        submit,
		logger:        logger,
		level:         math.NaN(),
	}
}

func (m *Manager) Active() bool       { return m.active }
func (m *Manager) Level() float64     { return m.level }
func (m *Manager) Topic() string      { return m.topic }
func (m *Manager) Importance() int    { return m.importance }
func (m *Manager) Expires() time.Time { return m.expires }

// Snapshot is the persisted form of an active override.
type Snapshot struct {
	Level      *float64  `json:"level"`
	Topic      string    `json:"topic"`
	Importance int       `json:"importance"`
	Expires    time.Time `json:"expires"`
}

// Snapshot returns the current override for persisting, or nil when no
// override is active.
func (m *Manager) Snapshot() *Snapshot {
	if !m.active {
		return nil
	}
	s := Snapshot{Topic: m.topic, Importance: m.importance, Expires: m.expires}
	if !math.IsNaN(m.level) {
		level := m.level
		s.Level = &level
	}
	return &s
}

// Restore re-arms a persisted override. Snapshots that expired while the
// process was down are ignored.
func (m *Manager) Restore(ctx context.Context, s *Snapshot, now time.Time) {
	if s == nil {
		return
	}
	if !s.Expires.IsZero() && !s.Expires.After(now) {
		return
	}
	m.active = true
	m.level = math.NaN()
	if s.Level != nil {
		m.level = *s.Level
	}
	m.topic = s.Topic
	m.importance = s.Importance
	if s.Expires.IsZero() {
		m.setExpiring(ctx, now, 0)
	} else {
		m.setExpiring(ctx, now, s.Expires.Sub(now))
	}
	m.logger.Info("override restored", slog.String("shade", m.shade))
}

// Close cancels a pending expiry timer.
func (m *Manager) Close() {
	if m.job != nil {
		m.job.Cancel()
		m.job = nil
	}
}

// Check processes an inbound event against the override state and reports
// whether an override is active afterwards. A non-nil error means the
// event carried an invalid level; the override state is unchanged and the
// cycle proceeds as if no override were active.
func (m *Manager) Check(ctx context.Context, e event.Event, now time.Time, prevLevel float64) (bool, error) {
	// an event without importance cannot modify a prioritized override,
	// but may still reset one
	significant := false
	if e.Importance > 0 {
		if e.ExactImportance {
			significant = m.importance == e.Importance
		} else {
			significant = m.importance <= e.Importance
		}
	}

	// expiry may have passed without the timer event arriving yet
	if m.active && !m.expires.IsZero() && !m.expires.After(now) {
		m.logger.Info("override expired", slog.String("shade", m.shade))
		m.reset()
	}
	if (significant || e.Importance <= 0) && e.Reset {
		if m.active {
			m.logger.Info("override reset", slog.String("shade", m.shade))
		}
		m.reset()
	}

	if m.active && m.importance > 0 && !significant {
		m.logger.Debug("ignoring event below override importance",
			slog.Int("importance", e.Importance), slog.Int("current", m.importance))
		return true, nil
	}

	hasExpire, expire := e.HasExpire, e.Expire
	if strings.Contains(e.Topic, "noExpir") {
		hasExpire, expire = true, -1
	}

	switch {
	case e.TriggerOnly:
		// fall through: triggers never modify override state
	case m.active && !e.HasLevel():
		// refresh expiry and/or importance of the active override
		if hasExpire {
			m.setExpiring(ctx, now, expire)
		}
		if e.Importance > 0 {
			m.importance = e.Importance
		}
	case e.HasLevel():
		level := e.Level
		if level == -1 {
			// explicit "position unknown": override stays active without
			// a level
			level = math.NaN()
		} else {
			allowRound := e.AllowRound || strings.Contains(e.Topic, "roundLevel")
			if err := m.bounds.Validate(level, allowRound); err != nil {
				return false, fmt.Errorf("invalid level: %w", err)
			}
			if allowRound {
				level = m.bounds.Quantize(level)
			}
			if e.IgnoreSameValue && prevLevel == level {
				m.logger.Debug("ignoring unchanged level", slog.Float64("level", level))
				return m.active, nil
			}
		}
		m.level = level
		m.topic = e.Topic

		switch {
		case hasExpire:
			m.setExpiring(ctx, now, expire)
		case e.Importance <= 0:
			m.setExpiring(ctx, now, m.defaultExpiry)
		case (!e.ExactImportance && m.importance < e.Importance) || m.expires.IsZero():
			m.setExpiring(ctx, now, m.defaultExpiry)
		}
		if e.Importance > 0 {
			m.importance = e.Importance
		}
		m.active = true
	}
	return m.active, nil
}

// Reset clears the override unconditionally, e.g. when a schedule rule
// takes over.
func (m *Manager) Reset() { m.reset() }

func (m *Manager) reset() {
	m.active = false
	m.importance = 0
	m.expires = time.Time{}
	m.Close()
}

// setExpiring arms (or disarms) the expiry timer. A non-positive duration
// makes the override permanent.
func (m *Manager) setExpiring(ctx context.Context, now time.Time, expire time.Duration) {
	m.Close()
	if expire <= 0 {
		m.expires = time.Time{}
		m.logger.Info("override set, never expires", slog.String("shade", m.shade))
		return
	}
	m.expires = now.Add(expire)
	m.logger.Info("override set",
		slog.String("shade", m.shade),
		slog.Time("expires", m.expires),
	)
	m.job = scheduler.Schedule(ctx, scheduler.TaskFunc(func(_ context.Context) error {
		m.submit(event.NewTrigger(m.shade, ExpiredTopic))
		return nil
	}), expire)
}
