package controller

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"shadecontrol/internal/event"
)

// Manager runs one controller per shade and routes inbound events to
// them.
type Manager struct {
	controllers map[string]*Controller
	logger      *slog.Logger
}

func NewManager(controllers []*Controller, logger *slog.Logger) *Manager {
	m := Manager{
		controllers: make(map[string]*Controller, len(controllers)),
		logger:      logger,
	}
	for _, c := range controllers {
		m.controllers[c.Name()] = c
	}
	return &m
}

// Controllers returns the managed controllers.
func (m *Manager) Controllers() []*Controller {
	result := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		result = append(result, c)
	}
	return result
}

// Submit routes an event to its shade's controller. An event without a
// shade goes to all of them.
func (m *Manager) Submit(e event.Event) {
	if e.Shade != "" {
		c, ok := m.controllers[e.Shade]
		if !ok {
			m.logger.Warn("event for unknown shade", slog.String("shade", e.Shade))
			return
		}
		c.Submit(e)
		return
	}
	for _, c := range m.controllers {
		c.Submit(e)
	}
}

// Run starts all controllers and blocks until the context is canceled.
func (m *Manager) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, c := range m.controllers {
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}
