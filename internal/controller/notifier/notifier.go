// Package notifier announces level changes to the configured channels.
package notifier

import (
	"context"
	"fmt"
	"math"

	"shadecontrol/internal/event"
	"shadecontrol/pkg/pubsub"
)

type Notifier interface {
	Notify(d event.Decision)
}

type Notifiers []Notifier

func (n Notifiers) Notify(d event.Decision) {
	for _, l := range n {
		l.Notify(d)
	}
}

// Monitor forwards every changed decision to the notifiers.
type Monitor struct {
	publisher *pubsub.Publisher[event.Decision]
	ch        chan event.Decision
	notifiers Notifiers
}

// New subscribes to the publisher immediately, so decisions published
// before Run starts are not lost.
func New(publisher *pubsub.Publisher[event.Decision], notifiers Notifiers) *Monitor {
	return &Monitor{
		publisher: publisher,
		ch:        publisher.Subscribe(),
		notifiers: notifiers,
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	defer m.publisher.Unsubscribe(m.ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-m.ch:
			if d.Changed {
				m.notifiers.Notify(d)
			}
		}
	}
}

func buildMessage(d event.Decision) string {
	level := "unknown"
	if !math.IsNaN(d.Level) {
		level = fmt.Sprintf("%v", d.Level)
	}
	return fmt.Sprintf("%s: moving to %s", d.Shade, level)
}
