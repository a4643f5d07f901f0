// Package collector exposes the state of each shade as Prometheus
// metrics.
package collector

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"shadecontrol/internal/event"
	"shadecontrol/pkg/pubsub"
)

var (
	shadeLevel = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "level"),
		"Current target level of this shade",
		[]string{"shade"},
		nil,
	)
	shadeReasonCode = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "reason_code"),
		"Reason code of the last decision for this shade",
		[]string{"shade"},
		nil,
	)
	shadeState = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "state"),
		"State of the last decision. Always 1; see label 'state'",
		[]string{"shade", "state"},
		nil,
	)
	shadeRule = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "rule"),
		"Rule that produced the last decision (-1 if none)",
		[]string{"shade"},
		nil,
	)
	shadeMode = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "mode"),
		"Sun-control mode. Always 1; see label 'mode'",
		[]string{"shade", "mode"},
		nil,
	)
	shadeOverride = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "override"),
		"1 if a manual override is active for this shade",
		[]string{"shade"},
		nil,
	)
	shadeDecisions = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "decisions_total"),
		"Number of decisions made for this shade",
		[]string{"shade"},
		nil,
	)
	shadeChanges = prometheus.NewDesc(
		prometheus.BuildFQName("shadecontrol", "shade", "changes_total"),
		"Number of decisions that changed the level of this shade",
		[]string{"shade"},
		nil,
	)
)

type Collector struct {
	publisher *pubsub.Publisher[event.Decision]
	ch        chan event.Decision
	logger    *slog.Logger
	lock      sync.RWMutex
	latest    map[string]event.Decision
	decisions map[string]float64
	changes   map[string]float64
}

// New subscribes to the publisher immediately, so decisions published
// before Run starts are not lost.
func New(publisher *pubsub.Publisher[event.Decision], logger *slog.Logger) *Collector {
	return &Collector{
		publisher: publisher,
		ch:        publisher.Subscribe(),
		logger:    logger,
		latest:    make(map[string]event.Decision),
		decisions: make(map[string]float64),
		changes:   make(map[string]float64),
	}
}

func (c *Collector) Run(ctx context.Context) error {
	c.logger.Debug("started")
	defer c.logger.Debug("stopped")
	defer c.publisher.Unsubscribe(c.ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-c.ch:
			c.lock.Lock()
			c.latest[d.Shade] = d
			c.decisions[d.Shade]++
			if d.Changed {
				c.changes[d.Shade]++
			}
			c.lock.Unlock()
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- shadeLevel
	ch <- shadeReasonCode
	ch <- shadeState
	ch <- shadeRule
	ch <- shadeMode
	ch <- shadeOverride
	ch <- shadeDecisions
	ch <- shadeChanges
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	for shade, d := range c.latest {
		if !math.IsNaN(d.Level) {
			ch <- prometheus.MustNewConstMetric(shadeLevel, prometheus.GaugeValue, d.Level, shade)
		}
		ch <- prometheus.MustNewConstMetric(shadeReasonCode, prometheus.GaugeValue, float64(d.Reason), shade)
		ch <- prometheus.MustNewConstMetric(shadeState, prometheus.GaugeValue, 1, shade, d.Reason.String())
		ch <- prometheus.MustNewConstMetric(shadeRule, prometheus.GaugeValue, float64(d.RuleID), shade)
		ch <- prometheus.MustNewConstMetric(shadeMode, prometheus.GaugeValue, 1, shade, d.Mode.String())

		var override float64
		if d.Reason == event.ReasonOverride || d.Reason == event.ReasonOverrideExpires {
			override = 1
		}
		ch <- prometheus.MustNewConstMetric(shadeOverride, prometheus.GaugeValue, override, shade)
		ch <- prometheus.MustNewConstMetric(shadeDecisions, prometheus.CounterValue, c.decisions[shade], shade)
		ch <- prometheus.MustNewConstMetric(shadeChanges, prometheus.CounterValue, c.changes[shade], shade)
	}
}
