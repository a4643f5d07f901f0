// Package health serves the latest decision per shade as JSON.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"shadecontrol/internal/event"
	"shadecontrol/pkg/pubsub"
)

type Health struct {
	publisher *pubsub.Publisher[event.Decision]
	ch        chan event.Decision
	logger    *slog.Logger
	decisions map[string]event.Decision
	lock      sync.RWMutex
}

// New subscribes to the publisher immediately, so decisions published
// before Run starts are not lost.
func New(publisher *pubsub.Publisher[event.Decision], logger *slog.Logger) *Health {
	return &Health{
		publisher: publisher,
		ch:        publisher.Subscribe(),
		logger:    logger,
		decisions: make(map[string]event.Decision),
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")
	defer h.publisher.Unsubscribe(h.ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-h.ch:
			h.lock.Lock()
			h.decisions[d.Shade] = d
			h.lock.Unlock()
		}
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if len(h.decisions) == 0 {
		http.Error(w, "no decisions yet", http.StatusServiceUnavailable)
		return
	}

	shades := make([]event.Decision, 0, len(h.decisions))
	for _, d := range h.decisions {
		shades = append(shades, d)
	}
	sort.Slice(shades, func(i, j int) bool { return shades[i].Shade < shades[j].Shade })

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(shades); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
