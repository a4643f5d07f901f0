package health

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shadecontrol/internal/event"
	"shadecontrol/pkg/pubsub"
)

func TestHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := pubsub.New[event.Decision](logger)
	h := New(publisher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	// no decisions yet
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	publisher.Publish(event.Decision{
		Shade:      "living",
		Level:      25,
		Reason:     event.ReasonRule,
		ReasonText: "night (until 06:30)",
		RuleID:     1,
	})
	publisher.Publish(event.Decision{Shade: "office", Level: math.NaN(), Reason: event.ReasonOverride})

	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), "office")
	}, time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"shade": "living"`)
	assert.Contains(t, w.Body.String(), `"level": null`)
}
