package notifier_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadecontrol/internal/controller/notifier"
	"shadecontrol/internal/event"
	"shadecontrol/pkg/pubsub"
)

type fakeSender struct {
	sent chan []slack.Attachment
}

func (f *fakeSender) Send(_ string, attachments []slack.Attachment) error {
	f.sent <- attachments
	return nil
}

func TestNotifiers_Notify(t *testing.T) {
	tests := []struct {
		name     string
		decision event.Decision
		title    string
		text     string
	}{
		{
			name:     "level change",
			decision: event.Decision{Shade: "living", Level: 25, ReasonText: "sun control", Changed: true},
			title:    "living: moving to 25",
			text:     "sun control",
		},
		{
			name:     "unknown level",
			decision: event.Decision{Shade: "living", Level: math.NaN(), ReasonText: "override (importance 2)", Changed: true},
			title:    "living: moving to unknown",
			text:     "override (importance 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := fakeSender{sent: make(chan []slack.Attachment, 1)}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			n := notifier.Notifiers{
				&notifier.SLogNotifier{Logger: logger},
				&notifier.SlackNotifier{Bot: &sender},
			}
			n.Notify(tt.decision)

			attachments := <-sender.sent
			require.Len(t, attachments, 1)
			assert.Equal(t, "good", attachments[0].Color)
			assert.Equal(t, tt.title, attachments[0].Title)
			assert.Equal(t, tt.text, attachments[0].Text)
		})
	}
}

func TestMonitor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := pubsub.New[event.Decision](logger)
	sender := fakeSender{sent: make(chan []slack.Attachment, 1)}
	m := notifier.New(publisher, notifier.Notifiers{&notifier.SlackNotifier{Bot: &sender}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	// unchanged decisions are not announced
	publisher.Publish(event.Decision{Shade: "living", Level: 25})
	publisher.Publish(event.Decision{Shade: "living", Level: 50, ReasonText: "rule", Changed: true})

	select {
	case attachments := <-sender.sent:
		require.Len(t, attachments, 1)
		assert.Equal(t, "living: moving to 50", attachments[0].Title)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}
}
