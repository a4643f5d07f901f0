// Package bot adds Slack commands for inspecting and steering the
// shades.
package bot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clambin/go-common/slackbot"
	"github.com/slack-go/slack"

	"log/slog"

	"shadecontrol/internal/event"
	"shadecontrol/pkg/pubsub"
)

type SlackBot interface {
	Register(name string, command slackbot.CommandFunc)
	Run(ctx context.Context) error
	Send(channel string, attachments []slack.Attachment) error
}

type Bot struct {
	slack     SlackBot
	submit    func(event.Event)
	publisher *pubsub.Publisher[event.Decision]
	ch        chan event.Decision
	logger    *slog.Logger
	lock      sync.RWMutex
	decisions map[string]event.Decision
}

// New registers the commands and subscribes to the publisher
// immediately, so decisions published before Run starts are not lost.
func New(slackBot SlackBot, submit func(event.Event), publisher *pubsub.Publisher[event.Decision], logger *slog.Logger) *Bot {
	b := Bot{
		slack:     slackBot,
		submit:    submit,
		publisher: publisher,
		ch:        publisher.Subscribe(),
		logger:    logger.With(slog.String("component", "bot")),
		decisions: make(map[string]event.Decision),
	}
	slackBot.Register("shades", b.ReportShades)
	slackBot.Register("set", b.Set)
	slackBot.Register("reset", b.Reset)
	slackBot.Register("mode", b.SetMode)
	slackBot.Register("refresh", b.Refresh)
	return &b
}

// Run caches the latest decision per shade for the report command.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Debug("started")
	defer b.logger.Debug("stopped")

	defer b.publisher.Unsubscribe(b.ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-b.ch:
			b.lock.Lock()
			b.decisions[d.Shade] = d
			b.lock.Unlock()
		}
	}
}

func (b *Bot) ReportShades(_ context.Context, _ ...string) []slack.Attachment {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if len(b.decisions) == 0 {
		return []slack.Attachment{{Color: "bad", Text: "no decisions yet. please check back later"}}
	}

	names := make([]string, 0, len(b.decisions))
	for name := range b.decisions {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		d := b.decisions[name]
		level := "unknown"
		if !math.IsNaN(d.Level) {
			level = strconv.FormatFloat(d.Level, 'f', -1, 64)
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", name, level, d.ReasonText))
	}

	return []slack.Attachment{{Color: "good", Title: "shades:", Text: strings.Join(lines, "\n")}}
}

// Set handles "set <shade> <level> [importance [expire]]".
func (b *Bot) Set(_ context.Context, args ...string) []slack.Attachment {
	if len(args) < 2 {
		return usage("set <shade> <level> [importance [expire]]")
	}
	level, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return invalid("invalid level %q", args[1])
	}
	e := event.NewSet(args[0], level)
	e.Topic = "slack/set"
	if len(args) > 2 {
		importance, err := strconv.Atoi(args[2])
		if err != nil {
			return invalid("invalid importance %q", args[2])
		}
		e.Importance = importance
	}
	if len(args) > 3 {
		expire, err := time.ParseDuration(args[3])
		if err != nil {
			return invalid("invalid expire %q", args[3])
		}
		e.Expire = expire
		e.HasExpire = true
	}
	b.submit(e)
	return []slack.Attachment{{Color: "good", Text: fmt.Sprintf("setting %s to %s", args[0], args[1])}}
}

// Reset handles "reset <shade>". Without an argument it resets all
// shades.
func (b *Bot) Reset(_ context.Context, args ...string) []slack.Attachment {
	var shade string
	if len(args) > 0 {
		shade = args[0]
	}
	b.submit(event.Event{Shade: shade, Topic: "slack/reset", Level: math.NaN(), Reset: true})
	if shade == "" {
		shade = "all shades"
	}
	return []slack.Attachment{{Color: "good", Text: "resetting " + shade}}
}

// SetMode handles "mode <shade> off|winter|summer".
func (b *Bot) SetMode(_ context.Context, args ...string) []slack.Attachment {
	if len(args) < 2 {
		return usage("mode <shade> off|winter|summer")
	}
	var mode event.Mode
	switch strings.ToLower(args[1]) {
	case "off":
		mode = event.ModeOff
	case "winter":
		mode = event.ModeWinter
	case "summer":
		mode = event.ModeSummer
	default:
		return invalid("invalid mode %q", args[1])
	}
	b.submit(event.Event{Shade: args[0], Topic: "slack/mode", Level: math.NaN(), TriggerOnly: true, Mode: &mode})
	return []slack.Attachment{{Color: "good", Text: fmt.Sprintf("switching %s to %s mode", args[0], mode)}}
}

// Refresh triggers a re-evaluation of all shades.
func (b *Bot) Refresh(_ context.Context, _ ...string) []slack.Attachment {
	b.submit(event.NewTrigger("", "slack/refresh"))
	return []slack.Attachment{{Color: "good", Text: "refreshing all shades"}}
}

func usage(text string) []slack.Attachment {
	return []slack.Attachment{{Color: "bad", Title: "usage:", Text: text}}
}

func invalid(format string, args ...any) []slack.Attachment {
	return []slack.Attachment{{Color: "bad", Text: fmt.Sprintf(format, args...)}}
}
