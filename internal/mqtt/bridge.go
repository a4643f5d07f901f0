package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"shadecontrol/internal/event"
	"shadecontrol/internal/store"
	"shadecontrol/pkg/pubsub"
)

// Config shapes the bridge's topic layout.
type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	// Prefix is the root of the command topics:
	// <prefix>/<shade>/set, <prefix>/<shade>/reset,
	// <prefix>/<shade>/mode and <prefix>/trigger.
	Prefix string `yaml:"prefix"`
	// LevelTopic and StateTopic are outbound topic templates
	// (%name%, %level%, ... placeholders).
	LevelTopic string `yaml:"levelTopic"`
	StateTopic string `yaml:"stateTopic"`
	// Sensors maps condition sensor keys to the topics their values
	// arrive on.
	Sensors map[string]string `yaml:"sensors"`
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "shadecontrol"
	}
	if c.Prefix == "" {
		c.Prefix = "shades"
	}
	if c.LevelTopic == "" {
		c.LevelTopic = c.Prefix + "/%name%/level"
	}
	if c.StateTopic == "" {
		c.StateTopic = c.Prefix + "/%name%/state"
	}
}

// Bridge routes between the broker and the controllers.
type Bridge struct {
	client    mqtt.Client
	cfg       Config
	submit    func(event.Event)
	store     store.Store
	publisher *pubsub.Publisher[event.Decision]
	decisions chan event.Decision
	logger    *slog.Logger
}

// New subscribes to the publisher immediately, so decisions published
// before Run starts are not lost.
func New(client mqtt.Client, cfg Config, submit func(event.Event), st store.Store, publisher *pubsub.Publisher[event.Decision], logger *slog.Logger) *Bridge {
	cfg.applyDefaults()
	return &Bridge{
		client:    client,
		cfg:       cfg,
		submit:    submit,
		store:     st,
		publisher: publisher,
		decisions: publisher.Subscribe(),
		logger:    logger,
	}
}

// Run subscribes to the command and sensor topics and forwards decisions
// to the broker until the context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Debug("started")
	defer b.logger.Debug("stopped")

	for _, suffix := range []string{"set", "reset", "mode"} {
		topic := b.cfg.Prefix + "/+/" + suffix
		if token := b.client.Subscribe(topic, 1, b.onCommand); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}
	if token := b.client.Subscribe(b.cfg.Prefix+"/trigger", 1, b.onCommand); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe trigger: %w", token.Error())
	}
	for key, topic := range b.cfg.Sensors {
		if token := b.client.Subscribe(topic, 1, b.sensorHandler(key)); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe sensor %s: %w", key, token.Error())
		}
	}

	defer b.publisher.Unsubscribe(b.decisions)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-b.decisions:
			b.send(d)
		}
	}
}

func (b *Bridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	e, err := ParseCommand(msg.Topic(), msg.Payload())
	if err != nil {
		b.logger.Warn("invalid command",
			slog.String("topic", msg.Topic()), slog.Any("err", err))
		return
	}
	b.logger.Debug("command received", slog.Any("event", e))
	b.submit(e)
}

// sensorHandler stores the value and triggers a re-evaluation, since a
// changed sensor value may flip rule conditions.
func (b *Bridge) sensorHandler(key string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := b.store.Set(context.Background(), key, string(msg.Payload())); err != nil {
			b.logger.Error("cannot store sensor value", slog.String("sensor", key), slog.Any("err", err))
			return
		}
		b.submit(event.NewTrigger("", "sensor/"+key))
	}
}

// send publishes a decision: the level topic only on a change (and only
// with a known level), the state topic always.
func (b *Bridge) send(d event.Decision) {
	if d.Changed && !math.IsNaN(d.Level) && d.Reason != event.ReasonStartDelay {
		level := strconv.FormatFloat(d.Level, 'f', -1, 64)
		b.client.Publish(d.ExpandTopic(b.cfg.LevelTopic), 1, true, level)
	}
	body, err := json.Marshal(d)
	if err != nil {
		b.logger.Error("cannot encode decision", slog.Any("err", err))
		return
	}
	b.client.Publish(d.ExpandTopic(b.cfg.StateTopic), 1, true, body)
}

// command is the JSON payload of a set command. A bare number is also
// accepted as the level.
type command struct {
	Level           *float64 `json:"level"`
	Importance      int      `json:"importance"`
	ExactImportance bool     `json:"exactImportance"`
	Expire          string   `json:"expire"`
	Reset           bool     `json:"reset"`
	IgnoreSameValue bool     `json:"ignoreSameValue"`
	AllowRound      bool     `json:"allowRound"`
	Mode            string   `json:"mode"`
}

// ParseCommand turns an inbound message into an event. The shade name is
// the second-to-last topic segment; the last segment selects the action.
func ParseCommand(topic string, payload []byte) (event.Event, error) {
	segments := strings.Split(topic, "/")
	action := segments[len(segments)-1]

	if action == "trigger" {
		return event.NewTrigger("", topic), nil
	}
	if len(segments) < 2 {
		return event.Event{}, fmt.Errorf("malformed topic %q", topic)
	}
	shade := segments[len(segments)-2]

	switch action {
	case "reset":
		return event.Event{Shade: shade, Topic: topic, Level: math.NaN(), Reset: true}, nil
	case "mode":
		mode, err := event.ParseMode(strings.TrimSpace(string(payload)))
		if err != nil {
			return event.Event{}, err
		}
		return event.Event{Shade: shade, Topic: topic, Level: math.NaN(), TriggerOnly: true, Mode: &mode}, nil
	case "set":
		return parseSet(shade, topic, payload)
	}
	return event.Event{}, fmt.Errorf("unknown action %q", action)
}

func parseSet(shade, topic string, payload []byte) (event.Event, error) {
	e := event.Event{Shade: shade, Topic: topic, Level: math.NaN()}

	body := strings.TrimSpace(string(payload))
	if level, err := strconv.ParseFloat(body, 64); err == nil {
		e.Level = level
		return e, nil
	}

	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return event.Event{}, fmt.Errorf("invalid payload: %w", err)
	}
	if cmd.Level != nil {
		e.Level = *cmd.Level
	}
	e.Importance = cmd.Importance
	e.ExactImportance = cmd.ExactImportance
	e.Reset = cmd.Reset
	e.IgnoreSameValue = cmd.IgnoreSameValue
	e.AllowRound = cmd.AllowRound
	if cmd.Expire != "" {
		expire, err := parseExpire(cmd.Expire)
		if err != nil {
			return event.Event{}, err
		}
		e.Expire = expire
		e.HasExpire = true
	}
	if cmd.Mode != "" {
		mode, err := event.ParseMode(cmd.Mode)
		if err != nil {
			return event.Event{}, err
		}
		e.Mode = &mode
	}
	return e, nil
}

// parseExpire accepts a duration string ("30m") or a number of seconds.
func parseExpire(value string) (time.Duration, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid expire %q", value)
}
