// Package monitor assembles and runs all components: the shade
// controllers, the MQTT bridge, the Prometheus exporter, the health
// endpoint and the Slack bot.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shadecontrol/internal/bot"
	"shadecontrol/internal/collector"
	"shadecontrol/internal/configuration"
	"shadecontrol/internal/controller"
	"shadecontrol/internal/controller/notifier"
	"shadecontrol/internal/event"
	"shadecontrol/internal/health"
	"shadecontrol/internal/mqtt"
	"shadecontrol/internal/store"
	"shadecontrol/internal/sunpos"
	"shadecontrol/pkg/pubsub"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "Monitor and control the shades",
	RunE:  run,
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	m, err := New(viper.GetViper(), cmd.Root().Version, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("shadecontrol started", "version", cmd.Root().Version)
	defer logger.Info("shadecontrol stopped")
	return m.Run(ctx)
}

func New(cfg *viper.Viper, version string, registry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	shades, err := loadShades(filepath.Join(filepath.Dir(cfg.ConfigFileUsed()), "shades.yaml"))
	if err != nil {
		return nil, err
	}

	client, err := mqtt.NewClient(cfg.GetString("mqtt.broker"), cfg.GetString("mqtt.clientId"))
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}

	tasks, err := makeTasks(cfg, client, shades, version, registry, logger)
	if err != nil {
		return nil, err
	}
	return taskmanager.New(tasks...), nil
}

func loadShades(path string) (configuration.Configuration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("no shades file at %s", path)
		}
		return configuration.Configuration{}, err
	}
	return configuration.Load(content)
}

func makeTasks(cfg *viper.Viper, client pahomqtt.Client, shades configuration.Configuration, version string, registry prometheus.Registerer, l *slog.Logger) ([]taskmanager.Task, error) {
	var tasks []taskmanager.Task

	location := sunpos.Location{
		Latitude:  cfg.GetFloat64("location.latitude"),
		Longitude: cfg.GetFloat64("location.longitude"),
	}
	decisions := pubsub.New[event.Decision](l.With("component", "decisions"))

	// State store
	var st store.Store
	if addr := cfg.GetString("redis.addr"); addr != "" {
		st = store.NewRedis(addr, cfg.GetString("redis.prefix"), l.With("component", "redis"))
	} else {
		st = store.NewMemory()
	}

	// Controllers
	controllers := make([]*controller.Controller, 0, len(shades.Shades))
	for _, s := range shades.Shades {
		logger := l.With("component", "controller", "shade", s.Name)
		c, err := s.Build(shades.Defaults, location, logger)
		if err != nil {
			return nil, err
		}
		c.Source = st
		c.State = st
		controllers = append(controllers, controller.New(c, decisions, logger))
	}
	manager := controller.NewManager(controllers, l.With("component", "manager"))
	tasks = append(tasks, manager)

	// MQTT bridge
	mqttCfg := mqtt.Config{
		Broker:   cfg.GetString("mqtt.broker"),
		ClientID: cfg.GetString("mqtt.clientId"),
		Prefix:   cfg.GetString("mqtt.prefix"),
		Sensors:  shades.Sensors,
	}
	tasks = append(tasks, mqtt.New(client, mqttCfg, manager.Submit, st, decisions, l.With("component", "mqtt")))

	// Collector
	coll := collector.New(decisions, l.With("component", "collector"))
	if registry != nil {
		registry.MustRegister(coll)
	}
	tasks = append(tasks, coll)

	// Prometheus server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health endpoint
	h := health.New(decisions, l.With("component", "health"))
	tasks = append(tasks, h)
	r := http.NewServeMux()
	r.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), r))

	// Notifications and Slack commands
	notifiers := notifier.Notifiers{&notifier.SLogNotifier{Logger: l.With("component", "notifier")}}
	if token := cfg.GetString("slack.token"); token != "" {
		b := slackbot.New(
			token,
			slackbot.WithName("shadecontrol "+version),
			slackbot.WithLogger(l.With(slog.String("component", "slackbot"))),
		)
		tasks = append(tasks, b, bot.New(b, manager.Submit, decisions, l.With(slog.String("component", "bot"))))
		notifiers = append(notifiers, &notifier.SlackNotifier{Bot: b})
	}
	tasks = append(tasks, notifier.New(decisions, notifiers))

	return tasks, nil
}
