package cmd

import (
	"log/slog"
	"os"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shadecontrol/internal/cmd/eval"
	"shadecontrol/internal/cmd/monitor"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "shadecontrol",
		Short: "Sun-aware shade and blind automation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&monitor.Cmd, &eval.Cmd)
}

var args = charmer.Arguments{
	"debug":              charmer.Argument{Default: false, Help: "Log debug messages"},
	"location.latitude":  charmer.Argument{Default: 0.0, Help: "Latitude of the building"},
	"location.longitude": charmer.Argument{Default: 0.0, Help: "Longitude of the building"},
	"mqtt.broker":        charmer.Argument{Default: "tcp://localhost:1883", Help: "MQTT broker URL"},
	"mqtt.clientId":      charmer.Argument{Default: "shadecontrol", Help: "MQTT client ID"},
	"mqtt.prefix":        charmer.Argument{Default: "shades", Help: "MQTT topic prefix"},
	"redis.addr":         charmer.Argument{Default: "", Help: "Redis address (empty: keep state in memory)"},
	"redis.prefix":       charmer.Argument{Default: "shadecontrol", Help: "Redis key prefix"},
	"exporter.addr":      charmer.Argument{Default: ":9090", Help: "Address of Prometheus exporter"},
	"health.addr":        charmer.Argument{Default: ":8080", Help: "Address of /health endpoint"},
	"slack.token":        charmer.Argument{Default: "", Help: "Slack token"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/shadecontrol/")
		viper.AddConfigPath("$HOME/.shadecontrol")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("SHADECONTROL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
