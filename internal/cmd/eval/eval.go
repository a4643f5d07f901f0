// Package eval implements a dry run of a shades file: it walks through a
// full day and prints which rule would drive each shade at each step.
package eval

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shadecontrol/internal/configuration"
	"shadecontrol/internal/event"
	"shadecontrol/internal/rules"
	"shadecontrol/internal/rules/condition"
	"shadecontrol/internal/store"
	"shadecontrol/internal/sunpos"
)

var (
	Cmd = cobra.Command{
		Use:   "eval [shades file]",
		Short: "Walk through a day's schedule for each shade",
		RunE:  evalShades(os.Stdout, viper.GetViper()),
	}

	args = charmer.Arguments{
		"date":     {Default: "", Help: "date to evaluate (YYYY-MM-DD, default today)"},
		"interval": {Default: 30 * time.Minute, Help: "evaluation step"},
	}
)

func init() {
	_ = charmer.SetPersistentFlags(&Cmd, viper.GetViper(), args)
}

func evalShades(w io.Writer, v *viper.Viper) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"shades.yaml"}
		}
		day, err := evalDate(v.GetString("date"))
		if err != nil {
			return err
		}
		for _, arg := range args {
			content, err := os.ReadFile(arg)
			if err != nil {
				return err
			}
			cfg, err := configuration.Load(content)
			if err != nil {
				return err
			}
			if err = writeSchedules(w, cfg, location(v), day, v.GetDuration("interval")); err != nil {
				return err
			}
		}
		return nil
	}
}

func evalDate(value string) (time.Time, error) {
	if value == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	return time.ParseInLocation("2006-01-02", value, time.Local)
}

func location(v *viper.Viper) sunpos.Location {
	return sunpos.Location{
		Latitude:  v.GetFloat64("location.latitude"),
		Longitude: v.GetFloat64("location.longitude"),
	}
}

const formatString = "%-10s %-10s %-25s %s\n"

func writeSchedules(w io.Writer, cfg configuration.Configuration, loc sunpos.Location, day time.Time, interval time.Duration) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, s := range cfg.Shades {
		c, err := s.Build(cfg.Defaults, loc, logger)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "%s (%s)\n", s.Name, day.Format("2006-01-02"))
		_, _ = fmt.Fprintf(w, formatString, "TIME", "LEVEL", "REASON", "RULE")

		conds := condition.NewEvaluator(store.NewMemory(), make(map[string]any), logger)
		for now := day; now.Day() == day.Day(); now = now.Add(interval) {
			sel := c.Rules.Evaluate(now, conds)
			level := sel.Level
			reason := sel.Reason
			name := sel.Name
			if sel.RuleID == rules.DefaultRuleID {
				level = c.Bounds.Default
				name = ""
				var clamped *rules.Matched
				if level, reason, clamped = sel.Clamp(level); clamped != nil {
					name = clamped.Name
				} else {
					reason = event.ReasonDefault
				}
			}
			_, _ = fmt.Fprintf(w, formatString,
				now.Format("15:04"), formatLevel(level), reason.String(), name)
		}
	}
	return nil
}

func formatLevel(level float64) string {
	if math.IsNaN(level) {
		return "-"
	}
	return fmt.Sprintf("%v", level)
}
