package notifier

import (
	"log/slog"

	"shadecontrol/internal/event"
)

type SLogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = &SLogNotifier{}

func (s SLogNotifier) Notify(d event.Decision) {
	s.Logger.Info(buildMessage(d), "reason", d.ReasonText)
}
