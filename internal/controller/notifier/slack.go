package notifier

import (
	"github.com/slack-go/slack"

	"shadecontrol/internal/event"
)

type SlackSender interface {
	Send(channel string, attachments []slack.Attachment) error
}

type SlackNotifier struct {
	Bot SlackSender
}

var _ Notifier = &SlackNotifier{}

func (s SlackNotifier) Notify(d event.Decision) {
	_ = s.Bot.Send("", []slack.Attachment{{
		Color: "good",
		Title: buildMessage(d),
		Text:  d.ReasonText,
	}})
}
