package event_test

import (
	"github.com/stretchr/testify/assert"
	"shadecontrol/internal/event"
	"testing"
	"time"
)

func TestEvent_HasLevel(t *testing.T) {
	assert.False(t, event.NewTrigger("living-room", "trigger").HasLevel())
	assert.True(t, event.NewSet("living-room", 50).HasLevel())
}

func TestEvent_Time(t *testing.T) {
	assert.WithinDuration(t, time.Now(), event.Event{}.Time(), time.Second)

	at := time.Date(2024, time.June, 21, 12, 0, 0, 0, time.Local)
	assert.Equal(t, at, event.Event{At: at}.Time())
}

func TestDecision_ExpandTopic(t *testing.T) {
	d := event.Decision{
		Shade:        "living-room",
		Topic:        "shadecontrol/living-room/set",
		Level:        75,
		LevelInverse: 25,
		Reason:       event.ReasonRule,
		RuleID:       2,
		Mode:         event.ModeSummer,
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "empty", template: "", want: "shadecontrol/living-room/set"},
		{name: "static", template: "home/blinds", want: "home/blinds"},
		{name: "placeholders", template: "home/%name%/%level%/%state%/%rule%/%mode%", want: "home/living-room/75/rule/2/summer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.ExpandTopic(tt.template))
		})
	}
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "rule maximum", event.ReasonRuleMax.String())
	assert.Equal(t, "unknown", event.Reason(99).String())
}
