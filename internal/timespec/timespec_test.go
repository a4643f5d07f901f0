package timespec_test

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"shadecontrol/internal/timespec"
	"testing"
	"time"
)

func TestClock_Resolve_Fixed(t *testing.T) {
	c := timespec.Clock{Latitude: 51.2, Longitude: 4.4}
	now := time.Date(2024, time.June, 21, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		spec    timespec.Spec
		want    time.Time
		wantErr bool
	}{
		{
			name: "minutes",
			spec: timespec.Spec{Time: "06:30"},
			want: time.Date(2024, time.June, 21, 6, 30, 0, 0, time.Local),
		},
		{
			name: "seconds",
			spec: timespec.Spec{Time: "22:15:30"},
			want: time.Date(2024, time.June, 21, 22, 15, 30, 0, time.Local),
		},
		{
			name: "offset",
			spec: timespec.Spec{Time: "06:30", Offset: -10 * time.Minute},
			want: time.Date(2024, time.June, 21, 6, 20, 0, 0, time.Local),
		},
		{name: "invalid", spec: timespec.Spec{Time: "25:99"}, wantErr: true},
		{name: "empty", spec: timespec.Spec{}, wantErr: true},
		{name: "unknown sun event", spec: timespec.Spec{Sun: "noonish"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := c.Resolve(tt.spec, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolved)
		})
	}
}

func TestClock_Resolve_Sun(t *testing.T) {
	c := timespec.Clock{Latitude: 51.2, Longitude: 4.4}
	now := time.Date(2024, time.June, 21, 12, 0, 0, 0, time.UTC)

	sunrise, err := c.Resolve(timespec.Spec{Sun: "sunrise"}, now)
	require.NoError(t, err)
	sunset, err := c.Resolve(timespec.Spec{Sun: "sunset"}, now)
	require.NoError(t, err)

	assert.Equal(t, timespec.DayID(now), timespec.DayID(sunrise))
	assert.True(t, sunrise.Before(sunset))
}

func TestSpec_UnmarshalYAML(t *testing.T) {
	var spec timespec.Spec
	require.NoError(t, yaml.Unmarshal([]byte(`"06:30"`), &spec))
	assert.Equal(t, timespec.Spec{Time: "06:30"}, spec)

	require.NoError(t, yaml.Unmarshal([]byte(`sunset`), &spec))
	assert.Equal(t, timespec.Spec{Sun: "sunset"}, spec)

	require.NoError(t, yaml.Unmarshal([]byte(`{sun: sunrise, offset: -10m}`), &spec))
	assert.Equal(t, timespec.Spec{Sun: "sunrise", Offset: -10 * time.Minute}, spec)
}

func TestDayID(t *testing.T) {
	assert.Equal(t, 20240621, timespec.DayID(time.Date(2024, time.June, 21, 23, 59, 0, 0, time.Local)))
	assert.NotEqual(t,
		timespec.DayID(time.Date(2024, time.June, 21, 23, 59, 0, 0, time.Local)),
		timespec.DayID(time.Date(2024, time.June, 22, 0, 0, 0, 0, time.Local)),
	)
}
