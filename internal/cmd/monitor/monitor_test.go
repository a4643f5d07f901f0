package monitor

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadecontrol/internal/configuration"
)

func Test_makeTasks(t *testing.T) {
	testCases := []struct {
		name   string
		config string
		length int
	}{
		{
			name: "with slack",
			config: `
location:
  latitude: 50.85
  longitude: 4.35
slack:
  token: "1234"
`,
			length: 9,
		},
		{
			name: "without slack",
			config: `
location:
  latitude: 50.85
  longitude: 4.35
`,
			length: 7,
		},
	}

	shadesContent := `
shades:
  - name: living
    rules:
      - name: night
        timeOp: until
        time: "07:00"
        level: closed
`

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := viper.New()
			cfg.SetConfigType("yaml")
			require.NoError(t, cfg.ReadConfig(bytes.NewBufferString(tt.config)))

			shades, err := loadShadesContent(t, shadesContent)
			require.NoError(t, err)

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			tasks, err := makeTasks(cfg, nil, shades, "1.0", prometheus.NewPedanticRegistry(), logger)
			require.NoError(t, err)
			assert.Len(t, tasks, tt.length)
		})
	}
}

func Test_makeTasks_InvalidShade(t *testing.T) {
	cfg := viper.New()
	shades, err := loadShadesContent(t, "shades:\n  - name: living\n    mode: autumn\n")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = makeTasks(cfg, nil, shades, "1.0", prometheus.NewPedanticRegistry(), logger)
	assert.Error(t, err)
}

func Test_loadShades(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "valid",
			content: "shades:\n  - name: living\n",
			wantErr: assert.NoError,
		},
		{
			name:    "invalid",
			content: "not a shades file",
			wantErr: assert.Error,
		},
		{
			name:    "missing",
			content: "",
			wantErr: assert.Error,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "shades.yaml")
			if tt.content != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}

			_, err := loadShades(path)
			tt.wantErr(t, err)
		})
	}
}

func loadShadesContent(t *testing.T, content string) (configuration.Configuration, error) {
	t.Helper()
	return configuration.Load([]byte(content))
}
