package eval

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_evalShades(t *testing.T) {
	content := `
shades:
  - name: living
    rules:
      - name: night
        timeOp: until
        time: "07:00"
        level: closed
        importance: 1
`
	path := filepath.Join(t.TempDir(), "shades.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.Set("date", "2026-06-21")
	v.Set("interval", 6*time.Hour)
	v.Set("location.latitude", 50.85)
	v.Set("location.longitude", 4.35)

	var out bytes.Buffer
	err := evalShades(&out, v)(nil, []string{path})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "living (2026-06-21)")
	assert.Contains(t, out.String(), "00:00")
	assert.Contains(t, out.String(), "night")
	assert.Contains(t, out.String(), "default")
}

func Test_evalShades_Errors(t *testing.T) {
	v := viper.New()

	var out bytes.Buffer
	err := evalShades(&out, v)(nil, []string{filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "shades.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not a shades file"), 0o644))
	err = evalShades(&out, v)(nil, []string{path})
	assert.Error(t, err)

	v.Set("date", "June 21st")
	err = evalShades(&out, v)(nil, nil)
	assert.Error(t, err)
}
