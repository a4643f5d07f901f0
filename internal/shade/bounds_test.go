package shade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBounds(t *testing.T) {
	tests := []struct {
		name      string
		top       float64
		bottom    float64
		increment float64
		def       LevelSpec
		min       LevelSpec
		max       LevelSpec
		err       assert.ErrorAssertionFunc
		want      Bounds
	}{
		{
			name: "defaults",
			top:  100, bottom: 0, increment: 1,
			err:  assert.NoError,
			want: Bounds{Top: 100, Bottom: 0, Increment: 1, Min: 0, Max: 100, Default: 100},
		},
		{
			name: "inverted range is normalized",
			top:  0, bottom: 100, increment: 1,
			err:  assert.NoError,
			want: Bounds{Top: 100, Bottom: 0, Increment: 1, Min: 0, Max: 100, Default: 100, Reverse: true},
		},
		{
			name: "specs resolved",
			top:  100, bottom: 0, increment: 1,
			def: "closed", min: "25%", max: "80",
			err:  assert.NoError,
			want: Bounds{Top: 100, Bottom: 0, Increment: 1, Min: 25, Max: 80, Default: 0},
		},
		{
			name: "zero increment falls back to one",
			top:  100, bottom: 0, increment: 0,
			err:  assert.NoError,
			want: Bounds{Top: 100, Bottom: 0, Increment: 1, Min: 0, Max: 100, Default: 100},
		},
		{
			name: "invalid spec",
			top:  100, bottom: 0, increment: 1,
			def: "wide open",
			err: assert.Error,
		},
		{
			name: "default outside range",
			top:  100, bottom: 0, increment: 1,
			def: "500",
			err: assert.Error,
		},
		{
			name: "max outside range",
			top:  100, bottom: 0, increment: 1,
			max: "200%",
			err: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBounds(tt.top, tt.bottom, tt.increment, tt.def, tt.min, tt.max)
			tt.err(t, err)
			if err == nil {
				assert.Equal(t, tt.want, b)
			}
		})
	}
}

func TestBounds_Quantize(t *testing.T) {
	tests := []struct {
		name      string
		increment float64
		level     float64
		want      float64
	}{
		{"on grid", 1, 42, 42},
		{"rounds up", 1, 41.5, 42},
		{"rounds down", 5, 41, 40},
		{"fractional increment", 0.5, 41.3, 41.5},
		{"clamps low", 1, -10, 0},
		{"clamps high", 1, 110, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBounds(100, 0, tt.increment, "", "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Quantize(tt.level))
		})
	}
}

func TestBounds_Inverse(t *testing.T) {
	b, err := NewBounds(100, 0, 1, "", "", "")
	require.NoError(t, err)

	assert.Equal(t, 75.0, b.Inverse(25))
	assert.Equal(t, 25.0, b.Inverse(b.Inverse(25)))
	assert.True(t, math.IsNaN(b.Inverse(math.NaN())))

	offset, err := NewBounds(90, 10, 1, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 80.0, offset.Inverse(20))
}

func TestBounds_FromFraction(t *testing.T) {
	b, err := NewBounds(100, 0, 1, "", "", "")
	require.NoError(t, err)

	assert.Equal(t, 0.0, b.FromFraction(0))
	assert.Equal(t, 100.0, b.FromFraction(1))
	assert.Equal(t, 25.0, b.FromFraction(0.25))
	assert.Equal(t, 33.0, b.FromFraction(1.0/3))
}

func TestBounds_Validate(t *testing.T) {
	b, err := NewBounds(100, 0, 5, "", "", "")
	require.NoError(t, err)

	assert.NoError(t, b.Validate(45, false))
	assert.Error(t, b.Validate(42, false))
	assert.NoError(t, b.Validate(42, true))
	assert.Error(t, b.Validate(-5, true))
	assert.Error(t, b.Validate(105, true))
	assert.Error(t, b.Validate(math.NaN(), true))
}

func TestLevelSpec_Resolve(t *testing.T) {
	b, err := NewBounds(100, 0, 1, "", "", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		spec LevelSpec
		def  float64
		err  assert.ErrorAssertionFunc
		want float64
	}{
		{"empty uses default", "", 50, assert.NoError, 50},
		{"open", "open", 0, assert.NoError, 100},
		{"closed", "closed", 100, assert.NoError, 0},
		{"percent", "75%", 0, assert.NoError, 75},
		{"absolute", "42", 0, assert.NoError, 42},
		{"case insensitive", "Open", 0, assert.NoError, 100},
		{"out of range", "150", 0, assert.Error, 0},
		{"invalid", "halfway", 0, assert.Error, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := tt.spec.Resolve(b, tt.def)
			tt.err(t, err)
			if err == nil {
				assert.Equal(t, tt.want, level)
			}
		})
	}
}

func TestWindow_InWindow(t *testing.T) {
	w := Window{Top: 2.5, Bottom: 0.5, AzimuthStart: 90, AzimuthEnd: 270}

	assert.True(t, w.InWindow(180))
	assert.True(t, w.InWindow(90))
	assert.True(t, w.InWindow(270))
	assert.False(t, w.InWindow(45))
	assert.False(t, w.InWindow(300))
}

func TestWindow_Normalized(t *testing.T) {
	w := Window{AzimuthStart: -90, AzimuthEnd: 450}.Normalized()
	assert.Equal(t, 270.0, w.AzimuthStart)
	assert.Equal(t, 90.0, w.AzimuthEnd)
}
