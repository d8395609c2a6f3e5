package grabcut

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipRegion(t *testing.T) {
	tests := []struct {
		name    string
		in      Rect
		want    Rect
		wantErr bool
	}{
		{"inside", Rect{2, 3, 4, 5}, Rect{2, 3, 4, 5}, false},
		{"whole image", Rect{0, 0, 10, 8}, Rect{0, 0, 10, 8}, false},
		{"overhangs right and bottom", Rect{6, 4, 10, 10}, Rect{6, 4, 4, 4}, false},
		{"negative origin", Rect{-3, -2, 5, 5}, Rect{0, 0, 2, 3}, false},
		{"zero width", Rect{1, 1, 0, 5}, Rect{}, true},
		{"negative height", Rect{1, 1, 5, -1}, Rect{}, true},
		{"fully outside", Rect{20, 20, 5, 5}, Rect{}, true},
		{"touches edge only", Rect{10, 0, 3, 3}, Rect{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClipRegion(tt.in, 10, 8)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRegion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLabelGrid(t *testing.T) {
	g := NewLabelGrid(4, 3, Rect{1, 1, 2, 1})
	assert.Equal(t, ProbableForeground, g.At(1, 1))
	assert.Equal(t, ProbableForeground, g.At(2, 1))
	assert.Equal(t, DefiniteBackground, g.At(0, 1))
	assert.Equal(t, DefiniteBackground, g.At(1, 0))
	assert.Equal(t, DefiniteBackground, g.At(3, 2))
}

func TestApplyScribbles(t *testing.T) {
	region := Rect{2, 2, 4, 4}
	g := NewLabelGrid(8, 8, region)

	fg := []Point{
		{X: 3.2, Y: 3.9},      // pixel (3, 3)
		{X: 0.5, Y: 0.5},      // outside the region
		{X: math.NaN(), Y: 1}, // non-finite
		{X: 4.5, Y: 4.5},      // also scribbled as background
		{X: 1e12, Y: 2},       // far out of bounds
	}
	bg := []Point{
		{X: 5, Y: 5},
		{X: 4.5, Y: 4.5},
		{X: -1, Y: 3},
		{X: 0, Y: math.Inf(1)},
	}

	dropped := g.ApplyScribbles(region, fg, bg, slog.Default())
	assert.Equal(t, 5, dropped)

	assert.Equal(t, DefiniteForeground, g.At(3, 3))
	assert.Equal(t, DefiniteForeground, g.At(4, 4), "foreground wins over background")
	assert.Equal(t, DefiniteBackground, g.At(5, 5))
	assert.Equal(t, DefiniteBackground, g.At(0, 0), "outside the region stays background")
	assert.Equal(t, ProbableForeground, g.At(2, 2))
}

func TestLabel_Predicates(t *testing.T) {
	assert.True(t, DefiniteForeground.IsForeground())
	assert.True(t, ProbableForeground.IsForeground())
	assert.False(t, ProbableBackground.IsForeground())
	assert.True(t, DefiniteBackground.IsPinned())
	assert.False(t, ProbableForeground.IsPinned())
	assert.Equal(t, "probable_background", ProbableBackground.String())
	assert.Equal(t, "label(9)", Label(9).String())
}

func TestImage_Validate(t *testing.T) {
	require.NoError(t, uniformImage(2, 2, 0, 0, 0).Validate())

	err := Image{Width: 0, Height: 2}.Validate()
	require.ErrorIs(t, err, ErrInvalidImage)

	err = Image{Width: 2, Height: 2, Pix: make([]byte, 15)}.Validate()
	require.ErrorIs(t, err, ErrInvalidImage)
}
