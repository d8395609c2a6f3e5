package lab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRGB_ReferenceColors(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    Color
	}{
		{"black", 0, 0, 0, Color{0, 0, 0}},
		{"white", 255, 255, 255, Color{100, 0, 0}},
		{"red", 255, 0, 0, Color{53.24, 80.09, 67.20}},
		{"green", 0, 255, 0, Color{87.73, -86.18, 83.18}},
		{"blue", 0, 0, 255, Color{32.30, 79.19, -107.86}},
		{"mid gray", 128, 128, 128, Color{53.59, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromRGB(tt.r, tt.g, tt.b)
			assert.InDelta(t, tt.want.L, got.L, 0.05)
			assert.InDelta(t, tt.want.A, got.A, 0.05)
			assert.InDelta(t, tt.want.B, got.B, 0.05)
		})
	}
}

func TestSRGBToLinear_Threshold(t *testing.T) {
	// Both branches meet at the threshold.
	below := srgbToLinear(gammaThreshold)
	above := srgbToLinear(gammaThreshold + 1e-9)
	assert.InDelta(t, below, above, 1e-6)
	assert.InDelta(t, 0.0, srgbToLinear(0), 1e-12)
	assert.InDelta(t, 1.0, srgbToLinear(1), 1e-12)
}

func TestDistance(t *testing.T) {
	a := Color{L: 10, A: 0, B: 0}
	b := Color{L: 13, A: 4, B: 0}
	assert.InDelta(t, 25.0, DistanceSquared(a, b), 1e-12)
	assert.InDelta(t, 5.0, Distance(a, b), 1e-12)
}

func TestConvertRGBA(t *testing.T) {
	pix := []byte{
		255, 0, 0, 255,
		0, 255, 0, 0, // alpha ignored
	}
	out := ConvertRGBA(pix, nil)
	assert.Len(t, out, 2)
	assert.Equal(t, FromRGB(255, 0, 0), out[0])
	assert.Equal(t, FromRGB(0, 255, 0), out[1])

	// Reuses a large enough destination.
	dst := make([]Color, 0, 8)
	out = ConvertRGBA(pix, dst)
	assert.Equal(t, 8, cap(out))
}
