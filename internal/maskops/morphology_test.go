package maskops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMorphConfig(t *testing.T) {
	config := DefaultMorphConfig()
	assert.Equal(t, MorphNone, config.Operation)
	assert.Equal(t, 3, config.KernelSize)
	assert.Equal(t, 1, config.Iterations)
}

func TestParseMorphOp(t *testing.T) {
	tests := map[string]MorphologicalOp{
		"open":    MorphOpening,
		"Opening": MorphOpening,
		"close":   MorphClosing,
		"dilate":  MorphDilate,
		" erode ": MorphErode,
		"none":    MorphNone,
	}
	for in, want := range tests {
		got, err := ParseMorphOp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMorphOp("blur")
	assert.Error(t, err)
	assert.Equal(t, "close", MorphClosing.String())
}

func TestMorph_None(t *testing.T) {
	mask := []byte{0, 255, 0, 255}
	out, err := Morph(mask, 2, 2, DefaultMorphConfig())
	require.NoError(t, err)
	assert.Equal(t, mask, out)

	out[0] = 9
	assert.Zero(t, mask[0], "result must not alias the input")
}

func TestMorph_InvalidMask(t *testing.T) {
	_, err := Morph([]byte{1, 2, 3}, 2, 2, DefaultMorphConfig())
	require.ErrorIs(t, err, ErrInvalidMask)
}

func TestDilate(t *testing.T) {
	w, h := 5, 5
	mask := make([]byte, w*h)
	mask[2*w+2] = 255

	out, err := Morph(mask, w, h, MorphConfig{Operation: MorphDilate, KernelSize: 3, Iterations: 1})
	require.NoError(t, err)

	for y := range h {
		for x := range w {
			want := byte(0)
			if x >= 1 && x <= 3 && y >= 1 && y <= 3 {
				want = 255
			}
			assert.Equal(t, want, out[y*w+x], "pixel (%d,%d)", x, y)
		}
	}
}

func TestErode(t *testing.T) {
	w, h := 5, 5
	mask := make([]byte, w*h)
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			mask[y*w+x] = 255
		}
	}

	out, err := Morph(mask, w, h, MorphConfig{Operation: MorphErode, KernelSize: 3, Iterations: 1})
	require.NoError(t, err)
	assert.Equal(t, byte(255), out[2*w+2])
	assert.Equal(t, 1, countForeground(out))
}

func TestOpening_RemovesSpeck(t *testing.T) {
	w, h := 9, 9
	mask := make([]byte, w*h)
	mask[1*w+1] = 255 // isolated speck
	for y := 4; y <= 7; y++ {
		for x := 4; x <= 7; x++ {
			mask[y*w+x] = 255
		}
	}

	out, err := Morph(mask, w, h, MorphConfig{Operation: MorphOpening, KernelSize: 3, Iterations: 1})
	require.NoError(t, err)
	assert.Zero(t, out[1*w+1])
	assert.Equal(t, byte(255), out[5*w+5])
	assert.Equal(t, 16, countForeground(out))
}

func TestClosing_FillsHole(t *testing.T) {
	w, h := 7, 7
	mask := make([]byte, w*h)
	for i := range mask {
		mask[i] = 255
	}
	mask[3*w+3] = 0

	out, err := Morph(mask, w, h, MorphConfig{Operation: MorphClosing, KernelSize: 3, Iterations: 1})
	require.NoError(t, err)
	assert.Equal(t, w*h, countForeground(out))
}

// countForeground counts bytes at or above the foreground threshold.
func countForeground(mask []byte) int {
	n := 0
	for _, v := range mask {
		if v >= foregroundThreshold {
			n++
		}
	}
	return n
}
