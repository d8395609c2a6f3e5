package maskops

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMask is returned when a buffer does not match its dimensions.
var ErrInvalidMask = errors.New("maskops: invalid mask")

// MorphologicalOp represents the type of morphological operation to perform.
type MorphologicalOp int

const (
	MorphNone MorphologicalOp = iota
	MorphDilate
	MorphErode
	MorphOpening // Erode then Dilate - removes small specks
	MorphClosing // Dilate then Erode - fills small holes
)

var morphNames = map[MorphologicalOp]string{
	MorphNone:    "none",
	MorphDilate:  "dilate",
	MorphErode:   "erode",
	MorphOpening: "open",
	MorphClosing: "close",
}

func (op MorphologicalOp) String() string {
	if s, ok := morphNames[op]; ok {
		return s
	}
	return fmt.Sprintf("morph(%d)", int(op))
}

// ParseMorphOp maps a wire name such as "open" or "close" to an operation.
func ParseMorphOp(s string) (MorphologicalOp, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "opening":
		name = "open"
	case "closing":
		name = "close"
	}
	for op, n := range morphNames {
		if n == name {
			return op, nil
		}
	}
	return MorphNone, fmt.Errorf("unknown morphological operation %q", s)
}

// MorphConfig holds configuration for morphological operations.
type MorphConfig struct {
	Operation  MorphologicalOp
	KernelSize int // side of the square kernel, e.g. 3 for 3x3
	Iterations int
}

// DefaultMorphConfig returns default morphological operation configuration.
func DefaultMorphConfig() MorphConfig {
	return MorphConfig{
		Operation:  MorphNone,
		KernelSize: 3,
		Iterations: 1,
	}
}

func checkMask(mask []byte, width, height int) error {
	if width <= 0 || height <= 0 || len(mask) != width*height {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidMask, len(mask), width, height)
	}
	return nil
}

// Morph applies config to mask and returns a new mask.
func Morph(mask []byte, width, height int, config MorphConfig) ([]byte, error) {
	if err := checkMask(mask, width, height); err != nil {
		return nil, err
	}

	result := make([]byte, len(mask))
	copy(result, mask)
	if config.Operation == MorphNone || config.KernelSize <= 1 || config.Iterations <= 0 {
		return result, nil
	}

	for range config.Iterations {
		switch config.Operation {
		case MorphDilate:
			result = dilate(result, width, height, config.KernelSize)
		case MorphErode:
			result = erode(result, width, height, config.KernelSize)
		case MorphOpening:
			result = dilate(erode(result, width, height, config.KernelSize), width, height, config.KernelSize)
		case MorphClosing:
			result = erode(dilate(result, width, height, config.KernelSize), width, height, config.KernelSize)
		default:
			return nil, fmt.Errorf("unsupported morphological operation %v", config.Operation)
		}
	}
	return result, nil
}

// dilate expands foreground with a square max filter.
func dilate(mask []byte, width, height, kernelSize int) []byte {
	return rankFilter(mask, width, height, kernelSize, func(a, b byte) byte { return max(a, b) })
}

// erode shrinks foreground with a square min filter. Pixels beyond the
// border are ignored, so foreground touching the edge is not eaten away.
func erode(mask []byte, width, height, kernelSize int) []byte {
	return rankFilter(mask, width, height, kernelSize, func(a, b byte) byte { return min(a, b) })
}

// rankFilter applies pick over a kernelSize square, separably: first along
// rows, then along columns.
func rankFilter(mask []byte, width, height, kernelSize int, pick func(a, b byte) byte) []byte {
	half := kernelSize / 2
	tmp := make([]byte, len(mask))
	out := make([]byte, len(mask))

	for y := range height {
		row := mask[y*width : (y+1)*width]
		for x := range width {
			v := row[x]
			for k := max(x-half, 0); k <= min(x+half, width-1); k++ {
				v = pick(v, row[k])
			}
			tmp[y*width+x] = v
		}
	}
	for y := range height {
		for x := range width {
			v := tmp[y*width+x]
			for k := max(y-half, 0); k <= min(y+half, height-1); k++ {
				v = pick(v, tmp[k*width+x])
			}
			out[y*width+x] = v
		}
	}
	return out
}
