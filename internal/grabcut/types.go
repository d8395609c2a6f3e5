// Package grabcut segments a region of an image into foreground and
// background by repeatedly fitting per-class color statistics and solving a
// minimum s-t cut over the 4-connected pixel graph of the region.
package grabcut

import (
	"fmt"
	"image"
)

// Label is the per-pixel state of the segmentation.
type Label uint8

const (
	DefiniteBackground Label = iota
	DefiniteForeground
	ProbableBackground
	ProbableForeground
)

// IsForeground reports whether l counts towards the foreground class.
func (l Label) IsForeground() bool {
	return l == DefiniteForeground || l == ProbableForeground
}

// IsPinned reports whether l is a hard constraint that the cut never changes.
func (l Label) IsPinned() bool {
	return l == DefiniteBackground || l == DefiniteForeground
}

func (l Label) String() string {
	switch l {
	case DefiniteBackground:
		return "definite_background"
	case DefiniteForeground:
		return "definite_foreground"
	case ProbableBackground:
		return "probable_background"
	case ProbableForeground:
		return "probable_foreground"
	default:
		return fmt.Sprintf("label(%d)", uint8(l))
	}
}

// Image is an interleaved 8-bit RGBA buffer. The engine never writes to Pix.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// Validate checks that the buffer matches the stated dimensions.
func (im Image) Validate() error {
	if im.Width <= 0 || im.Height <= 0 {
		return newError(KindInvalidImage, fmt.Sprintf("image dimensions %dx%d must be positive", im.Width, im.Height), nil)
	}
	if want := im.Width * im.Height * 4; len(im.Pix) != want {
		return newError(KindInvalidImage, fmt.Sprintf("pixel buffer has %d bytes, want %d for %dx%d RGBA",
			len(im.Pix), want, im.Width, im.Height), nil)
	}
	return nil
}

// RGB returns the color channels of the pixel at (x, y).
func (im Image) RGB(x, y int) (r, g, b uint8) {
	o := (y*im.Width + x) * 4
	return im.Pix[o], im.Pix[o+1], im.Pix[o+2]
}

// FromNRGBA wraps an *image.NRGBA without copying when its stride is tight.
func FromNRGBA(src *image.NRGBA) Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if src.Stride == w*4 && len(src.Pix) >= w*h*4 {
		return Image{Width: w, Height: h, Pix: src.Pix[:w*h*4]}
	}
	pix := make([]byte, w*h*4)
	for y := range h {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		copy(pix[y*w*4:], row)
	}
	return Image{Width: w, Height: h, Pix: pix}
}

// Rect is an integer rectangle in image coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the number of pixels covered by r.
func (r Rect) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Point is a scribble coordinate as received from the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Job is one segmentation request.
type Job struct {
	TaskID     string
	Image      Image
	Region     Rect
	Foreground []Point
	Background []Point
	// Iterations <= 0 selects the controller's default.
	Iterations int
	Lambda     float64
	// FullMask requests an image-sized mask instead of a region-sized one.
	FullMask bool
}

// Result is the outcome of a completed job. The caller owns Mask.
type Result struct {
	TaskID string `json:"task_id"`
	Mask   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Region is the region actually segmented, after clipping to the image.
	Region           Rect    `json:"region"`
	Iterations       int     `json:"iterations"`
	ForegroundPixels int     `json:"foreground_pixels"`
	DroppedScribbles int     `json:"dropped_scribbles"`
	Flow             float64 `json:"flow"`
	Beta             float64 `json:"beta"`
}

// Options configures a Controller.
type Options struct {
	Iterations      int
	Lambda          float64
	MaxRegionPixels int
	// BetaStride samples every n-th region pixel when estimating beta.
	BetaStride    int
	VarianceFloor float64
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Iterations:      5,
		Lambda:          50,
		MaxRegionPixels: 4096 * 4096,
		BetaStride:      2,
		VarianceFloor:   1.0,
	}
}
