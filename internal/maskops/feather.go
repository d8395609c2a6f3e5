package maskops

import (
	"image"

	"github.com/disintegration/imaging"
)

// Feather softens mask edges with a Gaussian blur of the given sigma and
// returns a soft 0-255 alpha mask. A non-positive sigma returns a copy.
func Feather(mask []byte, width, height int, sigma float64) ([]byte, error) {
	if err := checkMask(mask, width, height); err != nil {
		return nil, err
	}
	out := make([]byte, len(mask))
	if sigma <= 0 {
		copy(out, mask)
		return out, nil
	}

	src := &image.Gray{Pix: mask, Stride: width, Rect: image.Rect(0, 0, width, height)}
	blurred := imaging.Blur(src, sigma)
	for i := range out {
		out[i] = blurred.Pix[i*4]
	}
	return out, nil
}
