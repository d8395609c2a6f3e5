package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/disintegration/imaging"
)

// ToEngineImage normalises img to a tightly packed RGBA buffer the
// segmentation engine can read.
func ToEngineImage(img image.Image) (grabcut.Image, error) {
	if img == nil {
		return grabcut.Image{}, &ImageProcessingError{Operation: "convert", Err: errors.New("input image is nil")}
	}
	return grabcut.FromNRGBA(imaging.Clone(img)), nil
}

// MaskToGray wraps a 0-255 mask in an *image.Gray without copying.
func MaskToGray(mask []byte, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 || len(mask) != width*height {
		return nil, &ImageProcessingError{
			Operation: "mask",
			Err:       fmt.Errorf("mask has %d bytes, want %dx%d", len(mask), width, height),
		}
	}
	return &image.Gray{Pix: mask, Stride: width, Rect: image.Rect(0, 0, width, height)}, nil
}

// EncodeMaskPNG writes mask as an 8-bit grayscale PNG.
func EncodeMaskPNG(w io.Writer, mask []byte, width, height int) error {
	gray, err := MaskToGray(mask, width, height)
	if err != nil {
		return err
	}
	if err := png.Encode(w, gray); err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	return nil
}

// SaveMask writes mask to path; the format follows the file extension.
func SaveMask(path string, mask []byte, width, height int) error {
	gray, err := MaskToGray(mask, width, height)
	if err != nil {
		return err
	}
	if err := imaging.Save(gray, path); err != nil {
		return &ImageProcessingError{Operation: "save", Err: err}
	}
	return nil
}

// MaskFromImage converts any image to a mask using its luminance.
func MaskFromImage(img image.Image) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([]byte, w*h)
	for y := range h {
		for x := range w {
			mask[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return mask, w, h
}

// ApplyMask returns the region of img with mask as its alpha channel. The
// mask covers region, or the whole image when it has one byte per image pixel.
func ApplyMask(img image.Image, mask []byte, region grabcut.Rect) (*image.NRGBA, error) {
	src := imaging.Clone(img)
	b := src.Bounds()
	if len(mask) == b.Dx()*b.Dy() {
		region = grabcut.Rect{Width: b.Dx(), Height: b.Dy()}
	}
	if region.Area() == 0 || len(mask) != region.Area() {
		return nil, &ImageProcessingError{
			Operation: "apply mask",
			Err:       fmt.Errorf("mask has %d bytes, region %s", len(mask), region),
		}
	}
	out := imaging.Crop(src, image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height))
	if out.Bounds().Dx() != region.Width || out.Bounds().Dy() != region.Height {
		return nil, &ImageProcessingError{Operation: "apply mask", Err: fmt.Errorf("region %s outside image", region)}
	}
	for i, a := range mask {
		out.Pix[i*4+3] = uint8(uint16(out.Pix[i*4+3]) * uint16(a) / 255)
	}
	return out, nil
}

// ExpandMask places a region-sized mask into an image-sized one that is
// background outside region.
func ExpandMask(mask []byte, region grabcut.Rect, width, height int) ([]byte, error) {
	if len(mask) != region.Area() || region.X < 0 || region.Y < 0 ||
		region.X+region.Width > width || region.Y+region.Height > height {
		return nil, &ImageProcessingError{
			Operation: "expand mask",
			Err:       fmt.Errorf("mask of %d bytes for region %s in %dx%d image", len(mask), region, width, height),
		}
	}
	full := make([]byte, width*height)
	for y := range region.Height {
		copy(full[(region.Y+y)*width+region.X:], mask[y*region.Width:(y+1)*region.Width])
	}
	return full, nil
}
