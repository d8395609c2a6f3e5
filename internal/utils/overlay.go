package utils

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/disintegration/imaging"
)

// OverlayConfig controls how a segmentation preview is drawn.
type OverlayConfig struct {
	Tint      color.NRGBA // blended over background pixels
	Opacity   float64     // 0..1
	RectColor color.NRGBA
	Thickness int
}

// DefaultOverlayConfig dims the background and outlines the region in red.
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		Tint:      color.NRGBA{0, 0, 0, 255},
		Opacity:   0.6,
		RectColor: color.NRGBA{255, 0, 0, 255},
		Thickness: 2,
	}
}

// Overlay renders a preview of a full-image mask: background pixels are
// blended towards the tint and the region is outlined.
func Overlay(img image.Image, mask []byte, region grabcut.Rect, cfg OverlayConfig) (*image.NRGBA, error) {
	dst := imaging.Clone(img)
	b := dst.Bounds()
	if _, err := MaskToGray(mask, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}

	keep := 1 - cfg.Opacity
	for i, m := range mask {
		if m >= 128 {
			continue
		}
		o := i * 4
		dst.Pix[o] = uint8(float64(dst.Pix[o])*keep + float64(cfg.Tint.R)*cfg.Opacity)
		dst.Pix[o+1] = uint8(float64(dst.Pix[o+1])*keep + float64(cfg.Tint.G)*cfg.Opacity)
		dst.Pix[o+2] = uint8(float64(dst.Pix[o+2])*keep + float64(cfg.Tint.B)*cfg.Opacity)
	}

	DrawRect(dst, image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height), cfg.RectColor, cfg.Thickness)
	return dst, nil
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst *image.NRGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	// Top and bottom edges
	for t := range thickness {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	// Left and right edges
	for t := range thickness {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}
