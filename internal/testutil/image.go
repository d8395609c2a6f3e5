package testutil

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	TinySize   = ImageSize{20, 20}
	SmallSize  = ImageSize{64, 48}
	MediumSize = ImageSize{320, 240}
)

var (
	Red   = color.NRGBA{255, 0, 0, 255}
	Green = color.NRGBA{0, 255, 0, 255}
	Blue  = color.NRGBA{0, 0, 255, 255}
	White = color.NRGBA{255, 255, 255, 255}
	Gray  = color.NRGBA{128, 128, 128, 255}
)

// SceneConfig describes a synthetic image: a rectangular subject pasted on a
// uniform background, optionally with per-channel noise.
type SceneConfig struct {
	Size       ImageSize
	Background color.NRGBA
	Subject    color.NRGBA
	SubjectAt  image.Rectangle
	Noise      int // maximum absolute perturbation per channel
	Seed       int64
}

// DefaultSceneConfig returns a 20x20 green image with a 10x10 red square in
// the middle.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		Size:       TinySize,
		Background: Green,
		Subject:    Red,
		SubjectAt:  image.Rect(5, 5, 15, 15),
	}
}

// GenerateScene renders the scene described by config.
func GenerateScene(config SceneConfig) *image.NRGBA {
	img := imaging.New(config.Size.Width, config.Size.Height, config.Background)
	sub := config.SubjectAt.Intersect(img.Bounds())
	if !sub.Empty() {
		img = imaging.Paste(img, imaging.New(sub.Dx(), sub.Dy(), config.Subject), sub.Min)
	}
	if config.Noise > 0 {
		addNoise(img, config.Noise, config.Seed)
	}
	return img
}

// addNoise perturbs every color channel by a uniform value in [-level, level].
func addNoise(img *image.NRGBA, level int, seed int64) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: deterministic test data
	for i := 0; i < len(img.Pix); i += 4 {
		for ch := range 3 {
			v := int(img.Pix[i+ch]) + rng.Intn(2*level+1) - level
			img.Pix[i+ch] = uint8(min(max(v, 0), 255)) //nolint:gosec // G115: clamped above
		}
	}
}

// CreateTestImage creates a uniform image of the given size and color.
func CreateTestImage(width, height int, c color.Color) *image.NRGBA {
	return imaging.New(width, height, c)
}

// WriteScene renders config into dir/name and returns the path. The format
// follows the file extension.
func WriteScene(t *testing.T, dir, name string, config SceneConfig) string {
	t.Helper()

	path := filepath.Join(dir, name)
	SaveImage(t, GenerateScene(config), path)
	return path
}

// SaveImage saves an image to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	return img
}

// CompareImages compares two images and returns true if they are similar.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1 != bounds2 {
		return false
	}

	var totalDiff float64
	var pixelCount float64

	for y := bounds1.Min.Y; y < bounds1.Max.Y; y++ {
		for x := bounds1.Min.X; x < bounds1.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}

	avgDiff := totalDiff / pixelCount
	maxDiff := math.Sqrt(4 * 65535 * 65535)

	return (avgDiff / maxDiff) <= tolerance
}

// MaskFromRect builds a width x height 0/255 mask with r set to 255.
func MaskFromRect(width, height int, r image.Rectangle) []byte {
	mask := make([]byte, width*height)
	r = r.Intersect(image.Rect(0, 0, width, height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			mask[y*width+x] = 255
		}
	}
	return mask
}

// MaskAgreement returns the fraction of positions where a and b are equal.
func MaskAgreement(a, b []byte) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("mask sizes differ: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 1, nil
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a)), nil
}

// DisagreeingPairs counts 4-adjacent pairs whose mask values differ.
func DisagreeingPairs(mask []byte, width int) int {
	n := 0
	for i := range mask {
		if (i%width)+1 < width && mask[i] != mask[i+1] {
			n++
		}
		if i+width < len(mask) && mask[i] != mask[i+width] {
			n++
		}
	}
	return n
}
