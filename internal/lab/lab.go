// Package lab converts sRGB colors into the CIE L*a*b* space.
//
// The conversion follows the usual sRGB -> linear RGB -> XYZ -> Lab chain
// with the D65 reference white. It is used to measure perceptual distance
// between neighboring pixels.
package lab

import "math"

// D65 reference white in XYZ, scaled so Y = 1.
const (
	whiteX = 0.95047
	whiteY = 1.00000
	whiteZ = 1.08883
)

const (
	gammaThreshold = 0.04045
	labEpsilon     = 216.0 / 24389.0
	labKappa       = 24389.0 / 27.0
)

// Color is a point in CIE L*a*b*.
type Color struct {
	L float64
	A float64
	B float64
}

// linearTable caches the gamma-decoded value of every 8-bit channel value.
var linearTable = func() [256]float64 {
	var t [256]float64
	for i := range t {
		t[i] = srgbToLinear(float64(i) / 255.0)
	}
	return t
}()

func srgbToLinear(c float64) float64 {
	if c <= gammaThreshold {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	if t > labEpsilon {
		return math.Cbrt(t)
	}
	return (labKappa*t + 16.0) / 116.0
}

// FromRGB converts an 8-bit sRGB triple to Lab.
func FromRGB(r, g, b uint8) Color {
	rl := linearTable[r]
	gl := linearTable[g]
	bl := linearTable[b]

	x := rl*0.4124564 + gl*0.3575761 + bl*0.1804375
	y := rl*0.2126729 + gl*0.7151522 + bl*0.0721750
	z := rl*0.0193339 + gl*0.1191920 + bl*0.9503041

	fx := labF(x / whiteX)
	fy := labF(y / whiteY)
	fz := labF(z / whiteZ)

	return Color{
		L: 116.0*fy - 16.0,
		A: 500.0 * (fx - fy),
		B: 200.0 * (fy - fz),
	}
}

// DistanceSquared returns the squared Euclidean distance between two colors.
func DistanceSquared(c1, c2 Color) float64 {
	dl := c1.L - c2.L
	da := c1.A - c2.A
	db := c1.B - c2.B
	return dl*dl + da*da + db*db
}

// Distance returns the Euclidean (CIE76) distance between two colors.
func Distance(c1, c2 Color) float64 {
	return math.Sqrt(DistanceSquared(c1, c2))
}

// ConvertRGBA converts an interleaved RGBA buffer into one Lab color per pixel.
// The alpha channel is ignored. If dst has enough capacity it is reused.
func ConvertRGBA(pix []byte, dst []Color) []Color {
	n := len(pix) / 4
	if cap(dst) < n {
		dst = make([]Color, n)
	}
	dst = dst[:n]
	for i := range n {
		o := i * 4
		dst[i] = FromRGB(pix[o], pix[o+1], pix[o+2])
	}
	return dst
}
