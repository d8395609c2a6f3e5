package grabcut

import (
	"fmt"
	"log/slog"
	"math"
)

// LabelGrid holds one label per image pixel in row-major order.
type LabelGrid struct {
	Width  int
	Height int
	Labels []Label
}

// NewLabelGrid initialises a grid for region: pixels inside start as probable
// foreground, everything else is definite background.
func NewLabelGrid(width, height int, region Rect) *LabelGrid {
	g := &LabelGrid{Width: width, Height: height, Labels: make([]Label, width*height)}
	for y := region.Y; y < region.Y+region.Height; y++ {
		row := g.Labels[y*width : (y+1)*width]
		for x := region.X; x < region.X+region.Width; x++ {
			row[x] = ProbableForeground
		}
	}
	return g
}

// At returns the label at (x, y).
func (g *LabelGrid) At(x, y int) Label {
	return g.Labels[y*g.Width+x]
}

// Set stores the label at (x, y).
func (g *LabelGrid) Set(x, y int, l Label) {
	g.Labels[y*g.Width+x] = l
}

// ClipRegion intersects r with the image bounds. A region that is empty before
// or after clipping is rejected.
func ClipRegion(r Rect, width, height int) (Rect, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return Rect{}, newError(KindInvalidRegion, fmt.Sprintf("region %s has zero or negative size", r), nil)
	}
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.Width, width), min(r.Y+r.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}, newError(KindInvalidRegion,
			fmt.Sprintf("region %s does not intersect the %dx%d image", r, width, height), nil)
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, nil
}

// scribblePixel maps a scribble point to the pixel that contains it.
func scribblePixel(p Point, width, height int) (int, int, error) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return 0, 0, newError(KindInvalidScribble, fmt.Sprintf("non-finite coordinate (%v, %v)", p.X, p.Y), nil)
	}
	fx, fy := math.Floor(p.X), math.Floor(p.Y)
	if fx < 0 || fy < 0 || fx >= float64(width) || fy >= float64(height) {
		return 0, 0, newError(KindInvalidScribble,
			fmt.Sprintf("coordinate (%v, %v) outside the %dx%d image", p.X, p.Y, width, height), nil)
	}
	return int(fx), int(fy), nil
}

// ApplyScribbles pins scribbled pixels to their definite labels and returns
// the number of points that were dropped. Background is applied first so a
// pixel marked as both ends up foreground. Foreground points outside the
// region are dropped because pixels there are always background; they are
// counted like any other dropped point and surface as Result.DroppedScribbles.
// Background points outside the region are kept as hard constraints.
func (g *LabelGrid) ApplyScribbles(region Rect, fg, bg []Point, logger *slog.Logger) int {
	dropped := 0
	for _, p := range bg {
		x, y, err := scribblePixel(p, g.Width, g.Height)
		if err != nil {
			logger.Warn("Dropping background scribble", "error", err)
			dropped++
			continue
		}
		g.Set(x, y, DefiniteBackground)
	}
	for _, p := range fg {
		x, y, err := scribblePixel(p, g.Width, g.Height)
		if err == nil && !region.Contains(x, y) {
			err = newError(KindInvalidScribble,
				fmt.Sprintf("foreground point (%d, %d) outside region %s", x, y, region), nil)
		}
		if err != nil {
			logger.Warn("Dropping foreground scribble", "error", err)
			dropped++
			continue
		}
		g.Set(x, y, DefiniteForeground)
	}
	return dropped
}
