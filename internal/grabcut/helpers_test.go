package grabcut

import (
	"image"

	"github.com/MeKo-Tech/cutout/internal/testutil"
)

func sceneImage(config testutil.SceneConfig) Image {
	return FromNRGBA(testutil.GenerateScene(config))
}

func toRect(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func toPoints(pts []image.Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: float64(p.X) + 0.5, Y: float64(p.Y) + 0.5}
	}
	return out
}

func scenarioJob(s testutil.Scenario) Job {
	return Job{
		TaskID:     s.Name,
		Image:      sceneImage(s.Scene),
		Region:     toRect(s.Region),
		Foreground: toPoints(s.Foreground),
		Background: toPoints(s.Background),
		Iterations: s.Iterations,
		Lambda:     s.Lambda,
	}
}

func uniformImage(w, h int, r, g, b uint8) Image {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	return Image{Width: w, Height: h, Pix: pix}
}

// cancelSet is a Canceller backed by a fixed set of task ids.
type cancelSet map[string]bool

func (c cancelSet) IsCancelled(taskID string) bool { return c[taskID] }
