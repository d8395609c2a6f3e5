package grabcut

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/cutout/internal/lab"
	"github.com/MeKo-Tech/cutout/internal/maxflow"
	"github.com/MeKo-Tech/cutout/internal/mempool"
)

// pinnedCapacityFactor scales the largest finite capacity of a round into the
// capacity used for the terminal link of a pinned pixel.
const pinnedCapacityFactor = 1e6

// BuildInfo describes one constructed network.
type BuildInfo struct {
	Nodes         int
	NeighborEdges int
	TerminalEdges int
	MaxCapacity   float64
	Sentinel      float64
}

// Builder constructs the flow network of a region. Lab colors and beta depend
// only on the image, so they are computed once per job and reused every round.
type Builder struct {
	img    Image
	region Rect
	colors []lab.Color
	beta   float64
}

// NewBuilder converts the region to Lab and estimates beta from every
// betaStride-th region pixel.
func NewBuilder(img Image, region Rect, betaStride int) *Builder {
	colors := make([]lab.Color, region.Area())
	for y := range region.Height {
		o := ((region.Y+y)*img.Width + region.X) * 4
		lab.ConvertRGBA(img.Pix[o:o+region.Width*4], colors[y*region.Width:(y+1)*region.Width])
	}
	return &Builder{
		img:    img,
		region: region,
		colors: colors,
		beta:   EstimateBeta(colors, region.Width, betaStride),
	}
}

// Beta returns the contrast normalisation used for neighbor links.
func (b *Builder) Beta() float64 { return b.beta }

// Source returns the node id of the foreground terminal.
func (b *Builder) Source() int { return len(b.colors) }

// Sink returns the node id of the background terminal.
func (b *Builder) Sink() int { return len(b.colors) + 1 }

// Node returns the node id of image pixel (x, y), which must lie in the region.
func (b *Builder) Node(x, y int) int {
	return (y-b.region.Y)*b.region.Width + (x - b.region.X)
}

// EstimateBeta returns 1 / (2 * mean squared Lab distance) over the right and
// down neighbor pairs of every stride-th pixel, or 0 when that mean is 0.
func EstimateBeta(colors []lab.Color, width, stride int) float64 {
	if stride < 1 {
		stride = 1
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(colors); i += stride {
		if i%width+1 < width {
			sum += lab.DistanceSquared(colors[i], colors[i+1])
			pairs++
		}
		if i+width < len(colors) {
			sum += lab.DistanceSquared(colors[i], colors[i+width])
			pairs++
		}
	}
	if pairs == 0 || sum == 0 {
		return 0
	}
	return 1 / (2 * sum / float64(pairs))
}

// NeighborWeight is the smoothness capacity between two adjacent pixels.
func NeighborWeight(a, b lab.Color, lambda, beta float64) float64 {
	return lambda * math.Exp(-beta*lab.DistanceSquared(a, b))
}

// Build resets g and fills it with the network for the current labels.
// Neighbor links are added first, so edge k < NeighborEdges is a neighbor link.
func (b *Builder) Build(g *maxflow.Graph, labels *LabelGrid, fg, bg ClassStats, lambda float64) (BuildInfo, error) {
	n := len(b.colors)
	w := b.region.Width
	info := BuildInfo{Nodes: n + 2}
	g.Reset(n+2, 4*n)

	srcCap := mempool.GetFloat64(n)
	sinkCap := mempool.GetFloat64(n)
	defer mempool.PutFloat64(srcCap)
	defer mempool.PutFloat64(sinkCap)

	for i := range n {
		x, y := b.region.X+i%w, b.region.Y+i/w
		if labels.At(x, y).IsPinned() {
			srcCap[i], sinkCap[i] = 0, 0
			continue
		}
		r, gr, bl := b.img.RGB(x, y)
		srcCap[i] = bg.Cost(r, gr, bl)
		sinkCap[i] = fg.Cost(r, gr, bl)
		info.MaxCapacity = max(info.MaxCapacity, srcCap[i], sinkCap[i])
	}

	for i := range n {
		if i%w+1 < w {
			if err := b.addNeighbor(g, i, i+1, lambda, &info); err != nil {
				return info, err
			}
		}
		if i+w < n {
			if err := b.addNeighbor(g, i, i+w, lambda, &info); err != nil {
				return info, err
			}
		}
	}

	info.Sentinel = pinnedCapacityFactor * max(info.MaxCapacity, 1)
	source, sink := b.Source(), b.Sink()
	for i := range n {
		x, y := b.region.X+i%w, b.region.Y+i/w
		var err error
		switch labels.At(x, y) {
		case DefiniteForeground:
			err = b.addTerminal(g, source, i, info.Sentinel, &info)
		case DefiniteBackground:
			err = b.addTerminal(g, i, sink, info.Sentinel, &info)
		default:
			if err = b.addTerminal(g, source, i, srcCap[i], &info); err == nil {
				err = b.addTerminal(g, i, sink, sinkCap[i], &info)
			}
		}
		if err != nil {
			return info, err
		}
	}
	return info, nil
}

func (b *Builder) addNeighbor(g *maxflow.Graph, p, q int, lambda float64, info *BuildInfo) error {
	wt := NeighborWeight(b.colors[p], b.colors[q], lambda, b.beta)
	if err := g.AddEdge(p, q, wt, wt); err != nil {
		return NewComputationError(fmt.Sprintf("neighbor link %d-%d", p, q), err)
	}
	info.NeighborEdges++
	info.MaxCapacity = max(info.MaxCapacity, wt)
	return nil
}

// addTerminal skips zero capacities; an absent arc cuts for free either way.
func (b *Builder) addTerminal(g *maxflow.Graph, u, v int, c float64, info *BuildInfo) error {
	if c == 0 {
		return nil
	}
	if err := g.AddEdge(u, v, c, 0); err != nil {
		return NewComputationError(fmt.Sprintf("terminal link %d->%d", u, v), err)
	}
	info.TerminalEdges++
	return nil
}

// Relabel assigns probable labels from the solved cut and returns how many
// pixels changed. Pinned pixels are left untouched.
func (b *Builder) Relabel(g *maxflow.Graph, labels *LabelGrid) int {
	changed := 0
	w := b.region.Width
	for i := range b.colors {
		x, y := b.region.X+i%w, b.region.Y+i/w
		old := labels.At(x, y)
		if old.IsPinned() {
			continue
		}
		next := ProbableBackground
		if g.SourceSide(i) {
			next = ProbableForeground
		}
		if next != old {
			labels.Set(x, y, next)
			changed++
		}
	}
	return changed
}
