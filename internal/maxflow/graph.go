// Package maxflow computes maximum s-t flows and minimum cuts with Dinic's
// blocking-flow algorithm.
//
// A Graph stores its edges as residual pairs in flat arrays: edge 2k is the
// forward arc and edge 2k+1 its reverse, so the partner of edge e is e^1.
// The arrays come from the mempool package and can be reset and refilled
// between solves without reallocating.
package maxflow

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/cutout/internal/mempool"
)

// residualEpsilon is the smallest residual capacity still treated as usable.
const residualEpsilon = 1e-9

// MaxArcs is the number of residual arcs a graph can index. Every AddEdge
// stores two.
const MaxArcs = math.MaxInt32

var (
	// ErrInvalidNode is returned when an edge references a node outside the graph.
	ErrInvalidNode = errors.New("maxflow: invalid node")
	// ErrInvalidCapacity is returned for negative, NaN or infinite capacities.
	ErrInvalidCapacity = errors.New("maxflow: invalid capacity")
	// ErrInvalidState is returned when the solver detects a state that cannot
	// occur for a well-formed network.
	ErrInvalidState = errors.New("maxflow: solver reached an invalid state")
	// ErrTooLarge is returned when an edge would overflow the arc index.
	ErrTooLarge = errors.New("maxflow: graph exceeds the arc limit")
)

// Stats describes the work done by the last MaxFlow call.
type Stats struct {
	Phases         int
	Augmentations  int
	Flow           float64
	ReachableNodes int
}

// Graph is a flow network with a fixed number of nodes.
type Graph struct {
	numNodes int

	head []int32 // first outgoing edge per node, -1 if none
	next []int32 // next edge leaving the same tail
	to   []int32 // head node of each edge
	res  []float64

	level  []int32
	cursor []int32
	queue  []int32
	path   []int32

	solved bool
	stats  Stats
}

// New creates a graph with numNodes nodes. edgeHint is the expected number of
// AddEdge calls and only sizes the initial buffers.
func New(numNodes, edgeHint int) *Graph {
	g := &Graph{}
	g.Reset(numNodes, edgeHint)
	return g
}

// Reset clears all edges and resizes the graph to numNodes nodes, keeping
// allocated buffers where they are large enough.
func (g *Graph) Reset(numNodes, edgeHint int) {
	if numNodes < 0 {
		numNodes = 0
	}
	if edgeHint < 0 {
		edgeHint = 0
	}
	g.numNodes = numNodes
	g.solved = false
	g.stats = Stats{}

	g.head = resizeInt32(g.head, numNodes)
	for i := range g.head {
		g.head[i] = -1
	}
	g.level = resizeInt32(g.level, numNodes)
	g.cursor = resizeInt32(g.cursor, numNodes)
	g.queue = resizeInt32(g.queue, numNodes)

	pairs := 2 * edgeHint
	if cap(g.next) < pairs {
		mempool.PutInt32(g.next)
		mempool.PutInt32(g.to)
		mempool.PutFloat64(g.res)
		g.next = mempool.GetInt32(pairs)
		g.to = mempool.GetInt32(pairs)
		g.res = mempool.GetFloat64(pairs)
	}
	g.next = g.next[:0]
	g.to = g.to[:0]
	g.res = g.res[:0]
	g.path = g.path[:0]
}

func resizeInt32(buf []int32, n int) []int32 {
	if cap(buf) >= n {
		return buf[:n]
	}
	mempool.PutInt32(buf)
	return mempool.GetInt32(n)
}

// Release returns the graph's buffers to the pool. The graph must not be used afterwards.
func (g *Graph) Release() {
	mempool.PutInt32(g.head)
	mempool.PutInt32(g.next)
	mempool.PutInt32(g.to)
	mempool.PutFloat64(g.res)
	mempool.PutInt32(g.level)
	mempool.PutInt32(g.cursor)
	mempool.PutInt32(g.queue)
	*g = Graph{}
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return g.numNodes }

// NumEdges returns the number of AddEdge calls (each stores two residual arcs).
func (g *Graph) NumEdges() int { return len(g.to) / 2 }

// AddEdge adds an arc u->v with capacity c and the reverse arc v->u with
// capacity rc. Use rc = 0 for a directed edge and rc = c for an undirected one.
func (g *Graph) AddEdge(u, v int, c, rc float64) error {
	if u < 0 || u >= g.numNodes || v < 0 || v >= g.numNodes || u == v {
		return fmt.Errorf("%w: edge %d->%d in graph of %d nodes", ErrInvalidNode, u, v, g.numNodes)
	}
	if !validCapacity(c) || !validCapacity(rc) {
		return fmt.Errorf("%w: edge %d->%d has capacities %v/%v", ErrInvalidCapacity, u, v, c, rc)
	}

	if len(g.to) > MaxArcs-2 {
		return fmt.Errorf("%w: %d arcs", ErrTooLarge, len(g.to))
	}

	e := int32(len(g.to)) //nolint:gosec // G115: checked against MaxArcs above

	g.to = append(g.to, int32(v), int32(u)) //nolint:gosec // G115: node ids fit int32
	g.res = append(g.res, c, rc)
	g.next = append(g.next, g.head[u], g.head[v])
	g.head[u] = e
	g.head[v] = e + 1
	g.solved = false
	return nil
}

func validCapacity(c float64) bool {
	return c >= 0 && !math.IsNaN(c) && !math.IsInf(c, 0)
}

// Residual returns the remaining capacity of the k-th added edge in its forward
// direction and in its reverse direction.
func (g *Graph) Residual(k int) (forward, reverse float64) {
	return g.res[2*k], g.res[2*k+1]
}

// MaxFlow computes the maximum flow from source to sink. After it returns,
// SourceSide reports the minimum cut.
func (g *Graph) MaxFlow(source, sink int) (float64, error) {
	if source < 0 || source >= g.numNodes || sink < 0 || sink >= g.numNodes || source == sink {
		return 0, fmt.Errorf("%w: terminals %d/%d in graph of %d nodes", ErrInvalidNode, source, sink, g.numNodes)
	}

	s := int32(source) //nolint:gosec // G115: checked above
	t := int32(sink)   //nolint:gosec // G115: checked above

	var total float64
	g.stats = Stats{}

	// Each phase strictly increases the source-sink distance, so more than
	// numNodes phases means the residual network is corrupt.
	for phase := 0; ; phase++ {
		if phase > g.numNodes {
			return total, fmt.Errorf("%w: exceeded %d phases", ErrInvalidState, g.numNodes)
		}
		if !g.buildLevels(s, t) {
			break
		}
		g.stats.Phases++
		copy(g.cursor, g.head)

		pushed, err := g.blockingFlow(s, t)
		if err != nil {
			return total, err
		}
		total += pushed
	}

	g.solved = true
	g.stats.Flow = total
	for _, l := range g.level {
		if l >= 0 {
			g.stats.ReachableNodes++
		}
	}
	return total, nil
}

// buildLevels runs a BFS from s over arcs with positive residual capacity and
// reports whether t was reached. Unreached nodes keep level -1, so after the
// final call level marks exactly the source side of the minimum cut.
func (g *Graph) buildLevels(s, t int32) bool {
	for i := range g.level {
		g.level[i] = -1
	}
	g.level[s] = 0
	q := g.queue[:0]
	q = append(q, s)
	for i := 0; i < len(q); i++ {
		u := q[i]
		for e := g.head[u]; e != -1; e = g.next[e] {
			v := g.to[e]
			if g.level[v] < 0 && g.res[e] > residualEpsilon {
				g.level[v] = g.level[u] + 1
				q = append(q, v)
			}
		}
	}
	g.queue = q
	return g.level[t] >= 0
}

// blockingFlow saturates every shortest augmenting path in the level graph.
// The search is iterative; cursor[u] remembers the first arc of u that may
// still lead to t in this phase.
func (g *Graph) blockingFlow(s, t int32) (float64, error) {
	var total float64
	path := g.path[:0]
	u := s

	for {
		if u == t {
			f := math.Inf(1)
			for _, e := range path {
				if g.res[e] < f {
					f = g.res[e]
				}
			}
			if !(f > residualEpsilon) || math.IsInf(f, 0) {
				g.path = path
				return total, fmt.Errorf("%w: bottleneck %v on augmenting path", ErrInvalidState, f)
			}
			for _, e := range path {
				g.res[e] -= f
				g.res[e^1] += f
			}
			total += f
			g.stats.Augmentations++
			path = path[:0]
			u = s
			continue
		}

		advanced := false
		for ; g.cursor[u] != -1; g.cursor[u] = g.next[g.cursor[u]] {
			e := g.cursor[u]
			v := g.to[e]
			if g.res[e] > residualEpsilon && g.level[v] == g.level[u]+1 {
				path = append(path, e)
				u = v
				advanced = true
				break
			}
		}
		if advanced {
			continue
		}

		// Dead end: u cannot reach t in this phase.
		if u == s {
			g.path = path
			return total, nil
		}
		g.level[u] = -1
		last := path[len(path)-1]
		path = path[:len(path)-1]
		u = g.to[last^1]
		g.cursor[u] = g.next[g.cursor[u]]
	}
}

// SourceSide reports whether node v is reachable from the source in the
// residual network, i.e. lies on the source side of the minimum cut.
// It is only meaningful after a successful MaxFlow.
func (g *Graph) SourceSide(v int) bool {
	if !g.solved || v < 0 || v >= g.numNodes {
		return false
	}
	return g.level[v] >= 0
}

// Stats returns counters from the last MaxFlow call.
func (g *Graph) Stats() Stats {
	return g.stats
}
