package maxflow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEdge struct {
	u, v  int
	c, rc float64
}

func buildGraph(t *testing.T, n int, edges []testEdge) *Graph {
	t.Helper()
	g := New(n, len(edges))
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e.u, e.v, e.c, e.rc))
	}
	return g
}

// cutCapacity sums the capacity of arcs leaving the source side.
func cutCapacity(g *Graph, edges []testEdge) float64 {
	var sum float64
	for _, e := range edges {
		su, sv := g.SourceSide(e.u), g.SourceSide(e.v)
		if su && !sv {
			sum += e.c
		}
		if sv && !su {
			sum += e.rc
		}
	}
	return sum
}

func TestMaxFlow_TextbookNetwork(t *testing.T) {
	edges := []testEdge{
		{0, 1, 16, 0},
		{0, 2, 13, 0},
		{1, 3, 12, 0},
		{2, 1, 4, 0},
		{2, 4, 14, 0},
		{3, 2, 9, 0},
		{3, 5, 20, 0},
		{4, 3, 7, 0},
		{4, 5, 4, 0},
	}
	g := buildGraph(t, 6, edges)

	flow, err := g.MaxFlow(0, 5)
	require.NoError(t, err)
	assert.InDelta(t, 23.0, flow, 1e-9)
	assert.InDelta(t, flow, cutCapacity(g, edges), 1e-9)

	assert.True(t, g.SourceSide(0))
	assert.False(t, g.SourceSide(5))

	stats := g.Stats()
	assert.Positive(t, stats.Phases)
	assert.Positive(t, stats.Augmentations)
	assert.InDelta(t, 23.0, stats.Flow, 1e-9)
}

func TestMaxFlow_Disconnected(t *testing.T) {
	g := buildGraph(t, 4, []testEdge{{0, 1, 5, 0}, {2, 3, 5, 0}})

	flow, err := g.MaxFlow(0, 3)
	require.NoError(t, err)
	assert.Zero(t, flow)
	assert.True(t, g.SourceSide(0))
	assert.True(t, g.SourceSide(1))
	assert.False(t, g.SourceSide(2))
	assert.False(t, g.SourceSide(3))
}

func TestMaxFlow_UndirectedEdges(t *testing.T) {
	// s - a = b - t where the middle link is undirected.
	edges := []testEdge{
		{0, 1, 10, 0},
		{2, 1, 3, 3},
		{2, 3, 10, 0},
	}
	g := buildGraph(t, 4, edges)
	flow, err := g.MaxFlow(0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, flow, 1e-9)
	assert.True(t, g.SourceSide(1))
	assert.False(t, g.SourceSide(2))

	fwd, rev := g.Residual(1)
	assert.InDelta(t, 6.0, fwd, 1e-9, "b->a gained the pushed flow on its residual")
	assert.InDelta(t, 0.0, rev, 1e-9, "a->b is saturated")
}

func TestMaxFlow_SourceSideBeforeSolve(t *testing.T) {
	g := buildGraph(t, 2, []testEdge{{0, 1, 1, 0}})
	assert.False(t, g.SourceSide(0))
	assert.False(t, g.SourceSide(-1))
}

func TestAddEdge_Validation(t *testing.T) {
	g := New(3, 0)

	assert.ErrorIs(t, g.AddEdge(-1, 1, 1, 0), ErrInvalidNode)
	assert.ErrorIs(t, g.AddEdge(0, 3, 1, 0), ErrInvalidNode)
	assert.ErrorIs(t, g.AddEdge(1, 1, 1, 0), ErrInvalidNode)
	assert.ErrorIs(t, g.AddEdge(0, 1, -1, 0), ErrInvalidCapacity)
	assert.ErrorIs(t, g.AddEdge(0, 1, math.NaN(), 0), ErrInvalidCapacity)
	assert.ErrorIs(t, g.AddEdge(0, 1, 1, math.Inf(1)), ErrInvalidCapacity)
	assert.Zero(t, g.NumEdges())

	require.NoError(t, g.AddEdge(0, 1, 1, 0))
	assert.Equal(t, 1, g.NumEdges())
}

func TestMaxFlow_InvalidTerminals(t *testing.T) {
	g := New(3, 0)
	_, err := g.MaxFlow(0, 0)
	assert.ErrorIs(t, err, ErrInvalidNode)
	_, err = g.MaxFlow(0, 5)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestReset_ReusesGraph(t *testing.T) {
	g := buildGraph(t, 3, []testEdge{{0, 1, 2, 0}, {1, 2, 1, 0}})
	flow, err := g.MaxFlow(0, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, flow, 1e-9)

	g.Reset(4, 3)
	assert.Equal(t, 4, g.NumNodes())
	assert.Zero(t, g.NumEdges())
	require.NoError(t, g.AddEdge(0, 1, 5, 0))
	require.NoError(t, g.AddEdge(1, 2, 5, 0))
	require.NoError(t, g.AddEdge(2, 3, 4, 0))
	flow, err = g.MaxFlow(0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, flow, 1e-9)

	g.Release()
	assert.Zero(t, g.NumNodes())
}

func TestMaxFlow_LongChain(t *testing.T) {
	// A long path exercises the iterative search without recursion limits.
	const n = 20000
	g := New(n, n)
	for i := 0; i < n-1; i++ {
		require.NoError(t, g.AddEdge(i, i+1, float64(1+i%7), 0))
	}
	flow, err := g.MaxFlow(0, n-1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, flow, 1e-9)
}
