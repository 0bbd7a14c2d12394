// Package graph holds the compressed sparse row (CSR) representation of the
// directed interaction graph together with the per-node interest matrix, and
// the loaders that materialize both from their text formats.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/gilchrisn/influence-seeding/pkg/workpool"
)

// NumActions is the number of interaction categories carried per edge
// (like, share, comment).
const NumActions = 3

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrNegativeValue     = errors.New("negative value")
	ErrInterestDimension = errors.New("interest vector dimension mismatch")
	ErrNodeOutOfRange    = errors.New("node id out of range")

	// ErrEdgeCountMismatch and ErrCorruptAdjacency report a broken CSR
	// structure, which is a bug rather than bad input.
	ErrEdgeCountMismatch = errors.New("forward and reverse edge counts differ")
	ErrCorruptAdjacency  = errors.New("corrupt adjacency")
)

// Edge is one directed edge. Psi is filled in by edge weighting; every other
// field is fixed at load time.
type Edge struct {
	Src    int
	Dst    int
	Counts [NumActions]int
	Psi    float64
}

// RawEdge is an edge as read from input, before CSR placement.
type RawEdge struct {
	Src    int
	Dst    int
	Counts [NumActions]int
}

// CSRGraph stores edges sorted by source. The reverse view stores edge ids
// ordered by destination, so both views address the same Edge values.
type CSRGraph struct {
	N          int
	Offsets    []int
	Edges      []Edge
	RevOffsets []int
	RevEdges   []int
}

// Empty returns a graph with n nodes and no edges.
func Empty(n int) *CSRGraph {
	return &CSRGraph{
		N:          n,
		Offsets:    make([]int, n+1),
		RevOffsets: make([]int, n+1),
	}
}

// Build places raw into forward and reverse CSR arrays with a counting sort.
// Edges sharing a source keep their input order; edges sharing a destination
// appear in ascending edge id order. Degree counting and placement run on up
// to threads goroutines with per-chunk histograms; sparse graphs use fewer.
func Build(ctx context.Context, n int, raw []RawEdge, threads int) (*CSRGraph, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative node count %d", ErrMalformedInput, n)
	}
	for i, e := range raw {
		if e.Src < 0 || e.Src >= n || e.Dst < 0 || e.Dst >= n {
			return nil, fmt.Errorf("%w: edge %d (%d -> %d) with %d nodes", ErrNodeOutOfRange, i, e.Src, e.Dst, n)
		}
		for _, c := range e.Counts {
			if c < 0 {
				return nil, fmt.Errorf("%w: edge %d (%d -> %d) count %d", ErrNegativeValue, i, e.Src, e.Dst, c)
			}
		}
	}

	g := &CSRGraph{
		N:        n,
		Edges:    make([]Edge, len(raw)),
		RevEdges: make([]int, len(raw)),
	}

	var err error
	g.Offsets, err = placeByKey(ctx, n, len(raw), threads,
		func(i int) int { return raw[i].Src },
		func(i, slot int) {
			e := raw[i]
			g.Edges[slot] = Edge{Src: e.Src, Dst: e.Dst, Counts: e.Counts}
		})
	if err != nil {
		return nil, err
	}

	g.RevOffsets, err = placeByKey(ctx, n, len(g.Edges), threads,
		func(id int) int { return g.Edges[id].Dst },
		func(id, slot int) { g.RevEdges[slot] = id })
	if err != nil {
		return nil, err
	}
	return g, nil
}

// placeByKey is a parallel stable counting sort of m items into n buckets.
// Each chunk counts its own items, the histograms are merged once, and every
// chunk then writes its items starting at its precomputed per-bucket cursor.
func placeByKey(ctx context.Context, n, m, threads int, key func(int) int, place func(item, slot int)) ([]int, error) {
	offsets := make([]int, n+1)
	threads = histogramThreads(n, m, threads)
	chunks := workpool.Chunks(m, threads)
	hist := make([][]int, chunks)

	err := workpool.ForRange(ctx, m, threads, func(w, lo, hi int) error {
		local := make([]int, n)
		for i := lo; i < hi; i++ {
			local[key(i)]++
		}
		hist[w] = local
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, local := range hist {
		for u, c := range local {
			offsets[u+1] += c
		}
	}
	for u := 1; u <= n; u++ {
		offsets[u] += offsets[u-1]
	}

	// Turn histograms into per-chunk cursors.
	running := make([]int, n)
	copy(running, offsets[:n])
	for _, local := range hist {
		for u, c := range local {
			local[u] = running[u]
			running[u] += c
		}
	}

	err = workpool.ForRange(ctx, m, threads, func(w, lo, hi int) error {
		cursor := hist[w]
		for i := lo; i < hi; i++ {
			k := key(i)
			place(i, cursor[k])
			cursor[k]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offsets, nil
}

// histogramThreads caps the chunk count so the per-chunk histograms together
// hold no more than max(n, m) counters.
func histogramThreads(n, m, threads int) int {
	threads = workpool.Threads(threads)
	if n == 0 {
		return threads
	}
	return max(1, min(threads, m/n))
}

// NumEdges returns the number of directed edges.
func (g *CSRGraph) NumEdges() int { return len(g.Edges) }

// OutDegree returns the number of edges leaving u.
func (g *CSRGraph) OutDegree(u int) int { return g.Offsets[u+1] - g.Offsets[u] }

// InDegree returns the number of edges entering u.
func (g *CSRGraph) InDegree(u int) int { return g.RevOffsets[u+1] - g.RevOffsets[u] }

// OutEdges returns u's outgoing edges. The slice aliases the graph.
func (g *CSRGraph) OutEdges(u int) []Edge { return g.Edges[g.Offsets[u]:g.Offsets[u+1]] }

// InEdgeIDs returns the ids of the edges entering u.
func (g *CSRGraph) InEdgeIDs(u int) []int { return g.RevEdges[g.RevOffsets[u]:g.RevOffsets[u+1]] }

// Validate checks the structural invariants of both views.
func (g *CSRGraph) Validate() error {
	if len(g.Offsets) != g.N+1 || len(g.RevOffsets) != g.N+1 {
		return fmt.Errorf("%w: offset arrays sized %d/%d for %d nodes",
			ErrCorruptAdjacency, len(g.Offsets), len(g.RevOffsets), g.N)
	}
	if len(g.RevEdges) != len(g.Edges) {
		return fmt.Errorf("%w: %d forward, %d reverse", ErrEdgeCountMismatch, len(g.Edges), len(g.RevEdges))
	}
	if err := checkOffsets(g.Offsets, len(g.Edges)); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	if err := checkOffsets(g.RevOffsets, len(g.RevEdges)); err != nil {
		return fmt.Errorf("reverse: %w", err)
	}

	for u := 0; u < g.N; u++ {
		for i := g.Offsets[u]; i < g.Offsets[u+1]; i++ {
			e := g.Edges[i]
			if e.Src != u || e.Dst < 0 || e.Dst >= g.N {
				return fmt.Errorf("%w: edge %d (%d -> %d) in range of node %d", ErrCorruptAdjacency, i, e.Src, e.Dst, u)
			}
		}
	}

	seen := make([]bool, len(g.Edges))
	for v := 0; v < g.N; v++ {
		for _, id := range g.InEdgeIDs(v) {
			if id < 0 || id >= len(g.Edges) || seen[id] {
				return fmt.Errorf("%w: reverse entry %d of node %d", ErrCorruptAdjacency, id, v)
			}
			if g.Edges[id].Dst != v {
				return fmt.Errorf("%w: reverse entry %d points at %d, listed under %d",
					ErrCorruptAdjacency, id, g.Edges[id].Dst, v)
			}
			seen[id] = true
		}
	}
	return nil
}

func checkOffsets(offsets []int, m int) error {
	if offsets[0] != 0 {
		return fmt.Errorf("%w: first offset %d", ErrCorruptAdjacency, offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: offsets decrease at %d", ErrCorruptAdjacency, i)
		}
	}
	if last := offsets[len(offsets)-1]; last != m {
		return fmt.Errorf("%w: last offset %d, %d edges", ErrEdgeCountMismatch, last, m)
	}
	return nil
}
