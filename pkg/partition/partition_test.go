package partition

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
)

func build(t *testing.T, n int, pairs [][2]int) *graph.CSRGraph {
	t.Helper()
	raw := make([]graph.RawEdge, len(pairs))
	for i, p := range pairs {
		raw[i] = graph.RawEdge{Src: p[0], Dst: p[1], Counts: [graph.NumActions]int{1, 1, 1}}
	}
	g, err := graph.Build(context.Background(), n, raw, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func randomGraph(t *testing.T, n, m int, seed uint64) *graph.CSRGraph {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed*7+1))
	pairs := make([][2]int, m)
	for i := range pairs {
		pairs[i] = [2]int{rng.IntN(n), rng.IntN(n)}
	}
	return build(t, n, pairs)
}

func compute(t *testing.T, g *graph.CSRGraph, threads int) *Result {
	t.Helper()
	r, err := Compute(context.Background(), g, Options{Threads: threads}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := r.Verify(g); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return r
}

func TestChainIsAllSingletons(t *testing.T) {
	g := build(t, 5, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}})
	r := compute(t, g, 1)

	if r.NumComponents != 5 {
		t.Fatalf("components = %d, want 5", r.NumComponents)
	}
	for u := 0; u < 5; u++ {
		if r.SCC[u] != Unset {
			t.Errorf("node %d: scc = %d, want unset", u, r.SCC[u])
		}
		if r.CACID[u] == Unset {
			t.Errorf("node %d: cac_id unset", u)
		}
	}
	if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(r.Level, want) {
		t.Errorf("levels = %v, want %v", r.Level, want)
	}
	if r.MaxLevel != 4 || r.NumLevels() != 5 {
		t.Errorf("max level = %d", r.MaxLevel)
	}
}

func TestCyclesAndBridges(t *testing.T) {
	// {0,1,2} cycle -> 3 -> {4,5} cycle, plus isolated 6 and self-loop 7.
	g := build(t, 8, [][2]int{
		{0, 1}, {1, 2}, {2, 0},
		{2, 3}, {3, 4},
		{4, 5}, {5, 4},
		{7, 7},
	})
	r := compute(t, g, 3)

	if r.Component[0] != r.Component[1] || r.Component[1] != r.Component[2] {
		t.Errorf("0,1,2 split: %v", r.Component[:3])
	}
	if r.Component[4] != r.Component[5] {
		t.Errorf("4,5 split")
	}
	for _, u := range []int{0, 1, 2, 4, 5} {
		if r.SCC[u] == Unset || r.CACID[u] != Unset {
			t.Errorf("node %d: scc=%d cac=%d", u, r.SCC[u], r.CACID[u])
		}
	}
	for _, u := range []int{3, 6, 7} {
		if r.CACID[u] == Unset || r.SCC[u] != Unset {
			t.Errorf("node %d: scc=%d cac=%d", u, r.SCC[u], r.CACID[u])
		}
	}

	wantLevel := []int{0, 0, 0, 1, 2, 2, 0, 0}
	if !reflect.DeepEqual(r.Level, wantLevel) {
		t.Errorf("levels = %v, want %v", r.Level, wantLevel)
	}
	if r.Statistics.NumSCC != 2 || r.Statistics.NumSingletons != 3 || r.Statistics.LargestSCC != 3 {
		t.Errorf("statistics = %+v", r.Statistics)
	}
	if r.Statistics.DAGEdges != 2 {
		t.Errorf("dag edges = %d, want 2", r.Statistics.DAGEdges)
	}
}

func TestLevelIsLongestPath(t *testing.T) {
	// 0 -> 1 -> 2 and 0 -> 2: node 2 must sit below node 1.
	g := build(t, 3, [][2]int{{0, 2}, {0, 1}, {1, 2}, {0, 2}})
	r := compute(t, g, 1)
	if want := []int{0, 1, 2}; !reflect.DeepEqual(r.Level, want) {
		t.Errorf("levels = %v, want %v", r.Level, want)
	}
	c0 := r.Component[0]
	if len(r.DAG[c0]) != 2 {
		t.Errorf("duplicate condensation edges kept: %v", r.DAG[c0])
	}
}

func TestMatchesGonumTarjan(t *testing.T) {
	for i, tc := range []struct{ n, m int }{{1, 0}, {10, 15}, {50, 120}, {200, 260}, {300, 900}} {
		t.Run(fmt.Sprintf("n=%d,m=%d", tc.n, tc.m), func(t *testing.T) {
			g := randomGraph(t, tc.n, tc.m, uint64(i+1))
			r := compute(t, g, 4)

			sccs := topo.TarjanSCC(g.ToGonum())
			if len(sccs) != r.NumComponents {
				t.Fatalf("components = %d, gonum found %d", r.NumComponents, len(sccs))
			}
			for _, scc := range sccs {
				first := r.Component[scc[0].ID()]
				for _, node := range scc {
					if r.Component[node.ID()] != first {
						t.Fatalf("gonum component %v split across ids", scc)
					}
				}
				if len(r.Members[first]) != len(scc) {
					t.Fatalf("component %d has %d members, gonum %d", first, len(r.Members[first]), len(scc))
				}
			}
		})
	}
}

func TestDeterministicAcrossThreads(t *testing.T) {
	g := randomGraph(t, 400, 700, 99)
	base := compute(t, g, 1)
	for _, threads := range []int{2, 5, 16} {
		r := compute(t, g, threads)
		if !reflect.DeepEqual(base.Component, r.Component) ||
			!reflect.DeepEqual(base.Level, r.Level) ||
			!reflect.DeepEqual(base.DAG, r.DAG) {
			t.Fatalf("threads=%d changed the partition", threads)
		}
	}
}

func TestDeepChainDoesNotRecurse(t *testing.T) {
	const n = 200000
	pairs := make([][2]int, 0, n)
	for u := 0; u+1 < n; u++ {
		pairs = append(pairs, [2]int{u, u + 1})
	}
	pairs = append(pairs, [2]int{n - 1, 0})
	r := compute(t, build(t, n, pairs), 4)
	if r.NumComponents != 1 || r.Statistics.LargestSCC != n {
		t.Errorf("expected one SCC of %d nodes, got %d components", n, r.NumComponents)
	}
}

func TestEmptyGraph(t *testing.T) {
	r := compute(t, graph.Empty(0), 2)
	if r.NumComponents != 0 || r.NumLevels() != 0 {
		t.Errorf("empty graph: %d components, %d levels", r.NumComponents, r.NumLevels())
	}
}

func TestLevelizeRejectsCycle(t *testing.T) {
	_, err := levelize([][]int{{1}, {2}, {0}, {}})
	if !errors.Is(err, ErrCyclicCondensation) {
		t.Fatalf("expected ErrCyclicCondensation, got %v", err)
	}
}

func TestVerifyCatchesBadLabels(t *testing.T) {
	g := build(t, 3, [][2]int{{0, 1}, {1, 2}})
	r := compute(t, g, 1)

	r.SCC[1] = r.Component[1]
	if err := r.Verify(g); !errors.Is(err, ErrInvariant) {
		t.Errorf("double label: expected ErrInvariant, got %v", err)
	}
	r.SCC[1] = Unset

	r.ComponentLevel[r.Component[2]] = 0
	r.Level[2] = 0
	if err := r.Verify(g); !errors.Is(err, ErrInvariant) {
		t.Errorf("level order: expected ErrInvariant, got %v", err)
	}
}
