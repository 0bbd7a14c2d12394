package seeds

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
)

func build(t *testing.T, n int, pairs [][2]int) *graph.CSRGraph {
	t.Helper()
	raw := make([]graph.RawEdge, len(pairs))
	for i, p := range pairs {
		raw[i] = graph.RawEdge{Src: p[0], Dst: p[1], Counts: [graph.NumActions]int{1, 1, 1}}
	}
	g, err := graph.Build(context.Background(), n, raw, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func chain(t *testing.T, n int) *graph.CSRGraph {
	var pairs [][2]int
	for u := 0; u+1 < n; u++ {
		pairs = append(pairs, [2]int{u, u + 1})
	}
	return build(t, n, pairs)
}

func nodes(seeds []Seed) []int {
	out := make([]int, len(seeds))
	for i, s := range seeds {
		out[i] = s.Node
	}
	return out
}

func selectSeeds(t *testing.T, g *graph.CSRGraph, ip []float64, k, threads int) []Seed {
	t.Helper()
	seeds, _, err := Select(context.Background(), g, ip, Options{K: k, Threads: threads}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	return seeds
}

func TestChainPicksHead(t *testing.T) {
	g := chain(t, 5)
	ip := []float64{1.0, 0.5, 0.1, 0.05, 0.01}

	seeds := selectSeeds(t, g, ip, 1, 2)
	if len(seeds) != 1 {
		t.Fatalf("got %d seeds, want 1", len(seeds))
	}
	s := seeds[0]
	if s.Node != 0 || s.AvgDistance != 2.5 || s.Reach != 4 || !s.Candidate {
		t.Errorf("seed = %+v, want node 0 with avg distance 2.5", s)
	}
}

func TestCandidateFilter(t *testing.T) {
	tests := []struct {
		name string
		n    int
		ip   []float64
		want []bool
	}{
		{
			name: "DecayingChain",
			n:    5,
			ip:   []float64{1.0, 0.5, 0.1, 0.05, 0.01},
			want: []bool{true, true, true, false, false},
		},
		{
			name: "RisingChain",
			n:    5,
			ip:   []float64{0, 0.15, 0.2775, 0.385875, 0.47799375},
			want: []bool{false, false, false, false, false},
		},
		{
			name: "PlateauThenDrop",
			n:    4,
			ip:   []float64{1.0, 0.5, 0.5, 0.1},
			want: []bool{true, false, false, false},
		},
		{
			name: "DropButNotAboveLayer",
			n:    4,
			ip:   []float64{0.2, 0.5, 0.1, 0.0},
			want: []bool{false, true, false, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Candidates(context.Background(), chain(t, tt.n), tt.ip, 2)
			if err != nil {
				t.Fatalf("Candidates: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("candidates = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroKIsEmpty(t *testing.T) {
	g := chain(t, 5)
	ip := []float64{1.0, 0.5, 0.1, 0.05, 0.01}
	for _, k := range []int{0, -3} {
		seeds, stats, err := Select(context.Background(), g, ip, Options{K: k}, zerolog.Nop())
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if len(seeds) != 0 || stats.Chosen != 0 {
			t.Errorf("k=%d: got %v", k, seeds)
		}
	}
}

func TestIsolatedNodeIsPaddedWithZeroDistance(t *testing.T) {
	// Chain 0->1->2->3 plus isolated node 4 with high influence.
	g := build(t, 5, [][2]int{{0, 1}, {1, 2}, {2, 3}})
	ip := []float64{1.0, 0.5, 0.1, 0.05, 0.9}

	isCand, err := Candidates(context.Background(), g, ip, 1)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if isCand[4] {
		t.Fatalf("isolated node nominated as candidate")
	}

	seeds, stats, err := Select(context.Background(), g, ip, Options{K: 4, Threads: 3}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if want := []int{0, 1, 4, 2}; !reflect.DeepEqual(nodes(seeds), want) {
		t.Fatalf("seeds = %v, want %v", nodes(seeds), want)
	}
	if stats.Chosen != 2 || stats.Padded != 2 {
		t.Errorf("stats = %+v", stats)
	}
	iso := seeds[2]
	if iso.AvgDistance != 0 || iso.Candidate || iso.Reach != 0 {
		t.Errorf("isolated seed = %+v", iso)
	}
	if seeds[3].AvgDistance != 1 {
		t.Errorf("padded node 2 avg distance = %v, want 1", seeds[3].AvgDistance)
	}
}

func TestTieBreakByNodeID(t *testing.T) {
	g := build(t, 6, [][2]int{{1, 3}, {3, 5}, {0, 2}, {2, 4}})
	ip := []float64{1, 1, 0.5, 0.5, 0.1, 0.1}
	if got := nodes(selectSeeds(t, g, ip, 2, 2)); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("seeds = %v, want [0 1]", got)
	}
}

func TestLengthAndDistinctness(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	const n = 150
	pairs := make([][2]int, 400)
	for i := range pairs {
		pairs[i] = [2]int{rng.IntN(n), rng.IntN(n)}
	}
	g := build(t, n, pairs)
	ip := make([]float64, n)
	for i := range ip {
		ip[i] = rng.Float64()
	}

	for _, k := range []int{1, 7, 40, n, n + 25} {
		seeds := selectSeeds(t, g, ip, k, 4)
		if len(seeds) != min(k, n) {
			t.Fatalf("k=%d: %d seeds, want %d", k, len(seeds), min(k, n))
		}
		seen := make(map[int]bool)
		for _, s := range seeds {
			if seen[s.Node] {
				t.Fatalf("k=%d: node %d selected twice", k, s.Node)
			}
			seen[s.Node] = true
		}

		again := selectSeeds(t, g, ip, k, 1)
		if !reflect.DeepEqual(seeds, again) {
			t.Fatalf("k=%d: result depends on thread count", k)
		}
	}
}

func TestInfluenceLengthMismatch(t *testing.T) {
	_, _, err := Select(context.Background(), chain(t, 3), []float64{1}, Options{K: 1}, zerolog.Nop())
	if !errors.Is(err, ErrInfluenceLength) {
		t.Fatalf("expected ErrInfluenceLength, got %v", err)
	}
}

func TestEmptyGraph(t *testing.T) {
	seeds := selectSeeds(t, graph.Empty(0), nil, 3, 1)
	if len(seeds) != 0 {
		t.Errorf("got %v", seeds)
	}
}
