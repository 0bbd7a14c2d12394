// Package seeds picks the most influential starting nodes of a graph from a
// converged influence vector: a distance-decay filter nominates candidates,
// a greedy pass ranks them by forward reach, and influence-ordered padding
// fills any remaining slots.
package seeds

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/btree"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/workpool"
)

// ErrInfluenceLength is returned when the influence vector does not cover
// the graph.
var ErrInfluenceLength = errors.New("influence vector length mismatch")

// Seed is one selected node.
type Seed struct {
	Node        int     `json:"node" yaml:"node"`
	AvgDistance float64 `json:"avg_distance" yaml:"avg_distance"`
	Influence   float64 `json:"influence" yaml:"influence"`
	Candidate   bool    `json:"candidate" yaml:"candidate"`
	Reach       int     `json:"reach" yaml:"reach"`
}

// Options configures Select.
type Options struct {
	K       int
	Threads int
}

// Stats summarizes a selection run.
type Stats struct {
	Candidates int   `json:"candidates"`
	Chosen     int   `json:"chosen"`
	Padded     int   `json:"padded"`
	RuntimeMS  int64 `json:"runtime_ms"`
}

// Select returns up to K seeds. Candidates are taken greedily by largest
// reachable set, then smaller mean distance, then smaller node id. If fewer
// than K candidates exist, the rest are the remaining nodes in descending
// influence order (ties by node id), each with its full-graph mean
// distance. The result has min(K, n) distinct entries; K <= 0 yields none.
func Select(ctx context.Context, g *graph.CSRGraph, ip []float64, opts Options, logger zerolog.Logger) ([]Seed, Stats, error) {
	startTime := time.Now()
	var stats Stats

	if len(ip) != g.N {
		return nil, stats, fmt.Errorf("%w: %d scores for %d nodes", ErrInfluenceLength, len(ip), g.N)
	}
	if opts.K <= 0 || g.N == 0 {
		return []Seed{}, stats, nil
	}

	isCand, err := Candidates(ctx, g, ip, opts.Threads)
	if err != nil {
		return nil, stats, err
	}
	var pool []int
	for u, ok := range isCand {
		if ok {
			pool = append(pool, u)
		}
	}
	stats.Candidates = len(pool)

	// Reach does not depend on earlier picks, so one pass over the pool
	// serves every greedy round.
	reaches := make([]Reach, len(pool))
	err = forEachWithBFS(ctx, g, len(pool), opts.Threads, func(b *bfs, i int) {
		reaches[i] = b.reach(g, pool[i])
	})
	if err != nil {
		return nil, stats, err
	}

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		ra, rb := reaches[a], reaches[b]
		if c := cmp.Compare(rb.Size, ra.Size); c != 0 {
			return c
		}
		if c := cmp.Compare(ra.AvgDistance, rb.AvgDistance); c != 0 {
			return c
		}
		return cmp.Compare(pool[a], pool[b])
	})

	result := make([]Seed, 0, min(opts.K, g.N))
	chosen := make([]bool, g.N)
	for _, i := range order {
		if len(result) == opts.K {
			break
		}
		u := pool[i]
		chosen[u] = true
		result = append(result, Seed{
			Node:        u,
			AvgDistance: reaches[i].AvgDistance,
			Influence:   ip[u],
			Candidate:   true,
			Reach:       reaches[i].Size,
		})
	}
	stats.Chosen = len(result)

	if len(result) < opts.K {
		result = pad(g, ip, chosen, result, opts.K)
	}
	stats.Padded = len(result) - stats.Chosen
	stats.RuntimeMS = time.Since(startTime).Milliseconds()

	logger.Info().
		Int("k", opts.K).
		Int("candidates", stats.Candidates).
		Int("chosen", stats.Chosen).
		Int("padded", stats.Padded).
		Int64("runtime_ms", stats.RuntimeMS).
		Msg("Seed selection completed")

	return result, stats, nil
}

// Candidates runs the distance-decay test for every node in parallel.
func Candidates(ctx context.Context, g *graph.CSRGraph, ip []float64, threads int) ([]bool, error) {
	if len(ip) != g.N {
		return nil, fmt.Errorf("%w: %d scores for %d nodes", ErrInfluenceLength, len(ip), g.N)
	}
	isCand := make([]bool, g.N)
	err := forEachWithBFS(ctx, g, g.N, threads, func(b *bfs, u int) {
		isCand[u] = b.isCandidate(g, ip, u)
	})
	return isCand, err
}

// forEachWithBFS calls fn for every index in [0, n) on the thread pool,
// giving each chunk its own BFS scratch.
func forEachWithBFS(ctx context.Context, g *graph.CSRGraph, n, threads int, fn func(b *bfs, i int)) error {
	return workpool.ForRange(ctx, n, threads, func(_, lo, hi int) error {
		b := newBFS(g.N)
		for i := lo; i < hi; i++ {
			fn(b, i)
		}
		return nil
	})
}

type rankedNode struct {
	node      int
	influence float64
}

func byInfluence(a, b rankedNode) bool {
	if a.influence != b.influence {
		return a.influence > b.influence
	}
	return a.node < b.node
}

// pad appends unchosen nodes in descending influence order until result
// holds k entries or every node is used.
func pad(g *graph.CSRGraph, ip []float64, chosen []bool, result []Seed, k int) []Seed {
	index := btree.NewBTreeG[rankedNode](byInfluence)
	for u := 0; u < g.N; u++ {
		if !chosen[u] {
			index.Set(rankedNode{node: u, influence: ip[u]})
		}
	}

	b := newBFS(g.N)
	index.Scan(func(item rankedNode) bool {
		if len(result) >= k {
			return false
		}
		r := b.reach(g, item.node)
		result = append(result, Seed{
			Node:        item.node,
			AvgDistance: r.AvgDistance,
			Influence:   item.influence,
			Reach:       r.Size,
		})
		return true
	})
	return result
}
