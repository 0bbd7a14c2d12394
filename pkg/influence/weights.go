// Package influence computes per-edge affinity weights and propagates
// influence scores over the graph, either level by level along the
// partition's condensation order or as a flat personalized PageRank.
package influence

import (
	"context"
	"fmt"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/workpool"
)

// ActionWeights weighs the like, share and comment counts of an edge.
var ActionWeights = [graph.NumActions]float64{0.2, 0.5, 0.3}

// ActionScore is the weighted sum of an edge's interaction counts.
func ActionScore(counts [graph.NumActions]int) float64 {
	score := 0.0
	for a, c := range counts {
		score += ActionWeights[a] * float64(c)
	}
	return score
}

// Jaccard returns |{i: a[i]!=0 && b[i]!=0}| / |{i: a[i]!=0 || b[i]!=0}|, or
// 0 when both vectors are entirely zero.
func Jaccard(a, b []int) float64 {
	inter, union := 0, 0
	for i := range a {
		x, y := a[i] != 0, b[i] != 0
		if x && y {
			inter++
		}
		if x || y {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// ComputeWeights sets Psi on every edge of g and returns psi_out, the total
// outgoing weight of each node:
//
//	psi(u->v) = ActionScore(u->v) * Jaccard(I[u], I[v]) / total_u
//
// where total_u sums every interaction count over u's out-edges. Psi is 0
// when total_u is 0. Each thread writes only the edges of its own sources.
func ComputeWeights(ctx context.Context, g *graph.CSRGraph, interests *graph.InterestMatrix, threads int) ([]float64, error) {
	if interests.N() != g.N {
		return nil, fmt.Errorf("%w: %d interest rows for %d nodes", graph.ErrInterestDimension, interests.N(), g.N)
	}

	psiOut := make([]float64, g.N)
	err := workpool.ForRange(ctx, g.N, threads, func(_, lo, hi int) error {
		for u := lo; u < hi; u++ {
			edges := g.OutEdges(u)
			total := 0
			for _, e := range edges {
				for _, c := range e.Counts {
					total += c
				}
			}

			sum := 0.0
			for i := range edges {
				e := &edges[i]
				e.Psi = 0
				if total > 0 {
					c := Jaccard(interests.Row(u), interests.Row(e.Dst))
					e.Psi = ActionScore(e.Counts) * c / float64(total)
				}
				sum += e.Psi
			}
			psiOut[u] = sum
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return psiOut, nil
}
