package partition

import (
	"context"
	"fmt"
	"slices"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/workpool"
)

// condense builds the component-level DAG. Each chunk of nodes collects the
// (source component, target component) pairs of its crossing edges locally;
// the pairs are then appended by a single writer in chunk order, and finally
// every component's successor list is sorted and deduplicated in parallel.
func condense(ctx context.Context, g *graph.CSRGraph, comp []int, numComp, threads int) ([][]int, error) {
	local := make([][][2]int, workpool.Chunks(g.N, threads))

	err := workpool.ForRange(ctx, g.N, threads, func(w, lo, hi int) error {
		var pairs [][2]int
		for u := lo; u < hi; u++ {
			cu := comp[u]
			for _, e := range g.OutEdges(u) {
				if cv := comp[e.Dst]; cv != cu {
					pairs = append(pairs, [2]int{cu, cv})
				}
			}
		}
		local[w] = pairs
		return nil
	})
	if err != nil {
		return nil, err
	}

	dag := make([][]int, numComp)
	for _, pairs := range local {
		for _, p := range pairs {
			dag[p[0]] = append(dag[p[0]], p[1])
		}
	}

	err = workpool.ForRange(ctx, numComp, threads, func(_, lo, hi int) error {
		for c := lo; c < hi; c++ {
			slices.Sort(dag[c])
			dag[c] = slices.Compact(dag[c])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dag, nil
}

// levelize runs Kahn's algorithm over dag and returns each component's
// level: sources are level 0 and every edge s -> t forces
// level[t] >= level[s]+1.
func levelize(dag [][]int) ([]int, error) {
	numComp := len(dag)
	indeg := make([]int, numComp)
	for _, succ := range dag {
		for _, t := range succ {
			indeg[t]++
		}
	}

	level := make([]int, numComp)
	queue := make([]int, 0, numComp)
	for c := 0; c < numComp; c++ {
		if indeg[c] == 0 {
			queue = append(queue, c)
		}
	}

	for head := 0; head < len(queue); head++ {
		s := queue[head]
		for _, t := range dag[s] {
			level[t] = max(level[t], level[s]+1)
			indeg[t]--
			if indeg[t] == 0 {
				queue = append(queue, t)
			}
		}
	}

	if len(queue) < numComp {
		return nil, fmt.Errorf("%w: %d of %d components never reached in-degree 0",
			ErrCyclicCondensation, numComp-len(queue), numComp)
	}
	return level, nil
}
