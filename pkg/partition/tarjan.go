package partition

import (
	"context"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
)

// frame is one entry of the explicit DFS call stack: the node being visited
// and the next out-edge (absolute edge index) to examine.
type frame struct {
	node int
	next int
}

// tarjan labels every node with its strongly connected component. Components
// are numbered in the order they complete, which matches the recursive
// formulation visiting roots and out-edges in ascending order.
func tarjan(ctx context.Context, g *graph.CSRGraph) ([]int, int, error) {
	n := g.N
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	comp := make([]int, n)
	for u := range index {
		index[u] = Unset
		comp[u] = Unset
	}

	var (
		stack   []int
		call    []frame
		counter int
		numComp int
	)

	visit := func(u int) {
		index[u] = counter
		low[u] = counter
		counter++
		stack = append(stack, u)
		onStack[u] = true
		call = append(call, frame{node: u, next: g.Offsets[u]})
	}

	for root := 0; root < n; root++ {
		if index[root] != Unset {
			continue
		}
		if root%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}

		visit(root)
		for len(call) > 0 {
			top := len(call) - 1
			u := call[top].node

			if call[top].next < g.Offsets[u+1] {
				v := g.Edges[call[top].next].Dst
				call[top].next++
				if index[v] == Unset {
					visit(v)
				} else if onStack[v] {
					low[u] = min(low[u], index[v])
				}
				continue
			}

			if low[u] == index[u] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = numComp
					if w == u {
						break
					}
				}
				numComp++
			}

			call = call[:top]
			if top > 0 {
				parent := call[top-1].node
				low[parent] = min(low[parent], low[u])
			}
		}
	}
	return comp, numComp, nil
}
