package seeds

import "github.com/gilchrisn/influence-seeding/pkg/graph"

// bfs is a reusable breadth-first search over forward adjacency. One bfs is
// owned by one goroutine; reset touches only the nodes of the last search.
type bfs struct {
	dist  []int
	queue []int
}

func newBFS(n int) *bfs {
	b := &bfs{dist: make([]int, n)}
	for i := range b.dist {
		b.dist[i] = -1
	}
	return b
}

// run searches from src and returns the reached nodes in BFS order, src
// first, so distances along the result never decrease. The result is valid
// until the next reset.
func (b *bfs) run(g *graph.CSRGraph, src int) []int {
	b.dist[src] = 0
	b.queue = append(b.queue[:0], src)
	for head := 0; head < len(b.queue); head++ {
		u := b.queue[head]
		for _, e := range g.OutEdges(u) {
			if b.dist[e.Dst] < 0 {
				b.dist[e.Dst] = b.dist[u] + 1
				b.queue = append(b.queue, e.Dst)
			}
		}
	}
	return b.queue
}

func (b *bfs) reset() {
	for _, v := range b.queue {
		b.dist[v] = -1
	}
	b.queue = b.queue[:0]
}

// Reach is the forward reachability of a node, excluding the node itself.
type Reach struct {
	Size        int
	AvgDistance float64
}

// reach runs a search from u and returns the size of its reachable set and
// the mean hop distance to it (0 when nothing is reachable).
func (b *bfs) reach(g *graph.CSRGraph, u int) Reach {
	defer b.reset()
	order := b.run(g, u)
	if len(order) <= 1 {
		return Reach{}
	}
	sum := 0
	for _, v := range order[1:] {
		sum += b.dist[v]
	}
	size := len(order) - 1
	return Reach{Size: size, AvgDistance: float64(sum) / float64(size)}
}

// isCandidate applies the distance-decay test to u: with mean[L] the mean
// influence of nodes exactly L hops away, find the first L0 >= 1 where
// mean[L0] > mean[L0+1]; u is a candidate iff such a layer exists and
// ip[u] > mean[L0]. Nodes without out-edges never qualify.
func (b *bfs) isCandidate(g *graph.CSRGraph, ip []float64, u int) bool {
	if g.OutDegree(u) == 0 {
		return false
	}
	defer b.reset()
	order := b.run(g, u)
	maxD := b.dist[order[len(order)-1]]
	if maxD < 2 {
		return false
	}

	sum := make([]float64, maxD+1)
	cnt := make([]int, maxD+1)
	for _, v := range order[1:] {
		d := b.dist[v]
		sum[d] += ip[v]
		cnt[d]++
	}
	mean := func(d int) float64 { return sum[d] / float64(cnt[d]) }

	for d := 1; d < maxD; d++ {
		if mean(d) > mean(d+1) {
			return ip[u] > mean(d)
		}
	}
	return false
}
