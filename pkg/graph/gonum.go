package graph

import (
	"gonum.org/v1/gonum/graph/simple"
)

// ToGonum copies the topology into a gonum directed graph with node ids
// 0..N-1. Parallel edges collapse into one and self-loops are dropped, since
// simple.DirectedGraph supports neither; reachability is unchanged.
func (g *CSRGraph) ToGonum() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for u := 0; u < g.N; u++ {
		dg.AddNode(simple.Node(u))
	}
	for _, e := range g.Edges {
		if e.Src == e.Dst {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(e.Src), simple.Node(e.Dst)))
	}
	return dg
}
