// Package partition decomposes a directed graph into strongly connected
// components, builds the condensation DAG over them and assigns every
// component a topological level.
package partition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
)

// Unset marks an SCC or CAC slot that does not apply to a node.
const Unset = -1

var (
	// ErrCyclicCondensation means Kahn's algorithm could not order every
	// component, so the component labelling is inconsistent.
	ErrCyclicCondensation = errors.New("condensation graph is not acyclic")

	// ErrInvariant reports a partition that fails Verify.
	ErrInvariant = errors.New("partition invariant violated")
)

// Options controls the parallel parts of Compute.
type Options struct {
	Threads int
}

// Result is the partition of one graph.
//
// Component ids are assigned in Tarjan completion order. SCC holds the id for
// nodes in components of size > 1 and CACID for singleton components; the
// other slot is Unset.
type Result struct {
	SCC       []int `json:"-"`
	CACID     []int `json:"-"`
	Component []int `json:"-"`
	Level     []int `json:"-"`

	ComponentLevel []int   `json:"-"`
	Members        [][]int `json:"-"` // node ids per component, ascending
	DAG            [][]int `json:"-"` // sorted, deduplicated successors per component

	NumComponents int        `json:"num_components"`
	MaxLevel      int        `json:"max_level"`
	Statistics    Statistics `json:"statistics"`
}

// Statistics summarizes a partition run.
type Statistics struct {
	Nodes         int   `json:"nodes"`
	Edges         int   `json:"edges"`
	NumSCC        int   `json:"num_scc"`
	NumSingletons int   `json:"num_singletons"`
	LargestSCC    int   `json:"largest_scc"`
	DAGEdges      int   `json:"dag_edges"`
	RuntimeMS     int64 `json:"runtime_ms"`
}

// NumLevels returns the number of distinct topological levels.
func (r *Result) NumLevels() int { return r.MaxLevel + 1 }

// Compute partitions g. The graph must already satisfy graph.Validate.
func Compute(ctx context.Context, g *graph.CSRGraph, opts Options, logger zerolog.Logger) (*Result, error) {
	startTime := time.Now()

	comp, numComp, err := tarjan(ctx, g)
	if err != nil {
		return nil, err
	}

	r := &Result{
		SCC:           make([]int, g.N),
		CACID:         make([]int, g.N),
		Component:     comp,
		Level:         make([]int, g.N),
		Members:       make([][]int, numComp),
		NumComponents: numComp,
		MaxLevel:      -1,
	}
	for u := 0; u < g.N; u++ {
		r.Members[comp[u]] = append(r.Members[comp[u]], u)
	}
	for u := 0; u < g.N; u++ {
		c := comp[u]
		if len(r.Members[c]) > 1 {
			r.SCC[u] = c
			r.CACID[u] = Unset
		} else {
			r.SCC[u] = Unset
			r.CACID[u] = c
		}
	}

	r.DAG, err = condense(ctx, g, comp, numComp, opts.Threads)
	if err != nil {
		return nil, err
	}

	r.ComponentLevel, err = levelize(r.DAG)
	if err != nil {
		return nil, err
	}
	for u := 0; u < g.N; u++ {
		r.Level[u] = r.ComponentLevel[comp[u]]
	}
	for _, l := range r.ComponentLevel {
		r.MaxLevel = max(r.MaxLevel, l)
	}

	r.Statistics = Statistics{Nodes: g.N, Edges: g.NumEdges()}
	for _, m := range r.Members {
		if len(m) > 1 {
			r.Statistics.NumSCC++
			r.Statistics.LargestSCC = max(r.Statistics.LargestSCC, len(m))
		} else {
			r.Statistics.NumSingletons++
		}
	}
	for _, succ := range r.DAG {
		r.Statistics.DAGEdges += len(succ)
	}
	r.Statistics.RuntimeMS = time.Since(startTime).Milliseconds()

	logger.Info().
		Int("nodes", g.N).
		Int("components", numComp).
		Int("scc", r.Statistics.NumSCC).
		Int("singletons", r.Statistics.NumSingletons).
		Int("dag_edges", r.Statistics.DAGEdges).
		Int("max_level", r.MaxLevel).
		Int64("runtime_ms", r.Statistics.RuntimeMS).
		Msg("Partition completed")

	return r, nil
}

// Verify checks the partition against g: every node carries exactly one of
// SCC/CACID, members of a component share a level, and every edge crossing
// components is a DAG edge going at least one level down.
func (r *Result) Verify(g *graph.CSRGraph) error {
	if len(r.Component) != g.N || len(r.Level) != g.N || len(r.SCC) != g.N || len(r.CACID) != g.N {
		return fmt.Errorf("%w: label arrays do not cover %d nodes", ErrInvariant, g.N)
	}
	for u := 0; u < g.N; u++ {
		c := r.Component[u]
		if c < 0 || c >= r.NumComponents {
			return fmt.Errorf("%w: node %d has component %d", ErrInvariant, u, c)
		}
		if (r.SCC[u] == Unset) == (r.CACID[u] == Unset) {
			return fmt.Errorf("%w: node %d has scc=%d cac_id=%d", ErrInvariant, u, r.SCC[u], r.CACID[u])
		}
		if r.Level[u] != r.ComponentLevel[c] {
			return fmt.Errorf("%w: node %d level %d, component %d level %d",
				ErrInvariant, u, r.Level[u], c, r.ComponentLevel[c])
		}
	}

	for _, e := range g.Edges {
		cu, cv := r.Component[e.Src], r.Component[e.Dst]
		if cu == cv {
			continue
		}
		if r.ComponentLevel[cv] < r.ComponentLevel[cu]+1 {
			return fmt.Errorf("%w: edge %d -> %d goes from level %d to %d",
				ErrInvariant, e.Src, e.Dst, r.ComponentLevel[cu], r.ComponentLevel[cv])
		}
		if _, ok := slices.BinarySearch(r.DAG[cu], cv); !ok {
			return fmt.Errorf("%w: condensation edge %d -> %d missing", ErrInvariant, cu, cv)
		}
	}
	return nil
}
