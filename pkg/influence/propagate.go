package influence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/influence-seeding/pkg/cluster"
	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/workpool"
)

// Stats describes one propagation run.
type Stats struct {
	Mode            Mode    `json:"mode" yaml:"mode"`
	Iterations      int     `json:"iterations" yaml:"iterations"`
	LevelIterations []int   `json:"level_iterations,omitempty" yaml:"level_iterations,omitempty"`
	Converged       bool    `json:"converged" yaml:"converged"`
	FinalDiff       float64 `json:"final_diff" yaml:"final_diff"`
	RuntimeMS       int64   `json:"runtime_ms" yaml:"runtime_ms"`
}

// Propagator runs influence propagation on one worker. Every worker of a
// cluster builds its own Propagator over the same read-only graph.
type Propagator struct {
	g      *graph.CSRGraph
	psiOut []float64
	opts   Options
	logger zerolog.Logger
}

// NewPropagator returns a Propagator over g. psiOut is the result of
// ComputeWeights and is only read by RunLeveled.
func NewPropagator(g *graph.CSRGraph, psiOut []float64, opts Options, logger zerolog.Logger) *Propagator {
	return &Propagator{g: g, psiOut: psiOut, opts: opts, logger: logger}
}

// RunLeveled computes the weighted influence vector level by level.
//
// For every node u of a level, starting from IP = 1/n everywhere:
//
//	IP'[u] = tele(u) + d * sum over in-edges e=(s,u) of e.Psi*IP[s]/(psi_out[s]+eps)
//	tele(u) = (1-d)/inDeg(u), or 0 when u has no in-edges
//
// spans[l] is the part of level l this worker owns. Each level is iterated
// with double buffering until the L1 change summed over all workers drops
// below the tolerance or the iteration cap is hit. The level's values are
// then all-reduced so every worker holds the same vector before the next
// level starts. The returned vector is identical on every worker.
func (p *Propagator) RunLeveled(ctx context.Context, comm *cluster.Comm, sched *Schedule, spans []Span) ([]float64, Stats, error) {
	startTime := time.Now()
	stats := Stats{Mode: ModeLeveled, Converged: true, LevelIterations: make([]int, len(sched.Levels))}

	if sched.N != p.g.N {
		return nil, stats, fmt.Errorf("%w: schedule for %d nodes, graph has %d", ErrScheduleMismatch, sched.N, p.g.N)
	}
	if len(p.psiOut) != p.g.N {
		return nil, stats, fmt.Errorf("%w: %d psi_out entries for %d nodes", ErrScheduleMismatch, len(p.psiOut), p.g.N)
	}
	if err := sched.checkSpans(spans); err != nil {
		return nil, stats, err
	}

	n := p.g.N
	ip := make([]float64, n)
	if n == 0 {
		return ip, stats, nil
	}
	for u := range ip {
		ip[u] = 1 / float64(n)
	}

	d := p.opts.Damping
	for l, lp := range sched.Levels {
		owned := lp.Nodes[spans[l].Lo:spans[l].Hi]
		cur := make([]float64, len(owned))
		next := make([]float64, len(owned))
		for i, u := range owned {
			cur[i] = ip[u]
		}

		converged := false
		diff := 0.0
		for it := 0; it < p.opts.MaxIterations; it++ {
			err := workpool.ForRange(ctx, len(owned), p.opts.Threads, func(_, lo, hi int) error {
				for i := lo; i < hi; i++ {
					next[i] = p.update(owned[i], ip, d)
				}
				return nil
			})
			if err != nil {
				return nil, stats, err
			}

			local := floats.Distance(next, cur, 1)
			copy(cur, next)
			for i, u := range owned {
				ip[u] = cur[i]
			}

			diff, err = comm.AllReduceScalar(ctx, local)
			if err != nil {
				return nil, stats, err
			}
			stats.LevelIterations[l]++
			if diff < p.opts.Tolerance {
				converged = true
				break
			}
		}
		stats.Iterations += stats.LevelIterations[l]
		stats.FinalDiff = diff
		if !converged {
			stats.Converged = false
			p.logger.Warn().
				Int("level", l).
				Int("iterations", stats.LevelIterations[l]).
				Float64("diff", diff).
				Msg("Level did not converge within iteration cap")
		}

		buf := make([]float64, len(lp.Nodes))
		for i := spans[l].Lo; i < spans[l].Hi; i++ {
			buf[i] = ip[lp.Nodes[i]]
		}
		if err := comm.AllReduceSum(ctx, buf); err != nil {
			return nil, stats, err
		}
		for i, u := range lp.Nodes {
			ip[u] = buf[i]
		}

		p.logger.Debug().
			Int("level", l).
			Int("nodes", len(lp.Nodes)).
			Int("owned", len(owned)).
			Int("iterations", stats.LevelIterations[l]).
			Msg("Level synchronized")
	}

	stats.RuntimeMS = time.Since(startTime).Milliseconds()
	return ip, stats, nil
}

// update evaluates one node's next value from the current vector.
func (p *Propagator) update(u int, ip []float64, d float64) float64 {
	in := p.g.InEdgeIDs(u)
	if len(in) == 0 {
		return 0
	}
	sum := 0.0
	for _, id := range in {
		e := &p.g.Edges[id]
		sum += e.Psi * ip[e.Src] / (p.psiOut[e.Src] + p.opts.Epsilon)
	}
	return (1-d)/float64(len(in)) + d*sum
}

// RunFlat computes personalized PageRank, ignoring edge weights. Nodes are
// split in contiguous blocks across workers; each worker pulls
// d*IP[s]/outDeg(s) over the in-edges of the nodes it owns, in edge order,
// and the partial vectors are all-reduced every iteration. Mass of dangling
// nodes is redistributed along the personalization vector, so the result
// sums to 1. Every node's value is summed by exactly one goroutine in a
// fixed order, so the result is bitwise identical for any worker and thread
// count.
func (p *Propagator) RunFlat(ctx context.Context, comm *cluster.Comm, personalization []float64) ([]float64, Stats, error) {
	startTime := time.Now()
	stats := Stats{Mode: ModeFlat}

	n := p.g.N
	if len(personalization) != n {
		return nil, stats, fmt.Errorf("%w: personalization has %d entries for %d nodes", ErrScheduleMismatch, len(personalization), n)
	}
	ip := make([]float64, n)
	if n == 0 {
		stats.Converged = true
		return ip, stats, nil
	}
	for u := range ip {
		ip[u] = 1 / float64(n)
	}

	lo, hi := blockRange(n, comm.Size(), comm.Rank())
	d := p.opts.Damping
	var danglingNodes []int
	for u := 0; u < n; u++ {
		if p.g.OutDegree(u) == 0 {
			danglingNodes = append(danglingNodes, u)
		}
	}
	buf := make([]float64, n)
	next := make([]float64, n)

	for it := 0; it < p.opts.MaxIterations; it++ {
		clear(buf)
		err := workpool.ForRange(ctx, hi-lo, p.opts.Threads, func(_, a, b int) error {
			for v := lo + a; v < lo+b; v++ {
				sum := 0.0
				for _, id := range p.g.InEdgeIDs(v) {
					s := p.g.Edges[id].Src
					sum += ip[s] / float64(p.g.OutDegree(s))
				}
				buf[v] = d * sum
			}
			return nil
		})
		if err != nil {
			return nil, stats, err
		}
		// Non-owners contribute exact zeros, so the reduction copies each
		// owned value unchanged.
		if err := comm.AllReduceSum(ctx, buf); err != nil {
			return nil, stats, err
		}

		// Every worker holds the full vector, so the dangling mass is summed
		// locally in node order.
		dangling := 0.0
		for _, u := range danglingNodes {
			dangling += ip[u]
		}
		base := (1 - d) + d*dangling
		for v := 0; v < n; v++ {
			next[v] = buf[v] + base*personalization[v]
		}
		diff := floats.Distance(next, ip, 1)
		ip, next = next, ip
		stats.Iterations++
		stats.FinalDiff = diff
		if diff < p.opts.Tolerance {
			stats.Converged = true
			break
		}
	}

	if !stats.Converged {
		p.logger.Warn().
			Int("iterations", stats.Iterations).
			Float64("diff", stats.FinalDiff).
			Msg("Flat propagation did not converge within iteration cap")
	}
	stats.RuntimeMS = time.Since(startTime).Milliseconds()
	return ip, stats, nil
}

// Personalization returns the interest row sums normalized to 1, or the
// uniform vector when every row is zero.
func Personalization(interests *graph.InterestMatrix) []float64 {
	n := interests.N()
	pers := make([]float64, n)
	if n == 0 {
		return pers
	}
	for u := 0; u < n; u++ {
		pers[u] = float64(interests.RowSum(u))
	}
	total := floats.Sum(pers)
	if total == 0 {
		for u := range pers {
			pers[u] = 1 / float64(n)
		}
		return pers
	}
	floats.Scale(1/total, pers)
	return pers
}

// blockRange returns the contiguous block of [0, n) owned by rank.
func blockRange(n, size, rank int) (int, int) {
	chunk := (n + size - 1) / size
	lo := min(rank*chunk, n)
	hi := min(lo+chunk, n)
	return lo, hi
}
