// Package cluster runs a fixed set of cooperating workers (ranks) in SPMD
// style and gives them message-passing collectives: barrier, broadcast,
// scatter and all-reduce.
//
// Workers never share mutable state through the runtime. Every collective
// is a rendezvous: a worker blocks until all workers have arrived at the
// same collective, the last one to arrive combines the contributions in rank
// order, and every worker leaves with its own copy of the combined value.
// If any worker fails, the shared context is cancelled and every worker
// blocked in a collective returns the cancellation error, so one failure
// aborts the whole run.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CoordinatorRank is the rank elected to run the single-process stages.
const CoordinatorRank = 0

var (
	// ErrCollectiveMismatch is returned when workers enter different
	// collectives at the same step, which means the SPMD program diverged.
	ErrCollectiveMismatch = errors.New("collective mismatch")

	// ErrInvalidSize is returned for a non-positive worker count.
	ErrInvalidSize = errors.New("invalid cluster size")

	// ErrWorkerPanic wraps a panic recovered inside a worker.
	ErrWorkerPanic = errors.New("worker panicked")
)

// WorkerFunc is the program every rank executes.
type WorkerFunc func(ctx context.Context, comm *Comm) error

// Run starts size workers executing fn and waits for all of them. The first
// error returned by any worker cancels the others and is returned.
func Run(ctx context.Context, size int, fn WorkerFunc) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	w := newWorld(size)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		comm := &Comm{world: w, rank: rank}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: rank %d: %v", ErrWorkerPanic, comm.rank, r)
				}
			}()
			if err := fn(gctx, comm); err != nil {
				return fmt.Errorf("rank %d: %w", comm.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Comm is one worker's handle on the cluster.
type Comm struct {
	world *world
	rank  int
}

// Rank returns this worker's rank in [0, Size()).
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of workers.
func (c *Comm) Size() int { return c.world.size }

// IsCoordinator reports whether this worker is the elected coordinator.
func (c *Comm) IsCoordinator() bool { return c.rank == CoordinatorRank }

// Barrier blocks until every worker has reached it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.world.exchange(ctx, c.rank, "barrier", nil, func([]any) any { return nil })
	return err
}

// AllReduceSum replaces buf with the element-wise sum of every worker's buf.
// All workers must pass buffers of the same length.
func (c *Comm) AllReduceSum(ctx context.Context, buf []float64) error {
	out, err := c.world.exchange(ctx, c.rank, "allreduce-sum", buf, sumVectors)
	if err != nil {
		return err
	}
	sum, ok := out.([]float64)
	if !ok {
		return fmt.Errorf("%w: allreduce-sum: length disagreement across ranks", ErrCollectiveMismatch)
	}
	copy(buf, sum)
	return nil
}

// AllReduceScalar returns the sum of v over all workers.
func (c *Comm) AllReduceScalar(ctx context.Context, v float64) (float64, error) {
	out, err := c.world.exchange(ctx, c.rank, "allreduce-scalar", v, func(in []any) any {
		total := 0.0
		for _, x := range in {
			total += x.(float64)
		}
		return total
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}

// Broadcast returns root's value on every worker. Non-root workers pass
// their zero value. The payload is shared, not copied: receivers must
// treat it as read-only.
func Broadcast[T any](ctx context.Context, c *Comm, root int, v T) (T, error) {
	out, err := c.world.exchange(ctx, c.rank, "broadcast", v, func(in []any) any {
		return in[root]
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ = out.(T)
	return v, nil
}

// Scatter hands parts[r] from root to rank r. Only root's parts are read;
// root must supply exactly Size() parts.
func Scatter[T any](ctx context.Context, c *Comm, root int, parts []T) (T, error) {
	out, err := c.world.exchange(ctx, c.rank, "scatter", parts, func(in []any) any {
		return in[root]
	})
	var zero T
	if err != nil {
		return zero, err
	}
	all := out.([]T)
	if len(all) != c.Size() {
		return zero, fmt.Errorf("%w: scatter of %d parts to %d ranks", ErrCollectiveMismatch, len(all), c.Size())
	}
	return all[c.rank], nil
}

// world is the shared rendezvous state of one Run.
type world struct {
	size int

	mu  sync.Mutex
	cur *collective
}

type collective struct {
	op      string
	inputs  []any
	arrived int
	result  any
	err     error
	done    chan struct{}
}

func newWorld(size int) *world {
	return &world{size: size}
}

// exchange deposits in for rank and waits for the collective to complete.
// The last arriving rank runs combine over the inputs in rank order.
func (w *world) exchange(ctx context.Context, rank int, op string, in any, combine func([]any) any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.cur == nil {
		w.cur = &collective{
			op:     op,
			inputs: make([]any, w.size),
			done:   make(chan struct{}),
		}
	}
	c := w.cur
	if c.op != op {
		c.err = fmt.Errorf("%w: rank %d entered %q while %q is pending", ErrCollectiveMismatch, rank, op, c.op)
	}
	c.inputs[rank] = in
	c.arrived++
	if c.arrived == w.size {
		if c.err == nil {
			c.result = combine(c.inputs)
		}
		w.cur = nil
		close(c.done)
	}
	w.mu.Unlock()

	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sumVectors adds float64 slices element-wise. It returns nil when the
// lengths disagree so the caller can report the mismatch.
func sumVectors(in []any) any {
	first := in[0].([]float64)
	out := make([]float64, len(first))
	for _, x := range in {
		v := x.([]float64)
		if len(v) != len(out) {
			return nil
		}
		for i, f := range v {
			out[i] += f
		}
	}
	return out
}
