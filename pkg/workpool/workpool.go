// Package workpool provides the fork/join thread pool used inside a single
// worker: static contiguous chunking of per-node loops with a join point.
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Threads normalizes a requested thread count. Non-positive values mean
// "one per CPU".
func Threads(requested int) int {
	if requested <= 0 {
		return runtime.NumCPU()
	}
	return requested
}

// ForRange splits [0, n) into at most threads contiguous chunks and runs fn
// on each chunk concurrently. worker is the chunk index, so callers can keep
// per-worker scratch buffers indexed by it. Chunks never overlap, which makes
// writes to per-index slots inside fn race free.
//
// ForRange returns after every chunk has finished (the join point) with the
// first error any chunk returned.
func ForRange(ctx context.Context, n, threads int, fn func(worker, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	threads = Threads(threads)
	if threads > n {
		threads = n
	}
	if threads == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(0, 0, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	chunk := (n + threads - 1) / threads
	for w := 0; w < threads; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		worker := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(worker, lo, hi)
		})
	}
	return g.Wait()
}

// Chunks reports how many chunks ForRange will use for n items, so callers
// can size per-worker buffers up front.
func Chunks(n, threads int) int {
	threads = Threads(threads)
	if n <= 0 {
		return 0
	}
	if threads > n {
		return n
	}
	chunk := (n + threads - 1) / threads
	return (n + chunk - 1) / chunk
}
