package propagation

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
)

// DefaultParallelThreshold is the batch size below which Run stays on the
// calling goroutine.
const DefaultParallelThreshold = 512

// chunkJob is a unit of work for the worker pool: the index range [lo, hi).
type chunkJob struct {
	lo, hi int
}

// WorkerPool fans independent per-object work out over a fixed number of
// goroutines. Each index is handed to exactly one worker.
type WorkerPool struct {
	workers   int
	threshold int
	logger    *slog.Logger
}

// NewWorkerPool creates a worker pool. Zero values in cfg select defaults.
func NewWorkerPool(cfg Config, logger *slog.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = DefaultParallelThreshold
	}
	return &WorkerPool{
		workers:   cfg.Workers,
		threshold: cfg.ParallelThreshold,
		logger:    logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Run calls fn over [0, n) split into contiguous chunks. fn must only touch
// state owned by its indices. Run returns once every dispatched chunk has
// finished, with ctx.Err() if cancellation stopped dispatch early.
func (wp *WorkerPool) Run(ctx context.Context, n int, fn func(lo, hi int)) error {
	if n <= 0 {
		return ctx.Err()
	}
	if n < wp.threshold || wp.workers == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(0, n)
		return nil
	}

	// Four chunks per worker keeps the tail short when chunks are uneven.
	chunk := (n + wp.workers*4 - 1) / (wp.workers * 4)
	jobs := make(chan chunkJob, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				fn(job.lo, job.hi)
			}
		}()
	}

	var err error
feed:
	for lo := 0; lo < n; lo += chunk {
		if err = ctx.Err(); err != nil {
			break
		}
		hi := min(lo+chunk, n)
		select {
		case jobs <- chunkJob{lo: lo, hi: hi}:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		wp.logger.Debug("worker pool run cancelled", "objects", n, "error", err)
	}
	return err
}
