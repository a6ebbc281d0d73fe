package propagation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestWorkerPoolVisitsEveryIndexOnce checks that chunks cover [0, n) exactly.
func TestWorkerPoolVisitsEveryIndexOnce(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"inline below threshold", 4, 10},
		{"parallel", 4, 10000},
		{"uneven chunks", 3, 1001},
		{"single worker", 1, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(Config{Workers: tt.workers, ParallelThreshold: 100}, testLogger())
			counts := make([]int32, tt.n)

			err := pool.Run(context.Background(), tt.n, func(lo, hi int) {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&counts[i], 1)
				}
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			for i, c := range counts {
				if c != 1 {
					t.Fatalf("index %d visited %d times", i, c)
				}
			}
		})
	}
}

func TestWorkerPoolDefaults(t *testing.T) {
	pool := NewWorkerPool(Config{}, testLogger())
	if pool.Workers() < 1 {
		t.Errorf("Workers() = %d, want >= 1", pool.Workers())
	}
	if pool.threshold != DefaultParallelThreshold {
		t.Errorf("threshold = %d, want %d", pool.threshold, DefaultParallelThreshold)
	}
}

// TestWorkerPoolCancellation verifies the pool stops dispatching on a
// cancelled context.
func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(Config{Workers: 2, ParallelThreshold: 1}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var visited atomic.Int64
	err := pool.Run(ctx, 100000, func(lo, hi int) {
		visited.Add(int64(hi - lo))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if visited.Load() >= 100000 {
		t.Errorf("expected fewer visits with cancelled context, got %d", visited.Load())
	}
}

func TestWorkerPoolEmpty(t *testing.T) {
	pool := NewWorkerPool(Config{Workers: 2}, testLogger())
	called := false
	if err := pool.Run(context.Background(), 0, func(lo, hi int) { called = true }); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("fn called for empty batch")
	}
}
