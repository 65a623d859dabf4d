// Package batch processes work in sequential chunks with bounded
// concurrency inside each chunk.
package batch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrCancelled = errors.New("batch: cancelled")

type Options struct {
	Size        int
	Concurrency int
	Delay       time.Duration

	// Cancelled is polled before every batch.
	Cancelled func() bool
	// OnBatch is called before batch current (1-based) of total starts.
	OnBatch func(current, total int)
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = 10
	}

	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}

	return o
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}

	var out [][]T

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}

	return out
}

// Run calls fn for every item. Batches run one after another; items within a
// batch run on at most Concurrency goroutines. fn reports per-item failures
// through its own result collection: a non-nil return aborts the run.
func Run[T any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) error) error {
	opts = opts.withDefaults()

	return Chunks(ctx, items, opts, func(ctx context.Context, chunk []T) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)

		for _, item := range chunk {
			g.Go(func() error { return fn(gctx, item) })
		}

		return g.Wait()
	})
}

// Chunks calls fn once per batch, sequentially, for callers that work on a
// whole batch at a time (one aggregate query per batch).
func Chunks[T any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, chunk []T) error) error {
	opts = opts.withDefaults()
	chunks := Chunk(items, opts.Size)

	for i, chunk := range chunks {
		if opts.Cancelled != nil && opts.Cancelled() {
			return ErrCancelled
		}

		if i > 0 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Delay):
			}
		}

		if opts.OnBatch != nil {
			opts.OnBatch(i+1, len(chunks))
		}

		if err := fn(ctx, chunk); err != nil {
			return err
		}
	}

	return nil
}
