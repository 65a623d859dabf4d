package batch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/batch"
)

func TestChunk(t *testing.T) {
	type testCase struct {
		name  string
		items []int
		size  int
		want  [][]int
	}

	tests := []testCase{
		{name: "Even", items: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "Remainder", items: []int{1, 2, 3}, size: 2, want: [][]int{{1, 2}, {3}}},
		{name: "Empty", items: nil, size: 3, want: nil},
		{name: "NonPositiveSize", items: []int{1, 2}, size: 0, want: [][]int{{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batch.Chunk(tt.items, tt.size))
		})
	}
}

func TestRun_ProcessesEveryItemWithinLimit(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	var (
		mu       sync.Mutex
		seen     = map[int]bool{}
		inFlight atomic.Int32
		peak     atomic.Int32
		batches  []int
	)

	err := batch.Run(context.Background(), items, batch.Options{
		Size:        10,
		Concurrency: 2,
		OnBatch:     func(cur, _ int) { batches = append(batches, cur) },
	}, func(_ context.Context, item int) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		mu.Lock()
		seen[item] = true
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, 25)
	assert.Equal(t, []int{1, 2, 3}, batches)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	var processed atomic.Int32

	err := batch.Run(context.Background(), []int{1, 2, 3, 4}, batch.Options{
		Size:      2,
		Cancelled: func() bool { return processed.Load() >= 2 },
	}, func(context.Context, int) error {
		processed.Add(1)
		return nil
	})

	assert.ErrorIs(t, err, batch.ErrCancelled)
	assert.Equal(t, int32(2), processed.Load())
}

func TestRun_ReturnsItemError(t *testing.T) {
	boom := errors.New("store unavailable")

	err := batch.Run(context.Background(), []int{1, 2, 3}, batch.Options{Size: 1}, func(_ context.Context, item int) error {
		if item == 2 {
			return boom
		}

		return nil
	})

	assert.ErrorIs(t, err, boom)
}

func TestChunks_OneCallPerBatch(t *testing.T) {
	var sizes []int

	err := batch.Chunks(context.Background(), []string{"a", "b", "c", "d", "e"}, batch.Options{Size: 2}, func(_ context.Context, chunk []string) error {
		sizes = append(sizes, len(chunk))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, sizes)
}
