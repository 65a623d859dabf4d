package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newManager(t *testing.T, maxEntries int) (*cache.Manager, *clock) {
	t.Helper()

	clk := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}

	m, err := cache.New(cache.Options{TTL: time.Minute, MaxEntries: maxEntries, Now: clk.Now})
	require.NoError(t, err)

	return m, clk
}

func TestManager_SetGet(t *testing.T) {
	m, _ := newManager(t, 10)

	m.Set("a", 42, cache.SetOptions{})

	got, ok := cache.Lookup[int](m, "a")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	_, ok = cache.Lookup[string](m, "a")
	assert.False(t, ok, "wrong type is a miss")
}

func TestManager_ExpiresLazily(t *testing.T) {
	m, clk := newManager(t, 10)

	m.Set("short", "v", cache.SetOptions{TTL: time.Second})
	m.Set("default", "v", cache.SetOptions{})

	clk.Advance(2 * time.Second)

	_, ok := m.Get("short")
	assert.False(t, ok)

	_, ok = m.Get("default")
	assert.True(t, ok)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Equal(t, 1, stats.Entries)
}

func TestManager_Sweep(t *testing.T) {
	m, clk := newManager(t, 10)

	m.Set("a", 1, cache.SetOptions{})
	m.Set("b", 2, cache.SetOptions{TTL: time.Hour})

	clk.Advance(2 * time.Minute)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Stats().Entries)
}

func TestManager_InvalidateCascadesOneLevel(t *testing.T) {
	m, _ := newManager(t, 10)

	m.Set("root", 1, cache.SetOptions{})
	m.Set("child", 2, cache.SetOptions{Dependencies: []string{"root"}})
	m.Set("grandchild", 3, cache.SetOptions{Dependencies: []string{"child"}})
	m.Set("unrelated", 4, cache.SetOptions{})

	m.Invalidate("root")

	_, ok := m.Get("root")
	assert.False(t, ok)

	_, ok = m.Get("child")
	assert.False(t, ok)

	_, ok = m.Get("grandchild")
	assert.True(t, ok, "cascade stops after one level")

	_, ok = m.Get("unrelated")
	assert.True(t, ok)
}

func TestManager_InvalidateIsIdempotent(t *testing.T) {
	m, _ := newManager(t, 10)

	m.Set("root", 1, cache.SetOptions{})
	m.Set("child", 2, cache.SetOptions{Dependencies: []string{"root"}})

	m.Invalidate("root")
	first := m.Stats()

	m.Invalidate("root")
	m.Invalidate("never-set")
	second := m.Stats()

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Invalidations, second.Invalidations)
}

func TestManager_ResetReplacesDependencies(t *testing.T) {
	m, _ := newManager(t, 10)

	m.Set("child", 1, cache.SetOptions{Dependencies: []string{"old"}})
	m.Set("child", 2, cache.SetOptions{Dependencies: []string{"new"}})

	m.Invalidate("old")

	got, ok := cache.Lookup[int](m, "child")
	require.True(t, ok)
	assert.Equal(t, 2, got)

	m.Invalidate("new")

	_, ok = m.Get("child")
	assert.False(t, ok)
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m, _ := newManager(t, 2)

	m.Set("a", 1, cache.SetOptions{})
	m.Set("b", 2, cache.SetOptions{})
	m.Get("a")
	m.Set("c", 3, cache.SetOptions{})

	_, ok := m.Get("b")
	assert.False(t, ok)

	_, ok = m.Get("a")
	assert.True(t, ok)

	assert.Equal(t, int64(1), m.Stats().Evictions)
}

func TestManager_StartStop(t *testing.T) {
	m, err := cache.New(cache.Options{TTL: time.Millisecond, MaxEntries: 10, SweepInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	m.Set("a", 1, cache.SetOptions{})

	m.Start(context.Background())
	m.Start(context.Background())

	assert.Eventually(t, func() bool { return m.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestRepresentativeKeys(t *testing.T) {
	id := uuid.MustParse("7f1f8a52-4a43-4b2c-9f7d-3c3a4c1b2d10")

	keys := cache.RepresentativeKeys(id)
	assert.Contains(t, keys, "rep:7f1f8a52-4a43-4b2c-9f7d-3c3a4c1b2d10:debt")
	assert.Len(t, keys, 3)
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	_, err := cache.New(cache.Options{MaxEntries: 0})
	assert.Error(t, err)
}

func TestManager_SetIfCurrent(t *testing.T) {
	type testCase struct {
		name       string
		between    func(m *cache.Manager)
		wantStored bool
	}

	tests := []testCase{
		{name: "Unchanged", between: func(*cache.Manager) {}, wantStored: true},
		{name: "KeyInvalidated", between: func(m *cache.Manager) { m.Invalidate("child") }},
		{name: "DependencyInvalidated", between: func(m *cache.Manager) { m.Invalidate("root") }},
		{name: "UnrelatedInvalidated", between: func(m *cache.Manager) { m.Invalidate("other") }, wantStored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t, 10)

			v := m.Version("child", "root")
			tt.between(m)

			stored := m.SetIfCurrent(v, 7, cache.SetOptions{})
			assert.Equal(t, tt.wantStored, stored)

			_, ok := m.Get("child")
			assert.Equal(t, tt.wantStored, ok)

			if tt.wantStored {
				assert.EqualValues(t, 0, m.Stats().StaleWrites)
				return
			}

			assert.EqualValues(t, 1, m.Stats().StaleWrites)
		})
	}
}

func TestManager_SetIfCurrentRegistersDependencies(t *testing.T) {
	m, _ := newManager(t, 10)

	require.True(t, m.SetIfCurrent(m.Version("child", "root"), 1, cache.SetOptions{}))

	m.Invalidate("root")

	_, ok := m.Get("child")
	assert.False(t, ok)
}

func TestManager_SetIfCurrentEmptyVersion(t *testing.T) {
	m, _ := newManager(t, 10)

	assert.False(t, m.SetIfCurrent(cache.Version{}, 1, cache.SetOptions{}))
}
