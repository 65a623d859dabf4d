// Package cache holds computed values (debt figures, aggregates) keyed by
// string with per-entry TTL and a one-level dependency graph. It never loads
// data itself: callers push values in and invalidate them after mutations.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type Options struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
	Now           func() time.Time
}

type SetOptions struct {
	TTL          time.Duration // Zero uses the manager default
	Dependencies []string      // Invalidating any of these also removes this key
}

// Version is a snapshot of the invalidation counters of a key and the keys
// it depends on, taken before the value is read from the store.
type Version struct {
	keys []string
	gens []uint64
}

type Stats struct {
	Entries       int     `json:"entries"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	Evictions     int64   `json:"evictions"`
	Expirations   int64   `json:"expirations"`
	Invalidations int64   `json:"invalidations"`
	StaleWrites   int64   `json:"stale_writes"`
	HitRate       float64 `json:"hit_rate"`
}

type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
	deps       []string
	accesses   int64
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) >= e.ttl
}

type Manager struct {
	mu         sync.Mutex
	entries    *simplelru.LRU[string, *entry]
	dependents map[string]map[string]struct{}
	gens       map[string]uint64
	opts       Options
	stats      Stats
	removing   bool

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

func New(opts Options) (*Manager, error) {
	if opts.MaxEntries <= 0 {
		return nil, fmt.Errorf("cache max entries must be positive, got %d", opts.MaxEntries)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		dependents: make(map[string]map[string]struct{}),
		gens:       make(map[string]uint64),
		opts:       opts,
	}

	lru, err := simplelru.NewLRU[string, *entry](opts.MaxEntries, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}

	m.entries = lru

	return m, nil
}

// onEvict runs with mu held, for explicit removals and capacity evictions.
func (m *Manager) onEvict(key string, e *entry) {
	m.unlink(key, e)

	if !m.removing {
		m.stats.Evictions++
	}
}

func (m *Manager) unlink(key string, e *entry) {
	for _, dep := range e.deps {
		keys := m.dependents[dep]
		delete(keys, key)

		if len(keys) == 0 {
			delete(m.dependents, dep)
		}
	}
}

func (m *Manager) remove(key string) bool {
	m.removing = true
	defer func() { m.removing = false }()

	return m.entries.Remove(key)
}

func (m *Manager) Set(key string, value any, opts SetOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(key, value, opts)
}

// Version snapshots key and its dependencies. Pass it to SetIfCurrent
// after loading the value.
func (m *Manager) Version(key string, deps ...string) Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := Version{keys: append([]string{key}, deps...)}
	v.gens = make([]uint64, len(v.keys))

	for i, k := range v.keys {
		v.gens[i] = m.gens[k]
	}

	return v
}

// SetIfCurrent stores value under the key v was taken for, unless any key in
// v was invalidated since. A dropped write reports false; the value was read
// before a mutation committed and must not outlive it.
func (m *Manager) SetIfCurrent(v Version, value any, opts SetOptions) bool {
	if len(v.keys) == 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, k := range v.keys {
		if m.gens[k] != v.gens[i] {
			m.stats.StaleWrites++
			return false
		}
	}

	if len(opts.Dependencies) == 0 {
		opts.Dependencies = v.keys[1:]
	}

	m.set(v.keys[0], value, opts)

	return true
}

func (m *Manager) set(key string, value any, opts SetOptions) {
	if old, ok := m.entries.Peek(key); ok {
		m.unlink(key, old)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = m.opts.TTL
	}

	e := &entry{
		value:      value,
		insertedAt: m.opts.Now(),
		ttl:        ttl,
		deps:       append([]string(nil), opts.Dependencies...),
	}

	for _, dep := range e.deps {
		keys, ok := m.dependents[dep]
		if !ok {
			keys = make(map[string]struct{})
			m.dependents[dep] = keys
		}

		keys[key] = struct{}{}
	}

	m.entries.Add(key, e)
	m.stats.Sets++
}

// Get returns the value for key. Expired entries are evicted and reported
// as a miss.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(key)
	if !ok {
		m.stats.Misses++
		return nil, false
	}

	if e.expired(m.opts.Now()) {
		m.remove(key)
		m.stats.Expirations++
		m.stats.Misses++

		return nil, false
	}

	e.accesses++
	m.stats.Hits++

	return e.value, true
}

// Invalidate removes key and every key registered as depending on it.
// Dependents of dependents are left alone. Absent keys are a no-op.
func (m *Manager) Invalidate(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		dependents := m.dependents[key]
		delete(m.dependents, key)
		m.gens[key]++

		if m.remove(key) {
			m.stats.Invalidations++
		}

		for dep := range dependents {
			m.gens[dep]++

			if m.remove(dep) {
				m.stats.Invalidations++
			}
		}
	}
}

// Sweep evicts every expired entry and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	removed := 0

	for _, key := range m.entries.Keys() {
		e, ok := m.entries.Peek(key)
		if !ok || !e.expired(now) {
			continue
		}

		m.remove(key)
		m.stats.Expirations++
		removed++
	}

	return removed
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Entries = m.entries.Len()

	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(lookups)
	}

	return s
}

// Start launches the periodic sweep. It is a no-op when already running or
// when no sweep interval is configured.
func (m *Manager) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stop != nil || m.opts.SweepInterval <= 0 {
		return
	}

	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.sweepLoop(ctx, m.stop, m.done)
}

func (m *Manager) sweepLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("cache sweep", "expired", n)
			}
		}
	}
}

// Stop halts the sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stop == nil {
		return
	}

	close(m.stop)
	<-m.done

	m.stop, m.done = nil, nil
}

// Lookup is a typed Get. A stored value of another type is a miss.
func Lookup[T any](m *Manager, key string) (T, bool) {
	var zero T

	v, ok := m.Get(key)
	if !ok {
		return zero, false
	}

	t, ok := v.(T)
	if !ok {
		return zero, false
	}

	return t, true
}
