package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Local is an in-process Locker for single instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]localEntry
	seq  uint64
	now  func() time.Time
}

type localEntry struct {
	token   uint64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), now: time.Now}
}

func (l *Local) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, fmt.Errorf("obtaining %s: %w", key, ErrNotObtained)
	}

	l.seq++
	l.held[key] = localEntry{token: l.seq, expires: now.Add(ttl)}

	return &localLock{owner: l, key: key, token: l.seq}, nil
}

type localLock struct {
	owner *Local
	key   string
	token uint64
}

func (ll *localLock) Refresh(_ context.Context, ttl time.Duration) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()

	now := ll.owner.now()

	e, ok := ll.owner.held[ll.key]
	if !ok || e.token != ll.token || !now.Before(e.expires) {
		return fmt.Errorf("refreshing %s: %w", ll.key, ErrNotObtained)
	}

	e.expires = now.Add(ttl)
	ll.owner.held[ll.key] = e

	return nil
}

// Release is a no-op once the lock expired and was taken by someone else.
func (ll *localLock) Release(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()

	if e, ok := ll.owner.held[ll.key]; ok && e.token == ll.token {
		delete(ll.owner.held, ll.key)
	}

	return nil
}
