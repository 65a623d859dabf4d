// Package lock provides the mutual exclusion that keeps two enforce runs
// from repairing the same ledger at once.
package lock

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=lock.go -destination=lock_mock.go -package=lock

var ErrNotObtained = errors.New("lock: not obtained")

// Lock is a held lock. Refresh extends it by ttl and returns ErrNotObtained
// once the lock expired and may be held by someone else.
type Lock interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker obtains a lock on key that expires after ttl unless released.
// It returns ErrNotObtained when the key is already held.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
