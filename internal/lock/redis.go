package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis shares locks between every process connected to the same server.
type Redis struct {
	client *redislock.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{client: redislock.New(rdb)}
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	l, err := r.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("obtaining %s: %w", key, ErrNotObtained)
	}

	if err != nil {
		return nil, fmt.Errorf("obtaining %s: %w", key, err)
	}

	return &redisLock{lock: l}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (r *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	err := r.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("refreshing %s: %w", r.lock.Key(), ErrNotObtained)
	}

	if err != nil {
		return fmt.Errorf("refreshing %s: %w", r.lock.Key(), err)
	}

	return nil
}

func (r *redisLock) Release(ctx context.Context) error {
	if err := r.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("releasing %s: %w", r.lock.Key(), err)
	}

	return nil
}
