// Package lease keeps overlapping scheduler runs apart using a redis lock.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "lock:last-wish:run"

// Redis is a delivery.RunLease backed by a single redis key.
type Redis struct {
	key    string
	ttl    time.Duration
	obtain func(ctx context.Context, key string, ttl time.Duration) (releaser, error)
}

type releaser interface {
	Release(ctx context.Context) error
}

var _ delivery.RunLease = (*Redis)(nil)

// Connect pings addr and returns the client. Callers treat an error as "run
// without a lease".
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
		PoolSize: 10,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func New(rdb redislock.RedisClient, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	locker := redislock.New(rdb)
	return &Redis{
		key: key,
		ttl: ttl,
		obtain: func(ctx context.Context, key string, ttl time.Duration) (releaser, error) {
			return locker.Obtain(ctx, key, ttl, nil)
		},
	}
}

// Acquire takes the lease without waiting. ok=false means another run holds
// it. The ttl bounds how long a crashed run can block the next one.
func (r *Redis) Acquire(ctx context.Context) (func(), bool, error) {
	lock, err := r.obtain(ctx, r.key, r.ttl)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain %s: %w", r.key, err)
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("run lease release failed", "key", r.key, "error", err)
		}
	}
	return release, true, nil
}
