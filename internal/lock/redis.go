package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// RedisOptions tunes the distributed lock.
type RedisOptions struct {
	// Expiry bounds how long a crashed holder can block others.
	Expiry time.Duration
	// Tries is the number of acquisition attempts before giving up.
	Tries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// Prefix is prepended to every key.
	Prefix string
}

// DefaultRedisOptions suits settlement units bounded by a 10s deadline.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     15 * time.Second,
		Tries:      64,
		RetryDelay: 100 * time.Millisecond,
		Prefix:     "sharedledger:lock:",
	}
}

// expiryMargin is the slack kept between the longest hold and the lock expiry.
const expiryMargin = 5 * time.Second

// RedisOptionsFor returns DefaultRedisOptions with Expiry raised so that a
// holder running for up to hold never outlives its lock.
func RedisOptionsFor(hold time.Duration) RedisOptions {
	opts := DefaultRedisOptions()
	if need := hold + expiryMargin; opts.Expiry < need {
		opts.Expiry = need
	}
	return opts
}

// Redis is a Locker shared by every instance connected to the same Redis.
type Redis struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

// NewRedis creates a distributed Locker over client.
func NewRedis(client goredislib.UniversalClient, opts RedisOptions) *Redis {
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// WithLock acquires the distributed mutex for key, runs fn, and releases it.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	name := r.opts.Prefix + key
	mutex := r.rs.NewMutex(name,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	defer func() {
		// Use a fresh context: the caller's may already be cancelled.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			slog.Warn("Failed to release lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}
