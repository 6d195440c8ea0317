package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"templestock/pkg/logger"
)

// Redis is a Locker backed by bsm/redislock. Locks expire after TTL so a crashed
// holder cannot block a key forever.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
	retry  time.Duration
}

// RedisOptions configures the Redis locker.
type RedisOptions struct {
	TTL time.Duration
	// Prefix namespaces keys, e.g. "templestock:".
	Prefix string
	// RetryInterval between attempts while the key is held elsewhere.
	RetryInterval time.Duration
}

// NewRedis creates a Locker on top of an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		retry:  opts.RetryInterval,
	}
}

// Lock implements Locker. It retries with a linear backoff until ctx ends.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	fullKey := r.prefix + key
	lock, err := r.client.Obtain(ctx, fullKey, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrNotObtained
		}
		return nil, fmt.Errorf("obtain redis lock %s: %w", fullKey, err)
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "redis lock expired before release", "key", fullKey, "ttl", r.ttl)
			return nil
		}
		return err
	}, nil
}
