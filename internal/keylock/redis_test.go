package keylock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templestock/internal/core/id"
)

// newTestRedis connects to REDIS_ADDRESS or skips the test.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestRedis_ObtainContendRelease(t *testing.T) {
	rdb := newTestRedis(t)
	prefix := "templestock-test:" + id.New().String() + ":"
	l := NewRedis(rdb, RedisOptions{TTL: 5 * time.Second, Prefix: prefix, RetryInterval: 10 * time.Millisecond})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "doc:t1:1")
	require.NoError(t, err)
	held, err := rdb.Exists(ctx, prefix+"doc:t1:1").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, held)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "doc:t1:1")
	assert.ErrorIs(t, err, ErrNotObtained)

	other, err := l.Lock(ctx, "doc:t1:2")
	require.NoError(t, err, "a different key is independent")
	require.NoError(t, other(ctx))

	acquired := make(chan error, 1)
	go func() {
		next, err := l.Lock(ctx, "doc:t1:1")
		if err == nil {
			err = next(ctx)
		}
		acquired <- err
	}()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, unlock(ctx))

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not obtain the released key")
	}

	held, err = rdb.Exists(ctx, prefix+"doc:t1:1").Result()
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestRedis_ExpiredLockReleaseIsQuiet(t *testing.T) {
	rdb := newTestRedis(t)
	prefix := "templestock-test:" + id.New().String() + ":"
	l := NewRedis(rdb, RedisOptions{TTL: 50 * time.Millisecond, Prefix: prefix})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "ref:t1:inward:CH-1")
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	assert.NoError(t, unlock(ctx))
}
