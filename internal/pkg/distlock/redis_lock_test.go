package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l1 := NewRedisLock(client, "prospect:p-1", time.Minute)
	ok, err := l1.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second holder cannot acquire while l1 holds
	l2 := NewRedisLock(client, "prospect:p-1", time.Minute)
	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l1.Release(ctx))

	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseOnlyOwn(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	l1 := NewRedisLock(client, "prospect:p-2", time.Minute)
	ok, err := l1.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A different instance releasing must not free l1's lock
	l2 := NewRedisLock(client, "prospect:p-2", time.Minute)
	require.NoError(t, l2.Release(ctx))

	l3 := NewRedisLock(client, "prospect:p-2", time.Minute)
	ok, err = l3.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lock should still be held by l1")
}
