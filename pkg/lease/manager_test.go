package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lease:task:42", Key(42))
}

func TestAcquireIsExclusive(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	a := NewManager(rdb, "replica-a", 30*time.Second)
	b := NewManager(rdb, "replica-b", 30*time.Second)

	ok, err := a.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := mr.Get(Key(7))
	require.NoError(t, err)
	assert.Equal(t, "replica-a", holder)

	mr.FastForward(31 * time.Second)
	ok, err = b.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenewOnlyByHolder(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	a := NewManager(rdb, "replica-a", 30*time.Second)
	b := NewManager(rdb, "replica-b", 30*time.Second)

	_, err := a.Acquire(ctx, 7)
	require.NoError(t, err)
	mr.FastForward(20 * time.Second)

	ok, err := b.Renew(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL(Key(7)))

	ok, err = a.Renew(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL(Key(7)))

	ok, err = a.Renew(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	a := NewManager(rdb, "replica-a", 30*time.Second)
	b := NewManager(rdb, "replica-b", 30*time.Second)

	_, err := a.Acquire(ctx, 7)
	require.NoError(t, err)

	ok, err := b.Release(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists(Key(7)))

	ok, err = a.Release(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists(Key(7)))

	ok, err = b.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}
