package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test", time.Hour), mr
}

func TestAddCountsDistinctUsers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	n, err := store.Add(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.Add(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "second tab of the same user must not inflate the count")

	n, err = store.Add(ctx, "ls-1", "u-2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.Count(ctx, "ls-2")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestRemoveFloorsAtZero(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "ls-1", "u-1")
	require.NoError(t, err)

	n, err := store.Remove(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = store.Remove(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestAddRefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("test:livestream:ls-1:viewers"))

	mr.FastForward(50 * time.Minute)
	_, err = store.Add(ctx, "ls-1", "u-2")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("test:livestream:ls-1:viewers"))

	mr.FastForward(61 * time.Minute)
	n, err := store.Count(ctx, "ls-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "untouched sets expire")
}

func TestTouchSlidesExpiryWithoutCreating(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := "test:livestream:ls-1:viewers"

	live, err := store.Touch(ctx, "ls-1")
	require.NoError(t, err)
	assert.False(t, live)
	assert.False(t, mr.Exists(key))

	_, err = store.Add(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	mr.FastForward(50 * time.Minute)

	live, err = store.Touch(ctx, "ls-1")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(50 * time.Minute)
	n, err := store.Count(ctx, "ls-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestClear(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "ls-1", "u-1")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "ls-1"))
	assert.False(t, mr.Exists("test:livestream:ls-1:viewers"))
}

func TestStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.SetError("ERR server unavailable")

	_, err := store.Add(context.Background(), "ls-1", "u-1")
	require.Error(t, err)
}
