package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestPutTake(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "student@example.com:*", "tok-abc", time.Hour))

	got, err := store.Take(ctx, "student@example.com:*")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", got)
}

func TestTakeIsSingleUse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "tok", time.Hour))

	_, err := store.Take(ctx, "k")
	require.NoError(t, err)

	_, err = store.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTakeMissing(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.Take(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTakeExpired(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "tok", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnsubscribeKey(t *testing.T) {
	assert.Equal(t, "student@example.com:progress_nudge",
		UnsubscribeKey("  Student@Example.COM ", "progress_nudge"))
}
