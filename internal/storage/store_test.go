package storage_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/storage"
)

func exerciseStore(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	key := storage.Key("test", "session-1")

	_, err := store.Load(ctx, key)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Save(ctx, key, []byte(`{"version":"1.0"}`)))
	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"1.0"}`, string(got))

	require.NoError(t, store.Save(ctx, key, []byte(`{"version":"1.0","items":[]}`)))
	got, err = store.Load(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"1.0","items":[]}`, string(got))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Load(ctx, key)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, store.Delete(ctx, key))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, storage.NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewRedisStore(client, 0)
	require.NoError(t, store.Ping(context.Background()))
	exerciseStore(t, store)
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewRedisStore(client, time.Hour)
	key := storage.Key("ttl", "s")
	require.NoError(t, store.Save(context.Background(), key, []byte(`{}`)))
	require.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	_, err = store.Load(context.Background(), key)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteStore(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(context.Background()))
	exerciseStore(t, store)
}

func TestKey(t *testing.T) {
	require.Equal(t, "shop:cart:abc", storage.Key("shop:", "abc"))
	require.Equal(t, "cart:abc", storage.Key(" ", "abc"))
}
