package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/app"
	"github.com/noah-isme/storefront-cart/internal/config"
	"github.com/noah-isme/storefront-cart/internal/storage"
)

func TestOpenMemory(t *testing.T) {
	deps, err := app.Open(context.Background(), &config.Config{StorageDriver: config.DriverMemory}, app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })
	require.IsType(t, &storage.MemoryStore{}, deps.Store)
	require.Nil(t, deps.Redis)
	require.Nil(t, deps.Locker)
}

func TestOpenRedisWiresLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	deps, err := app.Open(context.Background(), &config.Config{
		StorageDriver: config.DriverRedis,
		RedisURL:      "redis://" + mr.Addr(),
	}, app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	require.IsType(t, &storage.RedisStore{}, deps.Store)
	require.NotNil(t, deps.Locker)
	require.Contains(t, deps.Probes, "redis")

	ctx := context.Background()
	require.NoError(t, deps.Store.Save(ctx, "k", []byte("v")))
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carts.db")
	deps, err := app.Open(context.Background(), &config.Config{StorageDriver: config.DriverSQLite, SQLitePath: path}, app.Options{})
	require.NoError(t, err)
	require.NotNil(t, deps.SQLite)
	require.NoError(t, deps.Probes["sqlite"](context.Background()))
	require.NoError(t, deps.Close())
}

func TestOpenRejectsUnreachableRedis(t *testing.T) {
	_, err := app.Open(context.Background(), &config.Config{
		StorageDriver: config.DriverMemory,
		RedisURL:      "redis://127.0.0.1:1",
	}, app.Options{})
	require.Error(t, err)
}

func TestLoadSeedFallsBackToEmbedded(t *testing.T) {
	seed, err := app.LoadSeed("")
	require.NoError(t, err)
	require.NotEmpty(t, seed.Products())
}
