package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORAGE_DRIVER":        "",
		"CART_PERSIST_DEBOUNCE": "",
		"CART_HISTORY_LIMIT":    "",
		"CART_SESSION_HEADER":   "",
		"STORAGE_KEY_PREFIX":    "",
		"RATE_LIMIT_STRATEGY":   "",
		"PORT":                  "",
	})
	require.NoError(t, err)
	require.Equal(t, config.DriverMemory, cfg.StorageDriver)
	require.Equal(t, time.Second, cfg.PersistDebounce)
	require.Equal(t, 50, cfg.HistoryLimit)
	require.Equal(t, "X-Cart-Session", cfg.SessionHeader)
	require.Equal(t, "storefront-cart", cfg.StorageKeyPrefix)
	require.EqualValues(t, 100000, cfg.ShippingFreeThreshold)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORAGE_DRIVER":        "Redis",
		"REDIS_URL":             "redis://localhost:6379/0",
		"CART_PERSIST_DEBOUNCE": "250ms",
		"CART_HISTORY_LIMIT":    "5",
		"RATE_LIMIT_STRATEGY":   "fixed",
		"PORT":                  ":9090",
	})
	require.NoError(t, err)
	require.Equal(t, config.DriverRedis, cfg.StorageDriver)
	require.Equal(t, 250*time.Millisecond, cfg.PersistDebounce)
	require.Equal(t, 5, cfg.HistoryLimit)
	require.Equal(t, "fixed", cfg.RateLimitStrategy)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadValidatesDriverKeys(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"STORAGE_DRIVER": "redis", "REDIS_URL": ""})
	require.ErrorContains(t, err, "REDIS_URL")

	_, err = config.LoadForTests(map[string]string{"STORAGE_DRIVER": "postgres", "DATABASE_URL": ""})
	require.ErrorContains(t, err, "DATABASE_URL")

	_, err = config.LoadForTests(map[string]string{"CART_HISTORY_LIMIT": "1"})
	require.ErrorContains(t, err, "CART_HISTORY_LIMIT must be at least 2")

	_, err = config.LoadForTests(map[string]string{"STORAGE_DRIVER": "etcd"})
	require.ErrorContains(t, err, "unsupported STORAGE_DRIVER")
}
