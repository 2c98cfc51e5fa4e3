package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	StorageDriver    string
	RedisURL         string
	SQLitePath       string
	DatabaseURL      string
	StorageKeyPrefix string
	StorageTTL       time.Duration

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	PersistDebounce   time.Duration
	PersistTimeout    time.Duration
	HistoryLimit      int
	SessionHeader     string
	SessionIdleTTL    time.Duration
	NotificationLimit int

	CatalogSeedPath       string
	CatalogCacheTTL       time.Duration
	CatalogDefaultPerPage int
	ShippingFreeThreshold int64

	CORSAllowedOrigins string
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitStrategy  string
	IdempotencyTTL     time.Duration
	BodyLimitBytes     int64
	SecurityHeaders    bool
	HSTS               bool

	LogFormat            string
	LogLevel             string
	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsBucketsMS     string
	TracingEnabled       bool
	TracingExporter      string
	OTLPEndpoint         string
	TracingSamplingRatio float64
	PprofEnabled         bool
	PprofUser            string
	PprofPass            string
	ShutdownTimeout      time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		StorageDriver:    strings.ToLower(valueOrDefault(k.String("STORAGE_DRIVER"), DriverMemory)),
		RedisURL:         strings.TrimSpace(k.String("REDIS_URL")),
		SQLitePath:       valueOrDefault(k.String("SQLITE_PATH"), "storefront-cart.db"),
		DatabaseURL:      strings.TrimSpace(k.String("DATABASE_URL")),
		StorageKeyPrefix: valueOrDefault(k.String("STORAGE_KEY_PREFIX"), "storefront-cart"),
		StorageTTL:       parseDuration(k.String("STORAGE_TTL"), "720h"),

		BreakerMinRequests:  parseInt(k.String("STORAGE_BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("STORAGE_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("STORAGE_BREAKER_OPEN_FOR"), "30s"),

		PersistDebounce:   parseDuration(k.String("CART_PERSIST_DEBOUNCE"), "1s"),
		PersistTimeout:    parseDuration(k.String("CART_PERSIST_TIMEOUT"), "2s"),
		HistoryLimit:      parseInt(k.String("CART_HISTORY_LIMIT"), 50),
		SessionHeader:     valueOrDefault(k.String("CART_SESSION_HEADER"), "X-Cart-Session"),
		SessionIdleTTL:    parseDuration(k.String("CART_SESSION_IDLE_TTL"), "30m"),
		NotificationLimit: parseInt(k.String("CART_NOTIFICATION_LIMIT"), 20),

		CatalogSeedPath:       strings.TrimSpace(k.String("CATALOG_SEED_PATH")),
		CatalogCacheTTL:       parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogDefaultPerPage: parseInt(k.String("CATALOG_DEFAULT_PER_PAGE"), 20),
		ShippingFreeThreshold: int64(parseInt(k.String("SHIPPING_FREE_THRESHOLD"), 100000)),

		CORSAllowedOrigins: strings.TrimSpace(k.String("CORS_ALLOWED_ORIGINS")),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders:    parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTS:               parseBool(k.String("SECURITY_HSTS_ENABLED"), false),

		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:       parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront_cart"),
		MetricsBucketsMS:     strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:       parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:      valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		PprofEnabled:         parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		ShutdownTimeout:      parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the keys each storage driver needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case DriverMemory:
	case DriverRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis driver"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.RateLimitStrategy {
	case "sliding", "fixed":
	default:
		errs = append(errs, fmt.Errorf("unsupported RATE_LIMIT_STRATEGY %q", c.RateLimitStrategy))
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, errors.New("STORAGE_BREAKER_FAILURE_RATIO must be within (0, 1]"))
	}
	if c.HistoryLimit < 2 {
		errs = append(errs, errors.New("CART_HISTORY_LIMIT must be at least 2"))
	}
	if c.ShippingFreeThreshold < 0 {
		errs = append(errs, errors.New("SHIPPING_FREE_THRESHOLD cannot be negative"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
