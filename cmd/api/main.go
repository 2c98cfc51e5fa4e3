package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-cart/internal/app"
	"github.com/noah-isme/storefront-cart/internal/cart"
	"github.com/noah-isme/storefront-cart/internal/catalog"
	"github.com/noah-isme/storefront-cart/internal/common"
	"github.com/noah-isme/storefront-cart/internal/config"
	"github.com/noah-isme/storefront-cart/internal/events"
	"github.com/noah-isme/storefront-cart/internal/health"
	"github.com/noah-isme/storefront-cart/internal/obs"
	"github.com/noah-isme/storefront-cart/internal/pricing"
	"github.com/noah-isme/storefront-cart/internal/ratelimit"
	"github.com/noah-isme/storefront-cart/internal/resilience"
	"github.com/noah-isme/storefront-cart/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
		resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "storefront-cart",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	deps, err := app.Open(ctx, cfg, app.Options{Instrument: cfg.MetricsEnabled || tracingEnabled, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("open storage")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	seed, err := app.LoadSeed(cfg.CatalogSeedPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogSeedPath).Msg("load catalog seed")
	}
	products := catalog.NewStatic(seed.Products())
	var lookup cart.ProductLookup = products
	if deps.Redis != nil && cfg.CatalogCacheTTL > 0 {
		lookup = catalog.CachedLookup{
			Source: products,
			Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
			Prefix: cfg.StorageKeyPrefix,
			Logger: logger,
		}
	}

	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("cart_storage").
		WithLogger(logger)

	template := seed.CartConfig(pricing.Money(cfg.ShippingFreeThreshold))
	template.Storage = deps.Store
	template.PersistDelay = cfg.PersistDebounce
	template.WriteTimeout = cfg.PersistTimeout
	template.Breaker = breaker
	template.Locker = deps.Locker
	template.HistoryLimit = cfg.HistoryLimit
	template.Logger = logger

	sessions := cart.NewSessions(cart.SessionsConfig{
		Template:          template,
		KeyPrefix:         cfg.StorageKeyPrefix,
		IdleTTL:           cfg.SessionIdleTTL,
		NotificationLimit: cfg.NotificationLimit,
		Notifiers:         []events.Notifier{events.LogNotifier{Logger: logger}},
		Logger:            logger,
	})
	go sessions.Run(ctx, time.Minute)

	cartHandler := cart.NewHandler(cart.HandlerConfig{
		Sessions:      sessions,
		Products:      lookup,
		SessionHeader: cfg.SessionHeader,
		Logger:        logger,
	})
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Products:       products,
		Lookup:         lookup,
		DefaultPerPage: cfg.CatalogDefaultPerPage,
	})
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL, SessionHeader: cfg.SessionHeader}
	limiter := ratelimit.Handler{
		Limiter: newLimiter(cfg, deps, logger),
		Config:  ratelimit.Config{Key: ratelimit.SessionOrIP(cfg.SessionHeader), Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.Tracing("storefront-cart"))
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, SessionHeader: cfg.SessionHeader}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTS, HSTSMaxAge: 31536000}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins, cfg.SessionHeader))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	probes := map[string]health.Probe{"storage": func(context.Context) error {
		if breaker.State() == resilience.Open {
			return resilience.ErrOpenCircuit
		}
		return nil
	}}
	for name, probe := range deps.Probes {
		probes[name] = probe
	}
	healthHandler := health.Handler{Probes: probes, Timeout: 500 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Get("/products/{id}/price", cartHandler.ProductPrice)
		v.Route("/cart", func(c chi.Router) {
			cartHandler.Register(c, idem.Middleware)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("driver", cfg.StorageDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := sessions.CloseAll(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("flush cart sessions")
	}
}

func newLimiter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) ratelimit.Allower {
	prefix := cfg.StorageKeyPrefix + ":ratelimit:"
	if deps.Redis == nil {
		return ratelimit.NewMemory(prefix)
	}
	if cfg.RateLimitStrategy == "fixed" {
		store, err := ratelimit.NewRedisFixed(deps.Redis, prefix)
		if err == nil {
			return store
		}
		logger.Error().Err(err).Msg("fixed window limiter, falling back to sliding")
	}
	return ratelimit.Limiter{Client: deps.Redis, Prefix: prefix}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
