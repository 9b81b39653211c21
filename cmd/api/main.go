package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/config"
	"github.com/noah-isme/storefront-checkout/internal/db"
	"github.com/noah-isme/storefront-checkout/internal/health"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/ratelimit"
	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront-checkout",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
			Version:       envOrDefault("APP_VERSION", "dev"),
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.PriceStore == "postgres" {
		if cfg.MigrateOnStart {
			if err := db.Up(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
			logger.Info().Msg("migrations applied")
		}
		pool = mustConnectPostgres(ctx, cfg, logger)
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = mustConnectRedis(ctx, cfg, logger, metricsEnabled)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	} else {
		logger.Warn().Msg("REDIS_URL not set: price cache, idempotency and rate limiting disabled")
	}

	prices := buildPriceStore(cfg, pool, redisClient, logger)
	payments, err := buildAuthorizer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment authorizer")
	}

	missing, err := checkout.ParseMissingPricePolicy(cfg.MissingPricePolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse missing price policy")
	}
	resolver, err := checkout.NewResolver(checkout.Config{
		Prices:         prices,
		Payments:       payments,
		Currency:       cfg.CurrencyCode,
		ShippingCents:  cfg.ShippingFlatCents,
		MissingPrice:   missing,
		PriceTimeout:   cfg.PriceLookupTimeout,
		PaymentTimeout: cfg.PaymentTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout resolver")
	}

	products, err := buildCatalog(cfg, pool, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog")
	}

	limiter, err := buildLimiter(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	var debug http.Handler
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		debug = protectPprof(newPprofMux(), user, pass)
	}

	handler := newRouter(routerDeps{
		Logger:         logger,
		Checkout:       &checkout.Handler{Resolver: resolver},
		Catalog:        products,
		Idem:           common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		Limiter:        limiter,
		RateLimitMax:   cfg.RateLimitMax,
		RateWindow:     cfg.RateLimitWindow,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		AllowedOrigins: allowedOrigins(cfg),
		HSTS:           cfg.IsProduction(),
		Metrics:        httpMetrics,
		Tracing:        tracingEnabled,
		Pprof:          debug,
		Health: health.Handler{
			Checker:      health.Deps{DB: pool, Redis: redisClient},
			DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		},
		OnLimiterError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.PaymentTimeout + cfg.PriceLookupTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("price_store", cfg.PriceStore).
			Str("payment_provider", cfg.PaymentProvider).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-sigCtx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func mustConnectPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "storefront-checkout"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustConnectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func buildPriceStore(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) pricing.Store {
	var store pricing.Store
	if pool != nil {
		store = pricing.PostgresStore{DB: pool}
	} else {
		logger.Warn().Msg("using the static demo price table")
		store = pricing.StaticStore{Prices: pricing.DemoPrices()}
	}
	if rdb != nil && cfg.PriceCacheTTL > 0 {
		store = pricing.CachedStore{
			Inner:  store,
			Client: rdb,
			TTL:    cfg.PriceCacheTTL,
			Logger: logger.With().Str("component", "price_cache").Logger(),
		}
	}
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("price_store").
		WithLogger(logger)
	return pricing.GuardedStore{Inner: store, Breaker: breaker}
}

func buildAuthorizer(cfg *config.Config, logger zerolog.Logger) (payment.Authorizer, error) {
	var inner payment.Authorizer
	switch cfg.PaymentProvider {
	case "mock":
		logger.Warn().Msg("using the mock payment authorizer")
		inner = payment.Mock{}
	default:
		s, err := payment.NewStripe(payment.StripeConfig{
			SecretKey:   cfg.StripeSecretKey,
			HTTPTimeout: cfg.PaymentTimeout,
			BaseURL:     cfg.StripeAPIBase,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		inner = s
	}
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("payment_" + cfg.PaymentProvider).
		WithLogger(logger).
		WithFailureClassifier(payment.IsProviderOutage)
	return payment.Guarded{Inner: inner, Breaker: breaker}, nil
}

// buildCatalog lists products from the same pool as the price store, or from
// the demo catalogue when prices are static.
func buildCatalog(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) (*catalog.Handler, error) {
	var source catalog.Source = catalog.StaticSource{Products: catalog.DemoProducts()}
	if pool != nil {
		source = catalog.PostgresSource{DB: pool}
	}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source: source,
		Cache:  catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc}), nil
}

func buildLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Allower, error) {
	if rdb == nil {
		return nil, nil
	}
	if cfg.RateLimitStrategy == "fixed" {
		return ratelimit.NewFixedWindow(rdb, "ratelimit:fixed")
	}
	return ratelimit.Limiter{Client: rdb, Prefix: "ratelimit:"}, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
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
