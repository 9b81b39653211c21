package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/health"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/ratelimit"
	"github.com/noah-isme/storefront-checkout/internal/security"
)

type routerDeps struct {
	Logger         zerolog.Logger
	Checkout       *checkout.Handler
	Catalog        *catalog.Handler
	Health         health.Handler
	Idem           common.Idem
	Limiter        ratelimit.Allower
	RateLimitMax   int
	RateWindow     time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
	HSTS           bool
	Metrics        *obs.HTTPMetrics
	Tracing        bool
	Pprof          http.Handler
	OnLimiterError func(error)
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(obs.WithRequestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: true, NoStore: true, EnableHSTS: d.HSTS}.Middleware)

	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if d.Pprof != nil {
		r.Mount("/debug/pprof", d.Pprof)
	}

	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	if d.Catalog != nil {
		r.Get("/api/v1/products", d.Catalog.Products)
	}

	limit := ratelimit.Handler{
		Limiter: d.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ClientKey("checkout"),
			Window: d.RateWindow,
			Max:    d.RateLimitMax,
		},
		OnError: d.OnLimiterError,
	}

	r.Group(func(g chi.Router) {
		g.Use(limit.Middleware)
		g.Use(security.BodyLimit{Max: d.MaxBodyBytes}.Middleware)
		g.Use(d.Idem.Middleware)
		g.Post("/create-payment-intent", d.Checkout.CreatePaymentIntent)
		g.Post("/api/v1/payments/intent", d.Checkout.CreatePaymentIntent)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
	return r
}
