package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/health"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/ratelimit"
)

func testRouter(t *testing.T, rdb *redis.Client) http.Handler {
	t.Helper()
	resolver, err := checkout.NewResolver(checkout.Config{
		Prices:        pricing.StaticStore{Prices: pricing.DemoPrices()},
		Payments:      payment.Mock{},
		ShippingCents: 1000,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source: catalog.StaticSource{Products: catalog.DemoProducts()},
		Cache:  catalog.NewCache(rdb, time.Minute),
	})
	require.NoError(t, err)

	deps := routerDeps{
		Logger:         zerolog.Nop(),
		Checkout:       &checkout.Handler{Resolver: resolver},
		Catalog:        catalog.NewHandler(catalog.HandlerConfig{Service: svc}),
		Health:         health.Handler{Checker: health.Deps{Redis: rdb}},
		Idem:           common.Idem{R: rdb, TTL: time.Minute},
		RateLimitMax:   2,
		RateWindow:     time.Minute,
		MaxBodyBytes:   1 << 10,
		AllowedOrigins: []string{"*"},
	}
	if rdb != nil {
		deps.Limiter = ratelimit.Limiter{Client: rdb, Prefix: "rl:"}
	}
	return newRouter(deps)
}

func post(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterCreatesPaymentIntentOnBothPaths(t *testing.T) {
	h := testRouter(t, nil)
	for _, path := range []string{"/create-payment-intent", "/api/v1/payments/intent"} {
		rec := post(t, h, path, `{"cart":[{"product_id":"tee-black","qty":2}]}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Contains(t, body["clientSecret"], "_secret_")
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	}
}

func TestRouterRejectsInvalidCart(t *testing.T) {
	h := testRouter(t, nil)
	rec := post(t, h, "/create-payment-intent", `{"cart":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INVALID_REQUEST"`)
}

func TestRouterRejectsOversizedBody(t *testing.T) {
	h := testRouter(t, nil)
	rec := post(t, h, "/create-payment-intent", `{"cart":[{"product_id":"`+strings.Repeat("x", 2048)+`","qty":1}]}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	h := testRouter(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/create-payment-intent", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterIdempotencyAndRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := testRouter(t, rdb)

	body := `{"cart":[{"product_id":"mug-enamel","qty":1}]}`
	first := post(t, h, "/create-payment-intent", body, map[string]string{"Idempotency-Key": "order-1"})
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))

	replay := post(t, h, "/create-payment-intent", body, map[string]string{"Idempotency-Key": "order-1"})
	require.Equal(t, http.StatusConflict, replay.Code)

	limited := post(t, h, "/create-payment-intent", body, nil)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
}

func TestRouterHealth(t *testing.T) {
	h := testRouter(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"db":"disabled"`)
}

func TestRouterListsProductsOutsideCheckoutLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := testRouter(t, rdb)

	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?featured=true", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))

		var resp struct {
			Data []catalog.Product `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, catalog.FeaturedLimit)
		require.Equal(t, "tote-canvas", resp.Data[0].ID)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?sort=cheapest", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
