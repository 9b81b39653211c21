package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func TestFixedWindowAllow(t *testing.T) {
	fw := FixedWindow{Store: memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "test"})}
	ctx := context.Background()

	allowed, remaining, reset, err := fw.Allow(ctx, "client", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, remaining)
	require.True(t, reset.After(time.Now()))

	allowed, remaining, _, err = fw.Allow(ctx, "client", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 0, remaining)

	allowed, _, _, err = fw.Allow(ctx, "client", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, _, err = fw.Allow(ctx, "other", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestFixedWindowWithoutStoreAllows(t *testing.T) {
	allowed, remaining, _, err := FixedWindow{}.Allow(context.Background(), "k", time.Second, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}

func TestHandlerWithFixedWindowRejectsWithJSON(t *testing.T) {
	handler := Handler{
		Limiter: FixedWindow{Store: memory.NewStore()},
		Config: Config{
			Key:    ClientKey("checkout"),
			Window: time.Minute,
			Max:    1,
		},
	}
	next := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/create-payment-intent", nil)
	req.RemoteAddr = "203.0.113.9:4242"

	first := httptest.NewRecorder()
	next.ServeHTTP(first, req)
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	next.ServeHTTP(second, req)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Contains(t, second.Body.String(), `"code":"RATE_LIMITED"`)
	require.NotEmpty(t, second.Header().Get("Retry-After"))
}
