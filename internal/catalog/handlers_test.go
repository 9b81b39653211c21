package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/common"
)

type productsResponse struct {
	Data []catalog.Product `json:"data"`
}

type countingSource struct {
	inner  catalog.Source
	params []catalog.ListParams
	err    error
}

func (c *countingSource) ListProducts(ctx context.Context, params catalog.ListParams) ([]catalog.Product, error) {
	c.params = append(c.params, params)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.ListProducts(ctx, params)
}

func newHandler(t *testing.T, source catalog.Source, cache *catalog.Cache) *catalog.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: source, Cache: cache, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc})
}

func getProducts(t *testing.T, h *catalog.Handler, query string) (*httptest.ResponseRecorder, []catalog.Product) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products"+query, nil))
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp.Data
}

func ids(products []catalog.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestCatalogHandlers(t *testing.T) {
	handler := newHandler(t, catalog.StaticSource{Products: catalog.DemoProducts()}, nil)

	t.Run("newest first by default", func(t *testing.T) {
		rec, products := getProducts(t, handler, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "8", rec.Header().Get("X-Total-Count"))
		require.Len(t, products, 8)
		require.Equal(t, "tote-canvas", products[0].ID)
		require.Equal(t, "cap-navy", products[7].ID)
		for i := 1; i < len(products); i++ {
			require.False(t, products[i].CreatedAt.After(products[i-1].CreatedAt))
		}
		require.NotEmpty(t, products[0].Description)
		require.Equal(t, "/images/products/tote-canvas.jpg", products[0].ImageURL)
	})

	t.Run("featured strip", func(t *testing.T) {
		_, products := getProducts(t, handler, "?featured=true")
		require.Equal(t, []string{"tote-canvas", "tee-white", "tee-black"}, ids(products))
	})

	t.Run("price window and sort", func(t *testing.T) {
		_, products := getProducts(t, handler, "?min_price=10&max_price=24.90&sort=price_asc")
		require.Equal(t, []string{"tote-canvas", "mug-enamel", "cap-navy", "tee-black", "tee-white"}, ids(products))
	})

	t.Run("storefront sort spelling", func(t *testing.T) {
		_, products := getProducts(t, handler, "?sort=price-desc&limit=2")
		require.Equal(t, []string{"hoodie-grey", "tee-black"}, ids(products))

		_, products = getProducts(t, handler, "?sort=name-asc&limit=1")
		require.Equal(t, "Canvas Tote", products[0].Title)
	})

	t.Run("price serialises as decimal string", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?sort=price_asc&limit=1", nil))
		require.Contains(t, rec.Body.String(), `"price":"3.99"`)
	})
}

func TestCatalogRejectsBadQuery(t *testing.T) {
	source := &countingSource{inner: catalog.StaticSource{}}
	handler := newHandler(t, source, nil)

	for _, query := range []string{
		"?limit=0",
		"?limit=abc",
		"?min_price=-1",
		"?max_price=cheap",
		"?min_price=50&max_price=10",
		"?sort=random",
		"?featured=maybe",
	} {
		rec, _ := getProducts(t, handler, query)
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		var body common.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "BAD_REQUEST", body.Code, query)
	}
	require.Empty(t, source.params)
}

func TestCatalogHidesSourceErrors(t *testing.T) {
	handler := newHandler(t, &countingSource{err: errors.New("dial tcp 10.0.0.3:5432: refused")}, nil)
	rec, _ := getProducts(t, handler, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.3")
	require.Contains(t, rec.Body.String(), "Error fetching products")
}

func TestCatalogCachesUnfilteredListings(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &countingSource{inner: catalog.StaticSource{Products: catalog.DemoProducts()}}
	handler := newHandler(t, source, catalog.NewCache(client, time.Minute))

	_, first := getProducts(t, handler, "?featured=1")
	_, second := getProducts(t, handler, "?featured=1")
	require.Len(t, source.params, 1)
	require.Equal(t, ids(first), ids(second))
	require.True(t, mr.Exists("catalog:products:newest:3"))
	require.Equal(t, time.Minute, mr.TTL("catalog:products:newest:3"))

	getProducts(t, handler, "?featured=1&max_price=20")
	getProducts(t, handler, "?featured=1&max_price=20")
	require.Len(t, source.params, 3, "filtered listings bypass the cache")
}

func TestCatalogServesWhenCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	handler := newHandler(t, catalog.StaticSource{Products: catalog.DemoProducts()}, catalog.NewCache(client, time.Minute))
	rec, products := getProducts(t, handler, "?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, products, 2)
}

func TestCatalogWithoutServiceIsInternalError(t *testing.T) {
	handler := catalog.NewHandler(catalog.HandlerConfig{})
	rec, _ := getProducts(t, handler, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
