package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// Sort orders understood by the product listing.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
)

// FeaturedLimit is the number of products shown in the featured strip.
const FeaturedLimit = 3

// Product is the public product payload rendered by the storefront.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListParams captures filters for product listing. A nil bound is open.
type ListParams struct {
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
	Limit    int
}

// Source lists products matching params, already filtered, sorted and limited.
type Source interface {
	ListProducts(ctx context.Context, params ListParams) ([]Product, error)
}

// Service validates listing requests and fronts a Source with a cache.
type Service struct {
	source   Source
	cache    *Cache
	maxLimit int
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source   Source
	Cache    *Cache
	MaxLimit int
	Logger   zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: product source is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	return &Service{source: cfg.Source, cache: cfg.Cache, maxLimit: maxLimit, logger: cfg.Logger}, nil
}

// ParseListParams normalises query values. Prices are decimal euros, as the
// storefront's price slider sends them.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Sort: SortNewest, Limit: s.maxLimit}

	if v := strings.TrimSpace(values.Get("featured")); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			return params, badRequest("featured must be true or false", err)
		}
		if featured {
			params.Limit = FeaturedLimit
		}
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit must be a positive integer", err)
		}
		params.Limit = min(limit, s.maxLimit)
	}

	var err error
	if params.MinPrice, err = parsePrice(values, "min_price"); err != nil {
		return params, err
	}
	if params.MaxPrice, err = parsePrice(values, "max_price"); err != nil {
		return params, err
	}
	if params.MinPrice != nil && params.MaxPrice != nil && params.MinPrice.GreaterThan(*params.MaxPrice) {
		return params, badRequest("min_price cannot be greater than max_price", nil)
	}

	if v := strings.TrimSpace(values.Get("sort")); v != "" {
		sort, ok := normalizeSort(v)
		if !ok {
			return params, badRequest("sort must be one of newest, price_asc, price_desc, name_asc, name_desc", nil)
		}
		params.Sort = sort
	}
	return params, nil
}

// ListProducts returns products for params. Unfiltered listings are cached;
// cache failures fall through to the source.
func (s *Service) ListProducts(ctx context.Context, params ListParams) ([]Product, error) {
	key, cacheable := listCacheKey(params)
	if cacheable {
		var cached []Product
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		}
		if ok {
			return cached, nil
		}
	}

	products, err := s.source.ListProducts(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []Product{}
	}
	if cacheable {
		if err := s.cache.SetJSON(ctx, key, products); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
		}
	}
	return products, nil
}

func listCacheKey(params ListParams) (string, bool) {
	if params.MinPrice != nil || params.MaxPrice != nil {
		return "", false
	}
	return fmt.Sprintf("catalog:products:%s:%d", params.Sort, params.Limit), true
}

func parsePrice(values url.Values, field string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(values.Get(field))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return nil, badRequest(field+" must be a non-negative number", err)
	}
	return &d, nil
}

// normalizeSort accepts both the API spelling and the storefront's select
// values such as "price-asc". "default" sorts by price descending there.
func normalizeSort(v string) (string, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_") {
	case SortNewest:
		return SortNewest, true
	case SortPriceAsc:
		return SortPriceAsc, true
	case SortPriceDesc, "default":
		return SortPriceDesc, true
	case SortNameAsc:
		return SortNameAsc, true
	case SortNameDesc:
		return SortNameDesc, true
	default:
		return "", false
	}
}

func badRequest(message string, err error) *common.AppError {
	return common.NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
}
