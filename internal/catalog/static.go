package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// StaticSource serves a fixed product list from memory. It applies the same
// filter, order and limit rules as PostgresSource.
type StaticSource struct {
	Products []Product
}

// ListProducts filters and sorts a copy of the static list.
func (s StaticSource) ListProducts(ctx context.Context, params ListParams) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(s.Products))
	for _, p := range s.Products {
		if params.MinPrice != nil && p.Price.LessThan(*params.MinPrice) {
			continue
		}
		if params.MaxPrice != nil && p.Price.GreaterThan(*params.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b Product) int {
		if c := compareBy(params.Sort, a, b); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func compareBy(sort string, a, b Product) int {
	switch sort {
	case SortPriceAsc:
		return a.Price.Cmp(b.Price)
	case SortPriceDesc:
		return b.Price.Cmp(a.Price)
	case SortNameAsc:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortNameDesc:
		return strings.Compare(strings.ToLower(b.Title), strings.ToLower(a.Title))
	default:
		return b.CreatedAt.Compare(a.CreatedAt)
	}
}

var demoDetails = map[string][2]string{
	"tee-black":     {"Classic Tee, Black", "Midweight cotton tee with a relaxed fit."},
	"tee-white":     {"Classic Tee, White", "Midweight cotton tee with a relaxed fit."},
	"hoodie-grey":   {"Heavyweight Hoodie, Grey", "Brushed fleece hoodie with a kangaroo pocket."},
	"cap-navy":      {"Six Panel Cap, Navy", "Unstructured cap with a brass buckle."},
	"tote-canvas":   {"Canvas Tote", "Heavy canvas tote with long handles."},
	"sticker-pack":  {"Sticker Pack", "Five vinyl stickers."},
	"mug-enamel":    {"Enamel Mug", "Speckled enamel camping mug."},
	"socks-striped": {"Striped Socks", "Combed cotton crew socks."},
}

// DemoProducts is the demo catalogue behind pricing.DemoPrices. Products are
// spaced one hour apart in id order so newest-first ordering is defined.
func DemoProducts() []Product {
	prices := pricing.DemoPrices()
	ids := make([]string, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Product, 0, len(ids))
	for i, id := range ids {
		details, ok := demoDetails[id]
		if !ok {
			details = [2]string{id, ""}
		}
		out = append(out, Product{
			ID:          id,
			Title:       details[0],
			Description: details[1],
			ImageURL:    "/images/products/" + id + ".jpg",
			Price:       prices[id],
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}
