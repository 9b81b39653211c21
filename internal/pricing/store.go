package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the authoritative source of unit prices. Unknown ids are omitted
// from the returned table rather than reported as errors.
type Store interface {
	LookupPrices(ctx context.Context, ids []string) (Table, error)
}

// StaticStore serves prices from a fixed in-memory table.
type StaticStore struct {
	Prices Table
}

// LookupPrices returns the subset of the static table matching ids.
func (s StaticStore) LookupPrices(ctx context.Context, ids []string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(Table, len(ids))
	for _, id := range ids {
		if price, ok := s.Prices[id]; ok {
			out[id] = price
		}
	}
	return out, nil
}

// DemoPrices is the catalogue used by the static store and the seeder.
func DemoPrices() Table {
	return Table{
		"tee-black":     decimal.RequireFromString("24.90"),
		"tee-white":     decimal.RequireFromString("24.90"),
		"hoodie-grey":   decimal.RequireFromString("59.00"),
		"cap-navy":      decimal.RequireFromString("19.50"),
		"tote-canvas":   decimal.RequireFromString("12.00"),
		"sticker-pack":  decimal.RequireFromString("3.99"),
		"mug-enamel":    decimal.RequireFromString("14.25"),
		"socks-striped": decimal.RequireFromString("9.95"),
	}
}
