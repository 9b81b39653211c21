package pricing

import (
	"context"

	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

// GuardedStore short-circuits lookups while the breaker is open.
type GuardedStore struct {
	Inner   Store
	Breaker *resilience.Breaker
}

// LookupPrices delegates to Inner through the breaker.
func (g GuardedStore) LookupPrices(ctx context.Context, ids []string) (Table, error) {
	if g.Breaker == nil {
		return g.Inner.LookupPrices(ctx, ids)
	}
	var out Table
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Inner.LookupPrices(ctx, ids)
		return err
	})
	return out, err
}
