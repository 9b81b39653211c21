package pricing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CachedStore fronts another Store with per-product Redis entries. Redis
// failures fall back to the inner store.
type CachedStore struct {
	Inner  Store
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	Logger zerolog.Logger
}

// LookupPrices serves cached prices and asks Inner only for the misses.
func (c CachedStore) LookupPrices(ctx context.Context, ids []string) (Table, error) {
	if c.Client == nil || c.TTL <= 0 || len(ids) == 0 {
		return c.Inner.LookupPrices(ctx, ids)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	out := make(Table, len(ids))
	misses := ids
	vals, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		c.Logger.Warn().Err(err).Msg("price cache read failed")
	} else {
		misses = make([]string, 0, len(ids))
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				misses = append(misses, ids[i])
				continue
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				misses = append(misses, ids[i])
				continue
			}
			out[ids[i]] = price
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	fetched, err := c.Inner.LookupPrices(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.Client.Pipeline()
	for id, price := range fetched {
		out[id] = price
		pipe.Set(ctx, c.key(id), price.String(), c.TTL)
	}
	if len(fetched) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.Logger.Warn().Err(err).Msg("price cache write failed")
		}
	}
	return out, nil
}

func (c CachedStore) key(id string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "price:"
	}
	return prefix + id
}
