package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const lookupPricesSQL = `SELECT id, price::text FROM products WHERE id = ANY($1)`

// Querier is the subset of *pgxpool.Pool used by PostgresStore.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads prices from the products table.
type PostgresStore struct {
	DB Querier
}

// LookupPrices fetches prices for ids with a single query.
func (s PostgresStore) LookupPrices(ctx context.Context, ids []string) (Table, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("price store not configured")
	}
	out := make(Table, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, lookupPricesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse price for %s: %w", id, err)
		}
		out[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices: %w", err)
	}
	return out, nil
}
