package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the subset of *pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const listProductsSQL = `SELECT id, name, description, image_url, price::text, created_at
FROM products
WHERE ($1::text IS NULL OR price >= $1::text::numeric)
  AND ($2::text IS NULL OR price <= $2::text::numeric)
ORDER BY %s
LIMIT $3`

// orderBy maps a sort to its ORDER BY clause. Ties fall back to id so pages
// are stable.
var orderBy = map[string]string{
	SortNewest:    "created_at DESC, id",
	SortPriceAsc:  "price ASC, id",
	SortPriceDesc: "price DESC, id",
	SortNameAsc:   "lower(name) ASC, id",
	SortNameDesc:  "lower(name) DESC, id",
}

// PostgresSource reads the products table shared with the price store.
type PostgresSource struct {
	DB Querier
}

// ListProducts runs one filtered, ordered and limited query.
func (s PostgresSource) ListProducts(ctx context.Context, params ListParams) ([]Product, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("product source not configured")
	}
	order, ok := orderBy[params.Sort]
	if !ok {
		order = orderBy[SortNewest]
	}
	rows, err := s.DB.Query(ctx, fmt.Sprintf(listProductsSQL, order),
		boundArg(params.MinPrice), boundArg(params.MaxPrice), params.Limit)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p   Product
			raw string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.ImageURL, &raw, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse price for %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func boundArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
