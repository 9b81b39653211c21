package pricing

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// MaxAmount bounds any single line and the final total. Larger values are
// rejected instead of wrapping around int64.
const MaxAmount Money = 1 << 53

// ErrAmountOverflow is returned when a line or the total exceeds MaxAmount.
var ErrAmountOverflow = errors.New("pricing: amount overflow")

var minorUnitsPerMajor = decimal.NewFromInt(100)

// Line is a priced cart line: a product reference and a quantity.
type Line struct {
	ProductID string
	Qty       int
}

// Table maps product ids to authoritative unit prices in major units.
type Table map[string]decimal.Decimal

// Amount aggregates computed charge components in minor units.
type Amount struct {
	Subtotal Money
	Shipping Money
	Total    Money
	// Unknown lists product ids that had no entry in the table, sorted.
	Unknown []string
}

// ComputeAmount prices lines against table and adds the flat shipping
// surcharge. Each line contributes trunc(price*qty*100), truncated toward
// zero; ids missing from table contribute nothing and are reported in
// Amount.Unknown. The function is pure.
func ComputeAmount(lines []Line, table Table, shipping Money) (Amount, error) {
	var subtotal Money
	unknown := map[string]struct{}{}
	for _, ln := range lines {
		price, ok := table[ln.ProductID]
		if !ok {
			unknown[ln.ProductID] = struct{}{}
			continue
		}
		cents, err := lineCents(price, ln.Qty)
		if err != nil {
			return Amount{}, err
		}
		subtotal += cents
		if subtotal > MaxAmount || subtotal < -MaxAmount {
			return Amount{}, ErrAmountOverflow
		}
	}
	total := subtotal + shipping
	if total > MaxAmount {
		return Amount{}, ErrAmountOverflow
	}
	out := Amount{Subtotal: subtotal, Shipping: shipping, Total: total}
	if len(unknown) > 0 {
		out.Unknown = make([]string, 0, len(unknown))
		for id := range unknown {
			out.Unknown = append(out.Unknown, id)
		}
		sort.Strings(out.Unknown)
	}
	return out, nil
}

func lineCents(price decimal.Decimal, qty int) (Money, error) {
	cents := price.Mul(decimal.NewFromInt(int64(qty))).Mul(minorUnitsPerMajor).Truncate(0)
	limit := decimal.NewFromInt(MaxAmount)
	if cents.Abs().GreaterThan(limit) {
		return 0, ErrAmountOverflow
	}
	return cents.IntPart(), nil
}

// DistinctIDs returns the unique product ids referenced by lines in first-seen order.
func DistinctIDs(lines []Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		if _, ok := seen[ln.ProductID]; ok {
			continue
		}
		seen[ln.ProductID] = struct{}{}
		ids = append(ids, ln.ProductID)
	}
	return ids
}
