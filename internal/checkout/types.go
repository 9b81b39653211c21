package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var errProductRef = errors.New("product_id must be a string or an integer")

// ProductRef is a product identifier as sent by the storefront. Browsers send
// either a string or a numeric database id; both normalise to a string, and
// numbers are written in canonical integer form so 7, 7.0 and 7e0 are one id.
type ProductRef string

// UnmarshalJSON accepts a JSON string or an integral number.
func (p *ProductRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*p = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*p = ProductRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return errProductRef
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil || !d.IsInteger() {
		return errProductRef
	}
	*p = ProductRef(d.String())
	return nil
}

func (p ProductRef) normalized() ProductRef {
	return ProductRef(strings.TrimSpace(string(p)))
}

// CartLine is one client-submitted cart entry. It carries no price.
type CartLine struct {
	ProductID ProductRef `json:"product_id" validate:"required"`
	Qty       int        `json:"qty" validate:"gt=0"`
}

// Request is the decoded checkout payload.
type Request struct {
	Cart          []CartLine `json:"cart" validate:"required,min=1,dive"`
	CustomerEmail *string    `json:"customerEmail" validate:"omitempty,email"`
}

// normalized returns a copy with trimmed product ids and a nil email when the
// email is blank. The caller's cart slice is not modified.
func (r Request) normalized() Request {
	out := Request{Cart: r.Cart}
	if r.Cart != nil {
		out.Cart = make([]CartLine, len(r.Cart))
		for i, ln := range r.Cart {
			out.Cart[i] = CartLine{ProductID: ln.ProductID.normalized(), Qty: ln.Qty}
		}
	}
	if email := r.Email(); email != "" {
		out.CustomerEmail = &email
	}
	return out
}

// Email returns the trimmed receipt email or an empty string.
func (r Request) Email() string {
	if r.CustomerEmail == nil {
		return ""
	}
	return strings.TrimSpace(*r.CustomerEmail)
}

// Result is a successful resolution.
type Result struct {
	ClientSecret string
	IntentID     string
	Provider     string
	Amount       int64
	Currency     string
}

// MissingPricePolicy decides how product ids absent from the price store are treated.
type MissingPricePolicy string

const (
	// MissingPriceZero prices unknown products at zero.
	MissingPriceZero MissingPricePolicy = "zero"
	// MissingPriceReject fails the request when any product is unknown.
	MissingPriceReject MissingPricePolicy = "reject"
)

// ParseMissingPricePolicy maps a config value to a policy, defaulting to zero.
func ParseMissingPricePolicy(value string) (MissingPricePolicy, error) {
	switch MissingPricePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", MissingPriceZero:
		return MissingPriceZero, nil
	case MissingPriceReject:
		return MissingPriceReject, nil
	default:
		return "", errors.New("unknown missing price policy: " + value)
	}
}
