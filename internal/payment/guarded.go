package payment

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v80"

	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

// Guarded short-circuits authorizations while the breaker is open.
type Guarded struct {
	Inner   Authorizer
	Breaker *resilience.Breaker
}

// CreateAuthorization delegates to Inner through the breaker.
func (g Guarded) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if g.Breaker == nil {
		return g.Inner.CreateAuthorization(ctx, req)
	}
	var out Authorization
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Inner.CreateAuthorization(ctx, req)
		return err
	})
	return out, err
}

// IsProviderOutage reports whether err indicates the provider itself is
// unhealthy. Card and validation rejections are answered by a healthy
// provider and do not count.
func IsProviderOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 0 || se.HTTPStatusCode == 429 || se.HTTPStatusCode >= 500
	}
	return true
}
