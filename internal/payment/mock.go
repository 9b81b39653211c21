package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-checkout/internal/obs"
)

const providerMock = "mock"

// Mock issues a Stripe-shaped intent without performing a network call.
// Useful for local runs and end-to-end tests without provider credentials.
type Mock struct{}

// CreateAuthorization synthesises an intent id and client secret.
func (Mock) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		obs.ObservePaymentIntent(providerMock, "error")
		return Authorization{}, err
	}
	if req.Amount <= 0 {
		obs.ObservePaymentIntent(providerMock, "error")
		return Authorization{}, errors.New("amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		obs.ObservePaymentIntent(providerMock, "error")
		return Authorization{}, errors.New("currency is required")
	}
	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	obs.ObservePaymentIntent(providerMock, "success")
	return Authorization{
		Provider:     providerMock,
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, strings.ReplaceAll(uuid.NewString(), "-", "")),
	}, nil
}
