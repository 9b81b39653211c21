package payment

import "context"

// AuthorizationRequest captures what the provider needs to open a payment authorization.
type AuthorizationRequest struct {
	Amount         int64
	Currency       string
	ReceiptEmail   string
	IdempotencyKey string
	Metadata       map[string]string
}

// Authorization is the provider's answer. ClientSecret is handed to the
// browser unchanged.
type Authorization struct {
	Provider     string
	ID           string
	ClientSecret string
}

// Authorizer abstracts the upstream payment provider.
type Authorizer interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error)
}
