package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

const (
	defaultCurrency       = "eur"
	defaultPriceTimeout   = 3 * time.Second
	defaultPaymentTimeout = 10 * time.Second
)

// Config wires a Resolver. Prices and Payments are required and ShippingCents
// must be positive; the flat fee is never defaulted here.
type Config struct {
	Prices         pricing.Store
	Payments       payment.Authorizer
	Decoder        *Decoder
	Currency       string
	ShippingCents  int64
	MissingPrice   MissingPricePolicy
	PriceTimeout   time.Duration
	PaymentTimeout time.Duration
	Logger         zerolog.Logger
}

// Resolver computes the authoritative charge for a cart and opens exactly one
// payment authorization for it. It holds no per-request state.
type Resolver struct {
	prices         pricing.Store
	payments       payment.Authorizer
	decoder        *Decoder
	currency       string
	shippingCents  int64
	missingPrice   MissingPricePolicy
	priceTimeout   time.Duration
	paymentTimeout time.Duration
	logger         zerolog.Logger
}

// NewResolver validates cfg and applies defaults.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Prices == nil {
		return nil, errors.New("checkout: price store is required")
	}
	if cfg.Payments == nil {
		return nil, errors.New("checkout: payment authorizer is required")
	}
	if cfg.ShippingCents <= 0 {
		return nil, fmt.Errorf("checkout: shipping must be positive, got %d", cfg.ShippingCents)
	}
	r := &Resolver{
		prices:         cfg.Prices,
		payments:       cfg.Payments,
		decoder:        cfg.Decoder,
		currency:       strings.ToLower(strings.TrimSpace(cfg.Currency)),
		shippingCents:  cfg.ShippingCents,
		missingPrice:   cfg.MissingPrice,
		priceTimeout:   cfg.PriceTimeout,
		paymentTimeout: cfg.PaymentTimeout,
		logger:         cfg.Logger,
	}
	if r.decoder == nil {
		r.decoder = NewDecoder()
	}
	if r.currency == "" {
		r.currency = defaultCurrency
	}
	if r.missingPrice == "" {
		r.missingPrice = MissingPriceZero
	}
	if r.priceTimeout <= 0 {
		r.priceTimeout = defaultPriceTimeout
	}
	if r.paymentTimeout <= 0 {
		r.paymentTimeout = defaultPaymentTimeout
	}
	return r, nil
}

// Decoder exposes the request decoder used by the resolver.
func (r *Resolver) Decoder() *Decoder { return r.decoder }

// Resolve validates req, prices it from the store, and requests an
// authorization for the total. Every failure is a *common.AppError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := otel.Tracer("checkout.Resolver").Start(ctx, "Resolver.Resolve")
	defer span.End()

	checkoutID := uuid.NewString()
	logger := r.loggerFor(ctx).With().Str("checkout_id", checkoutID).Logger()
	span.SetAttributes(attribute.String("checkout.id", checkoutID), attribute.Int("checkout.lines", len(req.Cart)))

	defer func() {
		result := "success"
		if err != nil {
			result = resultLabel(err)
			span.SetStatus(codes.Error, result)
		}
		obs.ObserveCheckout(result, res.Amount)
	}()

	req, err = r.decoder.Validate(req)
	if err != nil {
		return Result{}, err
	}

	lines := make([]pricing.Line, len(req.Cart))
	for i, ln := range req.Cart {
		lines[i] = pricing.Line{ProductID: string(ln.ProductID), Qty: ln.Qty}
	}

	table, err := r.lookupPrices(ctx, pricing.DistinctIDs(lines))
	if err != nil {
		logger.Error().Err(err).Msg("price lookup failed")
		return Result{}, collaboratorFailure("Error fetching products", err)
	}

	amount, err := pricing.ComputeAmount(lines, table, r.shippingCents)
	if err != nil {
		logger.Warn().Err(err).Msg("cart amount not representable")
		return Result{}, invalidAmount("Invalid cart amount", err)
	}
	if len(amount.Unknown) > 0 {
		evt := logger.Warn().Strs("product_ids", amount.Unknown).Str("policy", string(r.missingPrice))
		if r.missingPrice == MissingPriceReject {
			evt.Msg("unknown products rejected")
			return Result{}, invalidRequest("Unknown products in cart: " + strings.Join(amount.Unknown, ", "))
		}
		evt.Msg("unknown products priced at zero")
	}
	if amount.Total <= 0 {
		logger.Warn().Int64("total", amount.Total).Int64("subtotal", amount.Subtotal).Msg("non-positive cart amount")
		return Result{}, invalidAmount("Invalid cart amount", nil)
	}
	span.SetAttributes(attribute.Int64("checkout.amount", amount.Total))

	authReq := payment.AuthorizationRequest{
		Amount:       amount.Total,
		Currency:     r.currency,
		ReceiptEmail: req.Email(),
		Metadata:     map[string]string{"checkout_id": checkoutID},
	}
	if key, ok := common.IdempotencyKey(ctx); ok {
		authReq.IdempotencyKey = key
	}
	auth, err := r.authorize(ctx, authReq)
	if err != nil {
		logger.Error().Err(err).Int64("amount", amount.Total).Msg("payment authorization failed")
		return Result{}, collaboratorFailure("Payment authorization failed", err)
	}
	if auth.ClientSecret == "" {
		logger.Error().Str("intent_id", auth.ID).Msg("provider returned empty client secret")
		return Result{}, collaboratorFailure("Payment authorization failed", errors.New("empty client secret"))
	}

	logger.Info().
		Str("intent_id", auth.ID).
		Str("provider", auth.Provider).
		Int64("amount", amount.Total).
		Str("currency", r.currency).
		Int("lines", len(lines)).
		Msg("payment intent created")

	return Result{
		ClientSecret: auth.ClientSecret,
		IntentID:     auth.ID,
		Provider:     auth.Provider,
		Amount:       amount.Total,
		Currency:     r.currency,
	}, nil
}

func (r *Resolver) lookupPrices(ctx context.Context, ids []string) (pricing.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, r.priceTimeout)
	defer cancel()
	start := time.Now()
	table, err := r.prices.LookupPrices(ctx, ids)
	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
	}
	obs.ObservePriceLookup(result, obs.DurationMillis(time.Since(start)))
	return table, err
}

func (r *Resolver) authorize(ctx context.Context, req payment.AuthorizationRequest) (payment.Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, r.paymentTimeout)
	defer cancel()
	return r.payments.CreateAuthorization(ctx, req)
}

func (r *Resolver) loggerFor(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return r.logger
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrCollaboratorFailure):
		return "collaborator_failure"
	default:
		return "error"
	}
}
