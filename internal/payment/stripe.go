package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-checkout/internal/obs"
)

const providerStripe = "stripe"

// Stripe creates PaymentIntents. The backend is built once by the process
// entry point; nothing is stored in stripe's package globals.
type Stripe struct {
	Client paymentintent.Client
}

// StripeConfig configures NewStripe.
type StripeConfig struct {
	SecretKey string
	// HTTPTimeout bounds a single API call on the transport level.
	HTTPTimeout time.Duration
	// BaseURL overrides the API endpoint, used against stripe-mock.
	BaseURL string
	Logger  zerolog.Logger
}

// NewStripe builds a Stripe authorizer with network retries disabled so a
// checkout never creates more than one intent.
func NewStripe(cfg StripeConfig) (Stripe, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return Stripe{}, errors.New("stripe secret key is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     zerologLeveled{logger: cfg.Logger.With().Str("component", "stripe").Logger()},
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return Stripe{Client: paymentintent.Client{B: backend, Key: cfg.SecretKey}}, nil
}

// CreateAuthorization creates a PaymentIntent with automatic payment methods.
func (s Stripe) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	ctx, span := otel.Tracer("payment.Stripe").Start(ctx, "Stripe.CreatePaymentIntent")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.Int64("payment.amount", req.Amount),
			attribute.String("payment.currency", req.Currency),
			attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.intent.result", result),
		)
		obs.ObservePaymentIntent(providerStripe, result)
	}()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.Client.New(params)
	if err != nil {
		span.RecordError(err)
		return Authorization{}, describeStripeError(err)
	}
	result = "success"
	return Authorization{Provider: providerStripe, ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func describeStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("stripe %s (status %d, code %q): %w", se.Type, se.HTTPStatusCode, se.Code, err)
	}
	return fmt.Errorf("stripe: %w", err)
}

// zerologLeveled adapts zerolog to stripe.LeveledLoggerInterface.
type zerologLeveled struct {
	logger zerolog.Logger
}

func (l zerologLeveled) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l zerologLeveled) Infof(format string, v ...interface{})  { l.logger.Debug().Msgf(format, v...) }
func (l zerologLeveled) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l zerologLeveled) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
