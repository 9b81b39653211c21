package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
	"github.com/stretchr/testify/require"
)

func newStripeServer(t *testing.T, status int, body string, form *url.Values, headers *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		parsed, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		if form != nil {
			*form = parsed
		}
		if headers != nil {
			*headers = r.Header.Clone()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStripeCreateAuthorization(t *testing.T) {
	var form url.Values
	var headers http.Header
	srv := newStripeServer(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","amount":2000,"currency":"eur"}`, &form, &headers)

	s, err := NewStripe(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	auth, err := s.CreateAuthorization(context.Background(), AuthorizationRequest{
		Amount:         2000,
		Currency:       "EUR",
		ReceiptEmail:   "buyer@example.com",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"checkout_id": "c-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123_secret_abc", auth.ClientSecret)
	require.Equal(t, "pi_123", auth.ID)
	require.Equal(t, "stripe", auth.Provider)

	require.Equal(t, "2000", form.Get("amount"))
	require.Equal(t, "eur", form.Get("currency"))
	require.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
	require.Equal(t, "buyer@example.com", form.Get("receipt_email"))
	require.Equal(t, "c-1", form.Get("metadata[checkout_id]"))
	require.Equal(t, "idem-1", headers.Get("Idempotency-Key"))
}

func TestStripeOmitsEmptyReceiptEmail(t *testing.T) {
	var form url.Values
	srv := newStripeServer(t, http.StatusOK, `{"id":"pi_1","object":"payment_intent","client_secret":"s"}`, &form, nil)
	s, err := NewStripe(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.CreateAuthorization(context.Background(), AuthorizationRequest{Amount: 1000, Currency: "eur"})
	require.NoError(t, err)
	_, present := form["receipt_email"]
	require.False(t, present)
}

func TestStripeProviderRejection(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","code":"email_invalid","message":"Invalid email address"}}`)
	}))
	t.Cleanup(srv.Close)

	s, err := NewStripe(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.CreateAuthorization(context.Background(), AuthorizationRequest{Amount: 1000, Currency: "eur", ReceiptEmail: "bad"})
	require.Error(t, err)
	var se *stripe.Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, stripe.ErrorCodeEmailInvalid, se.Code)
	require.Equal(t, 1, calls)
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := NewStripe(StripeConfig{})
	require.Error(t, err)
}

func TestMockAuthorization(t *testing.T) {
	auth, err := Mock{}.CreateAuthorization(context.Background(), AuthorizationRequest{Amount: 1000, Currency: "eur"})
	require.NoError(t, err)
	require.Regexp(t, `^pi_mock_[0-9a-f]{32}_secret_[0-9a-f]{32}$`, auth.ClientSecret)
	require.Contains(t, auth.ClientSecret, auth.ID)

	_, err = Mock{}.CreateAuthorization(context.Background(), AuthorizationRequest{Amount: 0, Currency: "eur"})
	require.Error(t, err)
}
