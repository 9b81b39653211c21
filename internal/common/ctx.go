package common

import "context"

type ctxKey string

const idempotencyKey ctxKey = "http/idempotency-key"

// WithIdempotencyKey stores the request's idempotency token on the context.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

// IdempotencyKey extracts the Idempotency-Key from the context if present.
func IdempotencyKey(ctx context.Context) (string, bool) {
	v := ctx.Value(idempotencyKey)
	if v == nil {
		return "", false
	}
	key, ok := v.(string)
	return key, ok && key != ""
}
