package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis. A key may be
// used once per TTL and client; replays are answered with 409 before reaching
// the handler. Keys of requests that did not succeed are released so the
// caller can retry.
//
// Keys are scoped by client IP, so two shoppers who happen to pick the same
// key never collide. The scoped digest, not the raw header, is what handlers
// see through IdempotencyKey and what is forwarded to the payment provider.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// scopedKey digests the client IP and the caller's key into one hex token.
func scopedKey(clientIP, key string) string {
	sum := sha256.Sum256([]byte(clientIP + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func redisKey(scoped string) string { return "idem:" + scoped }

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scoped := scopedKey(ClientIP(r), header)
		ctx := WithIdempotencyKey(r.Context(), scoped)
		if i.R == nil {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		key := redisKey(scoped)
		ok, err := i.R.SetNX(ctx, key, "locked", i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error")
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request")
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		completed := false
		defer func() {
			// a panic leaves completed false and also releases the key
			if !completed || sw.status >= http.StatusBadRequest {
				_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
			}
		}()
		next.ServeHTTP(sw, r.WithContext(ctx))
		completed = true
	})
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}
