package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	MigrateOnStart     bool

	PriceStore         string
	PriceCacheTTL      time.Duration
	PriceLookupTimeout time.Duration
	MissingPricePolicy string
	CatalogCacheTTL    time.Duration

	CurrencyCode      string
	ShippingFlatCents int64

	PaymentProvider string
	StripeSecretKey string
	StripeAPIBase   string
	PaymentTimeout  time.Duration

	IdempotencyTTL    time.Duration
	RateLimitStrategy string
	RateLimitMax      int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "5000"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),

		PriceStore:         strings.ToLower(valueOrDefault(k.String("PRICE_STORE"), "postgres")),
		PriceCacheTTL:      parseDuration(k.String("PRICE_CACHE_TTL"), "60s"),
		PriceLookupTimeout: parseDuration(k.String("PRICE_LOOKUP_TIMEOUT"), "3s"),
		MissingPricePolicy: strings.ToLower(valueOrDefault(k.String("PRICING_MISSING_POLICY"), "zero")),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),

		CurrencyCode:      strings.ToLower(valueOrDefault(k.String("CURRENCY_CODE"), "eur")),
		ShippingFlatCents: parseInt64(k.String("SHIPPING_FLAT_CENTS"), 1000),

		PaymentProvider: strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "stripe")),
		StripeSecretKey: strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeAPIBase:   strings.TrimSpace(k.String("STRIPE_API_BASE")),
		PaymentTimeout:  parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),

		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitStrategy: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		RateLimitMax:      int(parseInt64(k.String("RATE_LIMIT_MAX"), 20)),
		RateLimitWindow:   parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		MaxBodyBytes:      parseInt64(k.String("MAX_BODY_BYTES"), 64<<10),

		BreakerMinRequests:  int(parseInt64(k.String("BREAKER_MIN_REQUESTS"), 10)),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PriceStore {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when PRICE_STORE=postgres")
		}
	case "static":
	default:
		return fmt.Errorf("PRICE_STORE must be postgres or static, got %q", c.PriceStore)
	}
	switch c.PaymentProvider {
	case "stripe":
		if c.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	case "mock":
		if c.IsProduction() {
			return errors.New("PAYMENT_PROVIDER=mock is not allowed in production")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be stripe or mock, got %q", c.PaymentProvider)
	}
	switch c.MissingPricePolicy {
	case "zero", "reject":
	default:
		return fmt.Errorf("PRICING_MISSING_POLICY must be zero or reject, got %q", c.MissingPricePolicy)
	}
	switch c.RateLimitStrategy {
	case "sliding", "fixed":
	default:
		return fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding or fixed, got %q", c.RateLimitStrategy)
	}
	if len(c.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY_CODE must be a three letter ISO code, got %q", c.CurrencyCode)
	}
	if c.ShippingFlatCents <= 0 {
		return errors.New("SHIPPING_FLAT_CENTS must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "5000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt64(value string, fallback int64) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
