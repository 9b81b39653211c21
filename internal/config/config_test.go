package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"APP_ENV":                "",
		"PORT":                   "",
		"DATABASE_URL":           "postgres://localhost/shop",
		"REDIS_URL":              "",
		"PRICE_STORE":            "",
		"PRICING_MISSING_POLICY": "",
		"PAYMENT_PROVIDER":       "",
		"STRIPE_SECRET_KEY":      "sk_test_123",
		"CURRENCY_CODE":          "",
		"SHIPPING_FLAT_CENTS":    "",
		"PRICE_LOOKUP_TIMEOUT":   "",
		"RATE_LIMIT_STRATEGY":    "",
		"CATALOG_CACHE_TTL":      "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.HTTPAddr())
	require.Equal(t, "postgres", cfg.PriceStore)
	require.Equal(t, "stripe", cfg.PaymentProvider)
	require.Equal(t, "eur", cfg.CurrencyCode)
	require.Equal(t, int64(1000), cfg.ShippingFlatCents)
	require.Equal(t, "zero", cfg.MissingPricePolicy)
	require.Equal(t, 3*time.Second, cfg.PriceLookupTimeout)
	require.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	require.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":8081"
	env["PRICING_MISSING_POLICY"] = "REJECT"
	env["SHIPPING_FLAT_CENTS"] = "499"
	env["PRICE_LOOKUP_TIMEOUT"] = "750ms"
	env["RATE_LIMIT_STRATEGY"] = "fixed"
	env["CATALOG_CACHE_TTL"] = "5m"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":8081", cfg.HTTPAddr())
	require.Equal(t, "reject", cfg.MissingPricePolicy)
	require.Equal(t, int64(499), cfg.ShippingFlatCents)
	require.Equal(t, 750*time.Millisecond, cfg.PriceLookupTimeout)
	require.Equal(t, "fixed", cfg.RateLimitStrategy)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database":    {"DATABASE_URL": ""},
		"missing stripe key":  {"STRIPE_SECRET_KEY": ""},
		"bad policy":          {"PRICING_MISSING_POLICY": "round"},
		"bad store":           {"PRICE_STORE": "sqlite"},
		"bad currency":        {"CURRENCY_CODE": "euro"},
		"non positive ship":   {"SHIPPING_FLAT_CENTS": "0"},
		"mock in production":  {"PAYMENT_PROVIDER": "mock", "APP_ENV": "production"},
		"bad limiter":         {"RATE_LIMIT_STRATEGY": "token"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range overrides {
				env[k] = v
			}
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}

func TestStaticStoreNeedsNoDatabase(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	env["PRICE_STORE"] = "static"
	env["PAYMENT_PROVIDER"] = "mock"
	env["STRIPE_SECRET_KEY"] = ""
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "static", cfg.PriceStore)
}
