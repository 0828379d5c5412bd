package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"APP_ENV":                    "",
		"OBS_LOG_FORMAT":             "",
		"OBS_ENABLE_TRACING":         "",
		"OBS_TRACING_SAMPLING_RATIO": "",
		"DATABASE_URL":               "",
		"REDIS_URL":                  "",
		"CATALOG_FILE":               "catalog.yaml",
		"RULES_FILE":                 "rules.yaml",
		"CATALOG_CACHE_TTL":          "",
		"VOUCHER_PER_USER_LIMIT":     "",
		"PRICING_TAX_RATE_BPS":       "",
		"CURRENCY_CODE":              "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "json", cfg.LogFormat)
	require.False(t, cfg.EnableTracing)
	require.Equal(t, 1.0, cfg.TracingRatio)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, 1, cfg.VoucherPerUserLimit)
	require.Equal(t, "IDR", cfg.CurrencyCode)
	require.Zero(t, cfg.TaxRateBps)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["OBS_ENABLE_TRACING"] = "true"
	env["OBS_TRACING_SAMPLING_RATIO"] = "0.25"
	env["CATALOG_CACHE_TTL"] = "30s"
	env["VOUCHER_PER_USER_LIMIT"] = "3"
	env["PRICING_TAX_RATE_BPS"] = "1100"
	env["CURRENCY_CODE"] = "usd"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.EnableTracing)
	require.Equal(t, 0.25, cfg.TracingRatio)
	require.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	require.Equal(t, 3, cfg.VoucherPerUserLimit)
	require.Equal(t, 1100, cfg.TaxRateBps)
	require.Equal(t, "USD", cfg.CurrencyCode)
}

func TestLoadRequiresCatalogSource(t *testing.T) {
	env := baseEnv()
	env["CATALOG_FILE"] = ""
	_, err := config.LoadForTests(env)
	require.Error(t, err)

	env["DATABASE_URL"] = "postgres://localhost/toko"
	_, err = config.LoadForTests(env)
	require.NoError(t, err)
}

func TestLoadRejectsTaxOutOfRange(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE_BPS"] = "20000"
	_, err := config.LoadForTests(env)
	require.Error(t, err)
}
