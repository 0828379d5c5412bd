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

// Config holds pricing engine configuration loaded from the environment.
type Config struct {
	AppEnv string

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsTextfile  string
	EnableTracing    bool
	OTLPEndpoint     string
	TracingRatio     float64

	DatabaseURL string
	RedisURL    string

	CatalogFile     string
	RulesFile       string
	CouponsFile     string
	CatalogCacheKey string
	CatalogCacheTTL time.Duration

	VoucherPerUserLimit int
	UsageKeyPrefix      string
	TaxRateBps          int
	CurrencyCode        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		LogFormat:           valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:            valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:    valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_pricing"),
		MetricsTextfile:     strings.TrimSpace(k.String("OBS_METRICS_TEXTFILE")),
		EnableTracing:       parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:        strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingRatio:        parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		CatalogFile:         strings.TrimSpace(k.String("CATALOG_FILE")),
		RulesFile:           strings.TrimSpace(k.String("RULES_FILE")),
		CouponsFile:         strings.TrimSpace(k.String("COUPONS_FILE")),
		CatalogCacheKey:     valueOrDefault(k.String("CATALOG_CACHE_KEY"), "pricing:catalog:snapshot"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		VoucherPerUserLimit: parseInt(k.String("VOUCHER_PER_USER_LIMIT"), 1),
		UsageKeyPrefix:      valueOrDefault(k.String("USAGE_KEY_PREFIX"), "pricing:voucher"),
		TaxRateBps:          parseInt(k.String("PRICING_TAX_RATE_BPS"), 0),
		CurrencyCode:        strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "IDR")),
	}

	if cfg.CatalogFile == "" && cfg.DatabaseURL == "" {
		return nil, errors.New("CATALOG_FILE or DATABASE_URL is required")
	}
	if cfg.RulesFile == "" {
		return nil, errors.New("RULES_FILE is required")
	}
	if cfg.TaxRateBps < 0 || cfg.TaxRateBps > 10000 {
		return nil, fmt.Errorf("PRICING_TAX_RATE_BPS must be within 0..10000, got %d", cfg.TaxRateBps)
	}
	if cfg.TracingRatio <= 0 || cfg.TracingRatio > 1 {
		cfg.TracingRatio = 1
	}
	if cfg.VoucherPerUserLimit < 0 {
		cfg.VoucherPerUserLimit = 0
	}

	return cfg, nil
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

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
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
