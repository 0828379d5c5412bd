package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/bundle"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/quote"
	"github.com/noah-isme/toko-pricing/internal/rules"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

// ErrUsageStoreRequired is returned when settling without a shared counter store.
var ErrUsageStoreRequired = errors.New("REDIS_URL is required to settle coupon usage")

// Dependencies enumerates the collaborators one pricing process needs.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *obs.PricingMetrics
	Redis    *redis.Client
	DB       *pgxpool.Pool
	Catalog  catalog.Loader
	Vouchers *voucher.Service
	Now      func() time.Time
}

// New wires loaders, stores and metrics from cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	registry := prometheus.NewRegistry()
	d := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  obs.NewPricingMetrics(cfg.MetricsNamespace, registry),
		Now:      time.Now,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.Redis = redis.NewClient(opts)
		if err := redisotel.InstrumentTracing(d.Redis); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var source catalog.Loader
	if cfg.CatalogFile != "" {
		source = catalog.FileLoader{Path: cfg.CatalogFile}
	} else {
		db, err := catalog.OpenPostgres(ctx, cfg.DatabaseURL, obs.PGXTracer{})
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.DB = db
		source = catalog.PostgresLoader{DB: db}
	}
	if d.Redis != nil {
		source = catalog.CachedLoader{
			Source: source,
			Cache:  catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
			Key:    cfg.CatalogCacheKey,
			Lock:   &lock.Locker{R: d.Redis},
			Logger: &d.Logger,
		}
	}
	d.Catalog = source

	var coupons voucher.CouponSource
	if cfg.CouponsFile != "" {
		src, err := voucher.LoadFile(cfg.CouponsFile)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		coupons = src
	} else {
		coupons, _ = voucher.NewStaticSource(nil)
	}
	var usage voucher.UsageStore = voucher.NewMemoryUsageStore()
	if d.Redis != nil {
		usage = voucher.RedisUsageStore{R: d.Redis, Prefix: cfg.UsageKeyPrefix}
	}
	d.Vouchers = &voucher.Service{
		Coupons:             coupons,
		Usage:               usage,
		DefaultPerUserLimit: cfg.VoucherPerUserLimit,
		Now:                 func() time.Time { return d.Now() },
	}
	return d, nil
}

// Engine returns a quote engine bound to the process logger and metrics.
func (d *Dependencies) Engine() *quote.Engine {
	return &quote.Engine{
		Logger:     d.Logger.With().Str("currency", d.Config.CurrencyCode).Logger(),
		Metrics:    d.Metrics,
		Tracer:     obs.Tracer(),
		TaxRateBps: d.Config.TaxRateBps,
	}
}

// Snapshot loads the current catalog.
func (d *Dependencies) Snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	return catalog.LoadSnapshot(ctx, d.Catalog)
}

// Rules loads the active rule pack.
func (d *Dependencies) Rules(ctx context.Context) ([]rules.Rule, error) {
	return rules.FileLoader{Path: d.Config.RulesFile}.Load(ctx)
}

// BundleRequest asks for a cart bundle built from a template.
type BundleRequest struct {
	TemplateID string             `json:"template_id"`
	Selections []bundle.Selection `json:"selections"`
}

// CartRequest is the cart document accepted by the quote command.
type CartRequest struct {
	UserID   string          `json:"user_id"`
	Code     string          `json:"code"`
	Items    []quote.Item    `json:"items"`
	Bundles  []BundleRequest `json:"bundles"`
	Shipping pricing.Money   `json:"shipping"`
}

// Quote prices a cart document end to end: snapshot, bundle composition,
// coupon lookup, then the engine.
func (d *Dependencies) Quote(ctx context.Context, req CartRequest) (quote.Result, error) {
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return quote.Result{}, err
	}
	rs, err := d.Rules(ctx)
	if err != nil {
		return quote.Result{}, err
	}

	composer := bundle.NewComposer(snap)
	bundles := make([]bundle.CartBundle, 0, len(req.Bundles))
	for _, br := range req.Bundles {
		cb, err := composer.Compose(br.TemplateID, br.Selections)
		if err != nil {
			return quote.Result{}, err
		}
		bundles = append(bundles, cb)
	}

	var (
		coupon *voucher.Coupon
		usage  voucher.History
	)
	if voucher.NormalizeCode(req.Code) != "" {
		coupon, usage, err = d.Vouchers.Lookup(ctx, req.Code, req.UserID)
		if err != nil {
			return quote.Result{}, err
		}
	}

	return d.Engine().Price(ctx, quote.Request{
		Snapshot: snap,
		Items:    req.Items,
		Bundles:  bundles,
		Rules:    rs,
		Coupon:   coupon,
		Code:     req.Code,
		Usage:    usage,
		Shipping: req.Shipping,
		Now:      d.Now(),
	})
}

// Settle records a committed redemption against the shared counter store.
func (d *Dependencies) Settle(ctx context.Context, code, userID, orderID string) (bool, error) {
	if d.Redis == nil {
		return false, ErrUsageStoreRequired
	}
	return d.Vouchers.Settle(ctx, code, userID, orderID)
}

// FlushMetrics writes the registry to the configured textfile, if any.
func (d *Dependencies) FlushMetrics() error {
	if d.Config.MetricsTextfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(d.Config.MetricsTextfile, d.Registry)
}

// Close releases database and redis handles.
func (d *Dependencies) Close() error {
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		return d.Redis.Close()
	}
	return nil
}
