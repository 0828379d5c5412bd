package quote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-pricing/internal/bundle"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/rules"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

var (
	// ErrNoSnapshot is returned when a request carries no catalog snapshot.
	ErrNoSnapshot = errors.New("quote: catalog snapshot required")
	// ErrUnknownProduct is returned for standalone items missing from the catalog or inactive.
	ErrUnknownProduct = errors.New("quote: unknown or inactive product")
	// ErrInvalidQuantity is returned for standalone items with a non-positive quantity.
	ErrInvalidQuantity = errors.New("quote: quantity must be positive")
)

// Item is a standalone product in the cart.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Request is everything one price computation needs. Coupon and Usage are
// already loaded by the caller; Code is what the shopper typed.
type Request struct {
	Snapshot *catalog.Snapshot
	Items    []Item
	Bundles  []bundle.CartBundle
	Rules    []rules.Rule
	Coupon   *voucher.Coupon
	Code     string
	Usage    voucher.History
	Shipping pricing.Money
	Now      time.Time
}

// Result carries the breakdown and how it was reached. At most one of Applied
// and Rejection is set, and neither when no code was submitted.
type Result struct {
	Breakdown pricing.PriceBreakdown `json:"breakdown"`
	Summary   pricing.Summary        `json:"summary"`
	Matched   []string               `json:"matched_rules"`
	Applied   *voucher.Applied       `json:"coupon,omitempty"`
	Rejection *voucher.Rejection     `json:"rejection,omitempty"`
}

// Engine runs the pricing pipeline for one cart.
type Engine struct {
	Logger     zerolog.Logger
	Metrics    *obs.PricingMetrics
	Tracer     trace.Tracer
	TaxRateBps int
}

// Lines flattens standalone items and cart bundles into pricing lines, in
// cart order: items first, then bundles.
func Lines(snap *catalog.Snapshot, items []Item, bundles []bundle.CartBundle) ([]pricing.LineItem, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	lines := make([]pricing.LineItem, 0, len(items)+len(bundles))
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d (%s)", ErrInvalidQuantity, i, it.ProductID)
		}
		p, ok := snap.Product(it.ProductID)
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, it.ProductID)
		}
		lines = append(lines, pricing.LineItem{
			Key:        "item/" + strconv.Itoa(i),
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			UnitPrice:  p.Price,
			Quantity:   it.Quantity,
		})
	}
	for _, cb := range bundles {
		bl, err := bundle.LineItems(snap, cb)
		if err != nil {
			return nil, err
		}
		lines = append(lines, bl...)
	}
	return lines, nil
}

// Price computes the breakdown for req. Composition problems are returned as
// errors with no partial result; a rejected coupon is reported in the result
// and the cart is priced with rules only.
func (e *Engine) Price(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.tracer().Start(ctx, "Quote.Price")
	defer span.End()

	start := time.Now()
	res, err := e.price(ctx, req)
	outcome := obs.ResultPriced
	switch {
	case err != nil:
		outcome = obs.ResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Rejection != nil:
		outcome = obs.ResultRejected
	}
	e.Metrics.ObserveQuote(outcome, time.Since(start))

	logger := obs.WithTrace(ctx, e.Logger)
	if err != nil {
		logger.Debug().Err(err).Msg("pricing_quote_failed")
		return Result{}, err
	}

	capped := 0
	for _, l := range res.Breakdown.Lines {
		if l.DiscountCappedAtZero {
			capped++
			logger.Warn().
				Err(pricing.ErrInvariantViolation).
				Str("line", l.Line.Key).
				Int64("original", l.Original).
				Msg("discount_capped_at_zero")
		}
	}
	e.Metrics.ObserveCapped(capped)

	span.SetAttributes(
		attribute.Int("quote.lines", len(res.Breakdown.Lines)),
		attribute.Int("quote.matched_rules", len(res.Matched)),
		attribute.Int64("quote.original_total", res.Breakdown.OriginalTotal),
		attribute.Int64("quote.final_total", res.Breakdown.FinalTotal),
		attribute.String("quote.result", outcome),
	)
	evt := logger.Info().
		Str("catalog_version", req.Snapshot.Version()).
		Int("lines", len(res.Breakdown.Lines)).
		Strs("matched_rules", res.Matched).
		Int64("original_total", res.Breakdown.OriginalTotal).
		Int64("final_total", res.Breakdown.FinalTotal).
		Int64("duration_us", time.Since(start).Microseconds())
	if res.Applied != nil {
		evt = evt.Str("coupon_id", res.Applied.CouponID)
	}
	if res.Rejection != nil {
		evt = evt.Str("coupon_rejection", string(res.Rejection.Reason))
	}
	evt.Msg("pricing_quote")
	return res, nil
}

func (e *Engine) price(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cart, err := Lines(req.Snapshot, req.Items, req.Bundles)
	if err != nil {
		return Result{}, err
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	var (
		matched   []rules.Rule
		applied   *voucher.Applied
		rejection *voucher.Rejection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, span := e.tracer().Start(gctx, "Quote.MatchRules")
		defer span.End()
		matched = rules.Match(req.Rules, cart, now)
		span.SetAttributes(attribute.Int("rules.candidates", len(req.Rules)), attribute.Int("rules.matched", len(matched)))
		return nil
	})
	if voucher.NormalizeCode(req.Code) != "" {
		g.Go(func() error {
			_, span := e.tracer().Start(gctx, "Quote.ValidateCoupon")
			defer span.End()
			a, err := voucher.Validate(req.Coupon, req.Code, cart, req.Usage, now)
			if err != nil {
				if !errors.As(err, &rejection) {
					return err
				}
				span.SetAttributes(attribute.String("coupon.rejection", string(rejection.Reason)))
				e.Metrics.ObserveCoupon(string(rejection.Reason))
				return nil
			}
			applied = &a
			span.SetAttributes(attribute.String("coupon.id", a.CouponID))
			e.Metrics.ObserveCoupon("applied")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	_, span := e.tracer().Start(ctx, "Quote.Resolve")
	breakdown := discount.Resolve(cart, matched, applied)
	span.End()

	ids := make([]string, 0, len(matched))
	for _, r := range matched {
		ids = append(ids, r.ID)
	}
	return Result{
		Breakdown: breakdown,
		Summary:   pricing.Summarize(breakdown, e.TaxRateBps, req.Shipping),
		Matched:   ids,
		Applied:   applied,
		Rejection: rejection,
	}, nil
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer(obs.TracerName)
}
