package quote_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/toko-pricing/internal/bundle"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/quote"
	"github.com/noah-isme/toko-pricing/internal/rules"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

var now = time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

func snapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	boxPrice := pricing.Money(9_000)
	snap, err := catalog.NewSnapshot(catalog.Data{
		Version:    "v1",
		Categories: []catalog.Category{{ID: "tea", Name: "Tea"}, {ID: "snacks", Name: "Snacks"}},
		Products: []catalog.Product{
			{ID: "green", CategoryID: "tea", Price: 2_500, Active: true},
			{ID: "black", CategoryID: "tea", Price: 5_000, Active: true},
			{ID: "cookie", CategoryID: "snacks", Price: 2_000, Active: true},
			{ID: "retired", CategoryID: "snacks", Price: 1_000, Active: false},
		},
		Bundles: []catalog.CuratedBundle{{
			ID:         "tea-box",
			Name:       "Tea Box",
			FixedPrice: &boxPrice,
			Slots: []catalog.Slot{
				{Allowed: []string{"green", "black"}, Default: "green", MinQty: 1, MaxQty: 3},
				{Allowed: []string{"cookie"}, Default: "cookie", MinQty: 1, MaxQty: 2},
			},
		}},
	})
	require.NoError(t, err)
	return snap
}

type harness struct {
	engine   *quote.Engine
	metrics  *obs.PricingMetrics
	logs     *bytes.Buffer
	recorder *tracetest.SpanRecorder
}

func newHarness(t *testing.T) harness {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logs := &bytes.Buffer{}
	metrics := obs.NewPricingMetrics("toko", prometheus.NewRegistry())
	return harness{
		engine: &quote.Engine{
			Logger:     zerolog.New(logs),
			Metrics:    metrics,
			Tracer:     tp.Tracer("test"),
			TaxRateBps: 1_100,
		},
		metrics:  metrics,
		logs:     logs,
		recorder: recorder,
	}
}

func stackableRules() []rules.Rule {
	return []rules.Rule{
		{ID: "A", Priority: 1, Effect: pricing.Percent(1_000), Stackable: true},
		{ID: "B", Priority: 2, Effect: pricing.AmountOffEffect(500), Stackable: true},
	}
}

func hundredDollarItems() []quote.Item {
	return []quote.Item{{ProductID: "green", Quantity: 2}, {ProductID: "black", Quantity: 1}}
}

func TestPriceRulesOnly(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Price(context.Background(), quote.Request{
		Snapshot: snapshot(t),
		Items:    hundredDollarItems(),
		Rules:    stackableRules(),
		Shipping: 1_000,
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(10_000), res.Breakdown.OriginalTotal)
	require.Equal(t, pricing.Money(8_500), res.Breakdown.FinalTotal)
	require.Equal(t, []string{"A", "B"}, res.Matched)
	require.Nil(t, res.Applied)
	require.Nil(t, res.Rejection)

	require.Equal(t, pricing.Summary{Subtotal: 10_000, Discount: 1_500, Tax: 935, Shipping: 1_000, Total: 10_435}, res.Summary)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Quotes.WithLabelValues(obs.ResultPriced)))
	require.Contains(t, h.logs.String(), `"message":"pricing_quote"`)

	names := map[string]bool{}
	for _, s := range h.recorder.Ended() {
		names[s.Name()] = true
	}
	require.True(t, names["Quote.Price"])
	require.True(t, names["Quote.MatchRules"])
	require.True(t, names["Quote.Resolve"])
	require.False(t, names["Quote.ValidateCoupon"])
}

func TestPriceCouponReplacesRules(t *testing.T) {
	h := newHarness(t)
	coupon := &voucher.Coupon{ID: "cpn-save20", Code: "SAVE20", Effect: pricing.Percent(2_000)}
	res, err := h.engine.Price(context.Background(), quote.Request{
		Snapshot: snapshot(t),
		Items:    hundredDollarItems(),
		Rules:    stackableRules(),
		Coupon:   coupon,
		Code:     "save20",
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(8_000), res.Breakdown.FinalTotal)
	require.NotNil(t, res.Applied)
	require.Equal(t, "cpn-save20", res.Breakdown.CouponID)
	require.Zero(t, res.Breakdown.DiscountsFrom(pricing.SourceRule, "A"))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CouponValidations.WithLabelValues("applied")))
}

func TestPriceExpiredCouponFallsBackToRules(t *testing.T) {
	h := newHarness(t)
	yesterday := now.Add(-24 * time.Hour)
	coupon := &voucher.Coupon{ID: "cpn-exp", Code: "EXPIRED1", ExpiresAt: &yesterday, Effect: pricing.Percent(5_000)}
	res, err := h.engine.Price(context.Background(), quote.Request{
		Snapshot: snapshot(t),
		Items:    hundredDollarItems(),
		Rules:    stackableRules(),
		Coupon:   coupon,
		Code:     "EXPIRED1",
		Now:      now,
	})
	require.NoError(t, err)
	require.Nil(t, res.Applied)
	require.NotNil(t, res.Rejection)
	require.Equal(t, voucher.ReasonExpired, res.Rejection.Reason)
	require.Equal(t, pricing.Money(8_500), res.Breakdown.FinalTotal)
	require.Empty(t, res.Breakdown.CouponID)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Quotes.WithLabelValues(obs.ResultRejected)))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CouponValidations.WithLabelValues(string(voucher.ReasonExpired))))
}

func TestPriceUnknownCode(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Price(context.Background(), quote.Request{
		Snapshot: snapshot(t),
		Items:    hundredDollarItems(),
		Code:     "NOPE",
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, voucher.ReasonUnknownCode, res.Rejection.Reason)
	require.Equal(t, pricing.Money(10_000), res.Breakdown.FinalTotal)
}

func TestPriceRejectsBadItems(t *testing.T) {
	h := newHarness(t)
	snap := snapshot(t)

	_, err := h.engine.Price(context.Background(), quote.Request{Snapshot: snap, Items: []quote.Item{{ProductID: "retired", Quantity: 1}}})
	require.ErrorIs(t, err, quote.ErrUnknownProduct)

	_, err = h.engine.Price(context.Background(), quote.Request{Snapshot: snap, Items: []quote.Item{{ProductID: "ghost", Quantity: 1}}})
	require.ErrorIs(t, err, quote.ErrUnknownProduct)

	_, err = h.engine.Price(context.Background(), quote.Request{Snapshot: snap, Items: []quote.Item{{ProductID: "green", Quantity: 0}}})
	require.ErrorIs(t, err, quote.ErrInvalidQuantity)

	_, err = h.engine.Price(context.Background(), quote.Request{})
	require.ErrorIs(t, err, quote.ErrNoSnapshot)

	require.Equal(t, 4.0, testutil.ToFloat64(h.metrics.Quotes.WithLabelValues(obs.ResultError)))
}

func TestPriceWithCartBundle(t *testing.T) {
	h := newHarness(t)
	snap := snapshot(t)
	composer := bundle.Composer{Snapshot: snap, NewID: func() string { return "cb-1" }}
	cb, err := composer.Compose("tea-box", []bundle.Selection{{SlotIndex: 0, ProductID: "black", Quantity: 2}})
	require.NoError(t, err)

	teaOnly := rules.Rule{
		ID:         "tea-10",
		Priority:   1,
		Conditions: rules.Conditions{Categories: []string{"tea"}},
		Effect:     pricing.Percent(1_000),
		Stackable:  true,
	}
	res, err := h.engine.Price(context.Background(), quote.Request{
		Snapshot: snap,
		Items:    []quote.Item{{ProductID: "cookie", Quantity: 1}},
		Bundles:  []bundle.CartBundle{cb},
		Rules:    []rules.Rule{teaOnly},
		Now:      now,
	})
	require.NoError(t, err)
	require.Len(t, res.Breakdown.Lines, 3)
	// bundle lines share the 9000 fixed price by catalog value (10000 : 2000)
	require.Equal(t, pricing.Money(2_000+9_000), res.Breakdown.OriginalTotal)
	require.Equal(t, "cb-1", res.Breakdown.Lines[1].Line.BundleID)
	require.Equal(t, pricing.Money(7_500), res.Breakdown.Lines[1].Original)
	require.Equal(t, pricing.Money(6_750), res.Breakdown.Lines[1].Final)
	require.Equal(t, pricing.Money(1_500), res.Breakdown.Lines[2].Final)
}

func TestPriceCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.Price(ctx, quote.Request{Snapshot: snapshot(t), Items: hundredDollarItems()})
	require.ErrorIs(t, err, context.Canceled)
}
