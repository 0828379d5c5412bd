package obs

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Quote results.
const (
	ResultPriced   = "priced"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// PricingMetrics groups Prometheus collectors for the quote engine.
type PricingMetrics struct {
	Quotes            *prometheus.CounterVec
	CouponValidations *prometheus.CounterVec
	DiscountCapped    prometheus.Counter
	QuoteDuration     prometheus.Histogram
}

// NewPricingMetrics registers and returns pricing collectors. Registering twice
// against the same registry reuses the existing collectors.
func NewPricingMetrics(namespace string, reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PricingMetrics{
		Quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of price computations by result.",
		}, []string{"result"}),
		CouponValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validations_total",
			Help:      "Count of coupon validations by outcome.",
		}, []string{"outcome"}),
		DiscountCapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_capped_total",
			Help:      "Number of lines clamped to zero after discount composition.",
		}),
		QuoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_duration_ms",
			Help:      "Price computation latency in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}),
	}
	mustRegisterCollector(reg, m.Quotes, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Quotes = v
		}
	})
	mustRegisterCollector(reg, m.CouponValidations, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.CouponValidations = v
		}
	})
	mustRegisterCollector(reg, m.DiscountCapped, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.DiscountCapped = v
		}
	})
	mustRegisterCollector(reg, m.QuoteDuration, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Histogram); ok {
			m.QuoteDuration = v
		}
	})
	return m
}

// ObserveQuote records one computation. A nil receiver is a no-op.
func (m *PricingMetrics) ObserveQuote(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Quotes.WithLabelValues(result).Inc()
	m.QuoteDuration.Observe(DurationMillis(d))
}

// ObserveCoupon records a coupon validation outcome.
func (m *PricingMetrics) ObserveCoupon(outcome string) {
	if m == nil {
		return
	}
	m.CouponValidations.WithLabelValues(outcome).Inc()
}

// ObserveCapped adds n clamped lines.
func (m *PricingMetrics) ObserveCapped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DiscountCapped.Add(float64(n))
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register pricing metric: %w", err))
	}
}
