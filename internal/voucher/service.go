package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrCouponNotFound is returned by coupon sources for unknown codes.
var ErrCouponNotFound = errors.New("voucher not found")

// CouponSource resolves coupons by normalised code.
type CouponSource interface {
	CouponByCode(ctx context.Context, code string) (Coupon, error)
}

// UsageStore holds redemption counters. Record must be idempotent per order id.
type UsageStore interface {
	Usage(ctx context.Context, couponID, userID string) (History, error)
	Record(ctx context.Context, couponID, userID, orderID string) (bool, error)
}

// Service wires coupon lookup and usage bookkeeping around Validate.
type Service struct {
	Coupons             CouponSource
	Usage               UsageStore
	DefaultPerUserLimit int
	Now                 func() time.Time
}

// Lookup loads the coupon for code and its current usage. An unknown code is
// not an error: the returned coupon is nil and Validate rejects it. A blank
// userID yields an anonymous History, which per-user-limited coupons reject.
func (s *Service) Lookup(ctx context.Context, code string, userID string) (*Coupon, History, error) {
	if s == nil || s.Coupons == nil {
		return nil, History{}, errors.New("voucher service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, History{}, nil
	}
	coupon, err := s.Coupons.CouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, History{}, nil
		}
		return nil, History{}, err
	}
	if coupon.PerUserLimit == nil && s.DefaultPerUserLimit > 0 {
		limit := s.DefaultPerUserLimit
		coupon.PerUserLimit = &limit
	}
	userID = strings.TrimSpace(userID)
	var usage History
	if s.Usage != nil {
		usage, err = s.Usage.Usage(ctx, coupon.ID, userID)
		if err != nil {
			return nil, History{}, fmt.Errorf("voucher usage: %w", err)
		}
	}
	usage.Anonymous = userID == ""
	return &coupon, usage, nil
}

// Preview performs a dry-run evaluation for the given cart.
func (s *Service) Preview(ctx context.Context, code string, userID string, cart []pricing.LineItem) (Applied, error) {
	coupon, usage, err := s.Lookup(ctx, code, userID)
	if err != nil {
		return Applied{}, err
	}
	return Validate(coupon, code, cart, usage, s.now())
}

// Settle records a redemption once the order is committed. Repeated calls for
// the same order are no-ops; the boolean reports whether this call counted.
func (s *Service) Settle(ctx context.Context, code string, userID string, orderID string) (bool, error) {
	if s == nil || s.Coupons == nil || s.Usage == nil {
		return false, errors.New("voucher service not configured")
	}
	normalized := NormalizeCode(code)
	orderID = strings.TrimSpace(orderID)
	if normalized == "" || orderID == "" {
		return false, nil
	}
	coupon, err := s.Coupons.CouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.Usage.Record(ctx, coupon.ID, strings.TrimSpace(userID), orderID)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
