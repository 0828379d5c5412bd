package voucher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

var now = time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func teaCart() []pricing.LineItem {
	return []pricing.LineItem{
		{Key: "l1", ProductID: "green", CategoryID: "tea", UnitPrice: 4000, Quantity: 2},
		{Key: "l2", ProductID: "cookie", CategoryID: "snacks", UnitPrice: 2000, Quantity: 1},
	}
}

func save20() *voucher.Coupon {
	expires := now.Add(24 * time.Hour)
	return &voucher.Coupon{
		ID:                "cpn-save20",
		Code:              "SAVE20",
		ExpiresAt:         &expires,
		UsageLimit:        intPtr(100),
		PerUserLimit:      intPtr(1),
		MinSubtotal:       5000,
		Effect:            pricing.Percent(2000),
		CombinesWithRules: false,
	}
}

func TestValidateAcceptsNormalisedCode(t *testing.T) {
	applied, err := voucher.Validate(save20(), "  save20 ", teaCart(), voucher.History{}, now)
	require.NoError(t, err)
	require.Equal(t, "cpn-save20", applied.CouponID)
	require.Equal(t, "SAVE20", applied.Code)
	require.Equal(t, pricing.Percent(2000), applied.Effect)
}

func TestValidateRejections(t *testing.T) {
	past := now.Add(-time.Second)
	cases := []struct {
		name   string
		mutate func(c *voucher.Coupon)
		code   string
		usage  voucher.History
		cart   []pricing.LineItem
		reason voucher.Reason
		err    error
	}{
		{
			name:   "unknown code",
			code:   "SAVE30",
			reason: voucher.ReasonUnknownCode,
			err:    voucher.ErrUnknownCode,
		},
		{
			name:   "blank code",
			code:   "   ",
			reason: voucher.ReasonUnknownCode,
			err:    voucher.ErrUnknownCode,
		},
		{
			name:   "expired",
			mutate: func(c *voucher.Coupon) { c.ExpiresAt = &past },
			reason: voucher.ReasonExpired,
			err:    voucher.ErrExpired,
		},
		{
			name:   "global usage exhausted",
			usage:  voucher.History{TotalUses: 100},
			reason: voucher.ReasonUsageLimitExceeded,
			err:    voucher.ErrUsageLimitExceeded,
		},
		{
			name:   "zero usage limit",
			mutate: func(c *voucher.Coupon) { c.UsageLimit = intPtr(0) },
			reason: voucher.ReasonUsageLimitExceeded,
			err:    voucher.ErrUsageLimitExceeded,
		},
		{
			name:   "per user exhausted",
			usage:  voucher.History{TotalUses: 3, UserUses: 1},
			reason: voucher.ReasonPerUserLimitExceeded,
			err:    voucher.ErrPerUserLimitExceeded,
		},
		{
			name:   "below minimum subtotal",
			mutate: func(c *voucher.Coupon) { c.MinSubtotal = 10_001 },
			reason: voucher.ReasonBelowMinimumSubtotal,
			err:    voucher.ErrBelowMinimumSubtotal,
		},
		{
			name:   "no applicable category",
			mutate: func(c *voucher.Coupon) { c.Categories = []string{"coffee"} },
			reason: voucher.ReasonNoApplicableCategoryItems,
			err:    voucher.ErrNoApplicableCategoryItems,
		},
		{
			name:   "empty cart below minimum",
			cart:   []pricing.LineItem{},
			reason: voucher.ReasonBelowMinimumSubtotal,
			err:    voucher.ErrBelowMinimumSubtotal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := save20()
			if tc.mutate != nil {
				tc.mutate(c)
			}
			code := tc.code
			if code == "" {
				code = "SAVE20"
			}
			cart := tc.cart
			if cart == nil {
				cart = teaCart()
			}
			applied, err := voucher.Validate(c, code, cart, tc.usage, now)
			require.Error(t, err)
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, voucher.Applied{}, applied)

			reason, ok := voucher.ReasonOf(err)
			require.True(t, ok)
			require.Equal(t, tc.reason, reason)
		})
	}
}

func TestValidateExpiryIsInclusive(t *testing.T) {
	c := save20()
	c.ExpiresAt = &now
	_, err := voucher.Validate(c, "SAVE20", teaCart(), voucher.History{}, now)
	require.NoError(t, err)

	_, err = voucher.Validate(c, "SAVE20", teaCart(), voucher.History{}, now.Add(time.Nanosecond))
	require.ErrorIs(t, err, voucher.ErrExpired)
}

func TestValidateExpiredCouponReportsExpired(t *testing.T) {
	yesterday := now.Add(-24 * time.Hour)
	c := &voucher.Coupon{ID: "cpn-exp", Code: "EXPIRED1", ExpiresAt: &yesterday, Effect: pricing.AmountOffEffect(500)}
	_, err := voucher.Validate(c, "EXPIRED1", teaCart(), voucher.History{}, now)

	var rej *voucher.Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, voucher.ReasonExpired, rej.Reason)
	require.Equal(t, "cpn-exp", rej.CouponID)
}

func TestValidateNilCouponIsUnknown(t *testing.T) {
	_, err := voucher.Validate(nil, "SAVE20", teaCart(), voucher.History{}, now)
	require.ErrorIs(t, err, voucher.ErrUnknownCode)
}

func TestValidateUnlimitedPerUser(t *testing.T) {
	c := save20()
	c.PerUserLimit = intPtr(0)
	_, err := voucher.Validate(c, "SAVE20", teaCart(), voucher.History{UserUses: 42}, now)
	require.NoError(t, err)
}

func TestValidateAnonymousCartAgainstPerUserLimit(t *testing.T) {
	_, err := voucher.Validate(save20(), "SAVE20", teaCart(), voucher.History{Anonymous: true}, now)
	require.ErrorIs(t, err, voucher.ErrPerUserLimitExceeded)

	open := save20()
	open.PerUserLimit = nil
	_, err = voucher.Validate(open, "SAVE20", teaCart(), voucher.History{Anonymous: true}, now)
	require.NoError(t, err)
}

func TestAppliedTouches(t *testing.T) {
	lines := teaCart()
	scoped := voucher.Applied{Categories: []string{"tea"}}
	require.True(t, scoped.Touches(lines[0]))
	require.False(t, scoped.Touches(lines[1]))

	wide := voucher.Applied{}
	require.True(t, wide.Touches(lines[1]))
}
