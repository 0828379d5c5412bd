package voucher

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var (
	// ErrUnknownCode is returned when the submitted code does not name the coupon.
	ErrUnknownCode = errors.New("voucher unknown code")
	// ErrExpired is returned when the voucher has already expired.
	ErrExpired = errors.New("voucher expired")
	// ErrUsageLimitExceeded indicates the voucher has exhausted the global usage quota.
	ErrUsageLimitExceeded = errors.New("voucher usage limit reached")
	// ErrPerUserLimitExceeded indicates the caller has exceeded the per-user allowance.
	ErrPerUserLimitExceeded = errors.New("voucher per-user usage limit reached")
	// ErrBelowMinimumSubtotal indicates the cart total did not meet the voucher requirement.
	ErrBelowMinimumSubtotal = errors.New("voucher minimum spend not met")
	// ErrNoApplicableCategoryItems indicates no cart line is in the voucher's categories.
	ErrNoApplicableCategoryItems = errors.New("voucher has no applicable items")
)

// Reason is the stable, user-facing identifier of a rejection.
type Reason string

const (
	ReasonUnknownCode               Reason = "UNKNOWN_CODE"
	ReasonExpired                   Reason = "EXPIRED"
	ReasonUsageLimitExceeded        Reason = "USAGE_LIMIT_EXCEEDED"
	ReasonPerUserLimitExceeded      Reason = "PER_USER_LIMIT_EXCEEDED"
	ReasonBelowMinimumSubtotal      Reason = "BELOW_MINIMUM_SUBTOTAL"
	ReasonNoApplicableCategoryItems Reason = "NO_APPLICABLE_CATEGORY_ITEMS"
)

var reasonErrors = map[Reason]error{
	ReasonUnknownCode:               ErrUnknownCode,
	ReasonExpired:                   ErrExpired,
	ReasonUsageLimitExceeded:        ErrUsageLimitExceeded,
	ReasonPerUserLimitExceeded:      ErrPerUserLimitExceeded,
	ReasonBelowMinimumSubtotal:      ErrBelowMinimumSubtotal,
	ReasonNoApplicableCategoryItems: ErrNoApplicableCategoryItems,
}

// Rejection explains why a coupon cannot be applied to a cart.
type Rejection struct {
	Reason   Reason `json:"reason"`
	CouponID string `json:"coupon_id,omitempty"`
	Code     string `json:"code"`
}

func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	return r.Unwrap().Error()
}

// Unwrap exposes the sentinel matching the reason.
func (r *Rejection) Unwrap() error {
	if r == nil {
		return nil
	}
	if err, ok := reasonErrors[r.Reason]; ok {
		return err
	}
	return ErrUnknownCode
}

// Coupon captures the runtime constraints of a code-gated discount.
type Coupon struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Code string `json:"code" yaml:"code" validate:"required"`
	// ExpiresAt is the last valid instant; nil never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at"`
	// UsageLimit caps total redemptions; nil is unlimited.
	UsageLimit *int `json:"usage_limit,omitempty" yaml:"usage_limit" validate:"omitempty,gte=0"`
	// PerUserLimit caps redemptions per user; nil falls back to the service default.
	PerUserLimit      *int           `json:"per_user_limit,omitempty" yaml:"per_user_limit" validate:"omitempty,gte=0"`
	MinSubtotal       pricing.Money  `json:"min_subtotal,omitempty" yaml:"min_subtotal" validate:"gte=0"`
	Categories        []string       `json:"categories,omitempty" yaml:"categories"`
	Effect            pricing.Effect `json:"effect" yaml:"effect"`
	CombinesWithRules bool           `json:"combines_with_rules" yaml:"combines_with_rules"`
}

// History is the redemption count for a coupon, as seen by the caller.
// Anonymous marks a cart with no user, whose per-user count cannot be known.
type History struct {
	TotalUses int  `json:"total_uses"`
	UserUses  int  `json:"user_uses"`
	Anonymous bool `json:"anonymous,omitempty"`
}

// Applied is a validated coupon effect handed to the discount resolver.
type Applied struct {
	CouponID          string         `json:"coupon_id"`
	Code              string         `json:"code"`
	Effect            pricing.Effect `json:"effect"`
	CombinesWithRules bool           `json:"combines_with_rules"`
	Categories        []string       `json:"categories,omitempty"`
}

// Touches reports whether the coupon's effect applies to the line.
func (a Applied) Touches(line pricing.LineItem) bool {
	return line.InCategories(pricing.CategorySet(a.Categories))
}

// NormalizeCode trims and upper-cases a code for comparison and storage keys.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the submitted code against coupon and the cart. It returns
// either an Applied effect or a *Rejection, never both. Usage counters are
// only read.
func Validate(coupon *Coupon, code string, cart []pricing.LineItem, usage History, now time.Time) (Applied, error) {
	submitted := NormalizeCode(code)
	if coupon == nil || submitted == "" || NormalizeCode(coupon.Code) != submitted {
		return Applied{}, &Rejection{Reason: ReasonUnknownCode, Code: submitted}
	}
	reject := func(reason Reason) (Applied, error) {
		return Applied{}, &Rejection{Reason: reason, CouponID: coupon.ID, Code: submitted}
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return reject(ReasonExpired)
	}
	if coupon.UsageLimit != nil && usage.TotalUses >= *coupon.UsageLimit {
		return reject(ReasonUsageLimitExceeded)
	}
	if coupon.PerUserLimit != nil && *coupon.PerUserLimit > 0 && (usage.Anonymous || usage.UserUses >= *coupon.PerUserLimit) {
		return reject(ReasonPerUserLimitExceeded)
	}
	if pricing.CartSubtotal(cart) < coupon.MinSubtotal {
		return reject(ReasonBelowMinimumSubtotal)
	}
	if set := pricing.CategorySet(coupon.Categories); len(set) > 0 {
		found := false
		for _, l := range cart {
			if l.Quantity > 0 && l.InCategories(set) {
				found = true
				break
			}
		}
		if !found {
			return reject(ReasonNoApplicableCategoryItems)
		}
	}
	return Applied{
		CouponID:          coupon.ID,
		Code:              NormalizeCode(coupon.Code),
		Effect:            coupon.Effect,
		CombinesWithRules: coupon.CombinesWithRules,
		Categories:        append([]string(nil), coupon.Categories...),
	}, nil
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
