package pricing

import (
	"errors"
	"fmt"
)

// EffectKind tags the discount variant carried by an Effect.
type EffectKind string

const (
	// PercentOff multiplies the current price by (1 - pct).
	PercentOff EffectKind = "percent_off"
	// AmountOff subtracts a fixed amount, floored at zero.
	AmountOff EffectKind = "amount_off"
	// FixedUnitPrice overrides the unit price and ends the discount pipeline for the line.
	FixedUnitPrice EffectKind = "fixed_unit_price"
)

// ErrInvalidEffect is returned when an effect is malformed.
var ErrInvalidEffect = errors.New("pricing: invalid effect")

// Effect is the discount shape shared by pricing rules and coupons. Only the
// field matching Kind is meaningful.
type Effect struct {
	Kind       EffectKind `json:"kind" yaml:"kind" validate:"required,oneof=percent_off amount_off fixed_unit_price"`
	PercentBps int32      `json:"percent_bps,omitempty" yaml:"percent_bps" validate:"gte=0,lte=10000"`
	Amount     Money      `json:"amount,omitempty" yaml:"amount" validate:"gte=0"`
	UnitPrice  Money      `json:"unit_price,omitempty" yaml:"unit_price" validate:"gte=0"`
}

// Percent builds a percentage-off effect from basis points.
func Percent(bps int32) Effect { return Effect{Kind: PercentOff, PercentBps: bps} }

// AmountOffEffect builds a fixed-amount-off effect.
func AmountOffEffect(amount Money) Effect { return Effect{Kind: AmountOff, Amount: amount} }

// UnitPriceEffect builds a fixed unit price override.
func UnitPriceEffect(price Money) Effect { return Effect{Kind: FixedUnitPrice, UnitPrice: price} }

// Validate checks the effect without relying on struct tags.
func (e Effect) Validate() error {
	switch e.Kind {
	case PercentOff:
		if e.PercentBps < 0 || e.PercentBps > BasisPoints {
			return fmt.Errorf("%w: percent_bps %d out of range", ErrInvalidEffect, e.PercentBps)
		}
	case AmountOff:
		if e.Amount < 0 {
			return fmt.Errorf("%w: negative amount", ErrInvalidEffect)
		}
	case FixedUnitPrice:
		if e.UnitPrice < 0 {
			return fmt.Errorf("%w: negative unit price", ErrInvalidEffect)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEffect, e.Kind)
	}
	return nil
}

// Terminal reports whether applying the effect ends the pipeline for a line.
func (e Effect) Terminal() bool { return e.Kind == FixedUnitPrice }

// PercentDiscount returns the discount that brings current down to
// current*(1-bps), floored to whole minor units.
func PercentDiscount(current Money, bps int32) Money {
	if current <= 0 || bps <= 0 {
		return 0
	}
	if bps >= BasisPoints {
		return current
	}
	remaining, _ := mulDiv(current, Money(BasisPoints-int64(bps)), BasisPoints)
	return current - remaining
}

// UnitPriceDiscount returns the discount produced by overriding the unit price
// of a line. An override above the current price yields no discount.
func UnitPriceDiscount(current Money, unitPrice Money, quantity int) Money {
	if current <= 0 {
		return 0
	}
	if quantity < 0 {
		quantity = 0
	}
	if unitPrice < 0 {
		unitPrice = 0
	}
	target := mulSaturating(unitPrice, Money(quantity))
	if target >= current {
		return 0
	}
	return current - target
}
