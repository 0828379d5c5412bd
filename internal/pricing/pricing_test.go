package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestPercentDiscountFloorsToMinorUnits(t *testing.T) {
	cases := []struct {
		current Money
		bps     int32
		want    Money
	}{
		{10_000, 1000, 1000},
		{999, 1000, 100}, // 999*0.9 = 899.1 -> 899
		{1, 5000, 1},     // 0.5 floors to 0 remaining
		{0, 1000, 0},
		{500, 0, 0},
		{500, 10000, 500},
	}
	for _, tc := range cases {
		if got := PercentDiscount(tc.current, tc.bps); got != tc.want {
			t.Fatalf("PercentDiscount(%d, %d) = %d, want %d", tc.current, tc.bps, got, tc.want)
		}
	}
}

func TestUnitPriceDiscountNeverRaisesPrice(t *testing.T) {
	if got := UnitPriceDiscount(1000, 300, 2); got != 400 {
		t.Fatalf("expected 400 discount, got %d", got)
	}
	if got := UnitPriceDiscount(1000, 800, 2); got != 0 {
		t.Fatalf("expected no discount for higher override, got %d", got)
	}
}

func TestAllocateSumsToAmount(t *testing.T) {
	parts := Allocate(100, []Money{1, 1, 1})
	if parts[0]+parts[1]+parts[2] != 100 {
		t.Fatalf("allocation lost minor units: %v", parts)
	}
	if parts[0] != 34 || parts[1] != 33 || parts[2] != 33 {
		t.Fatalf("unexpected allocation %v", parts)
	}
	even := Allocate(5, []Money{0, 0})
	if even[0] != 3 || even[1] != 2 {
		t.Fatalf("unexpected even split %v", even)
	}
}

func TestEffectValidate(t *testing.T) {
	if err := Percent(10001).Validate(); !errors.Is(err, ErrInvalidEffect) {
		t.Fatalf("expected ErrInvalidEffect, got %v", err)
	}
	if err := (Effect{Kind: "bogo"}).Validate(); !errors.Is(err, ErrInvalidEffect) {
		t.Fatalf("expected ErrInvalidEffect for unknown kind, got %v", err)
	}
	if err := AmountOffEffect(500).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLineSubtotalPrefersFixedSubtotal(t *testing.T) {
	fixed := Money(1500)
	line := LineItem{UnitPrice: 1000, Quantity: 3, FixedSubtotal: &fixed}
	if line.Subtotal() != 1500 {
		t.Fatalf("expected fixed subtotal, got %d", line.Subtotal())
	}
	line.FixedSubtotal = nil
	if line.Subtotal() != 3000 {
		t.Fatalf("expected 3000, got %d", line.Subtotal())
	}
}

func TestSummarize(t *testing.T) {
	b := PriceBreakdown{OriginalTotal: 100_000, TotalDiscount: 20_000, FinalTotal: 80_000}
	s := Summarize(b, 1100, 15_000)
	if s.Tax != 8_800 {
		t.Fatalf("expected tax 8800, got %d", s.Tax)
	}
	if s.Total != 80_000+8_800+15_000 {
		t.Fatalf("unexpected total %d", s.Total)
	}
}

func TestArithmeticNearInt64Limits(t *testing.T) {
	const half = Money(math.MaxInt64 / 2)
	if got := PercentDiscount(half, 1000); got != 461168601842738791 {
		t.Fatalf("PercentDiscount overflowed: %d", got)
	}

	parts := Allocate(half, []Money{math.MaxInt64 / 4, math.MaxInt64 / 4})
	if parts[0] != 2305843009213693952 || parts[1] != 2305843009213693951 {
		t.Fatalf("unexpected allocation %v", parts)
	}

	if got := UnitPriceDiscount(1000, math.MaxInt64, 2); got != 0 {
		t.Fatalf("expected saturated override to give no discount, got %d", got)
	}
	if got := (LineItem{UnitPrice: math.MaxInt64, Quantity: 2}).Subtotal(); got != math.MaxInt64 {
		t.Fatalf("expected saturated subtotal, got %d", got)
	}

	s := Summarize(PriceBreakdown{OriginalTotal: half}, 1100, 0)
	if s.Tax != 507285462027012669 {
		t.Fatalf("unexpected tax %d", s.Tax)
	}
}
