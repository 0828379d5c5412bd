package pricing

import (
	"errors"
	"math"
	"math/bits"
	"sort"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// BasisPoints is the scale used for percentages: 10000 equals 100%.
const BasisPoints = 10000

// ErrInvariantViolation marks a computation that would have produced a negative
// price. It is recovered by clamping and only surfaces in logs.
var ErrInvariantViolation = errors.New("pricing: internal invariant violation")

// mulDiv returns a*b/c and a*b%c with a 128-bit intermediate product. a and b
// must be non-negative, c positive, and b <= c so the quotient fits in a.
func mulDiv(a, b, c Money) (Money, Money) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, r := bits.Div64(hi, lo, uint64(c))
	return Money(q), Money(r)
}

// mulSaturating returns a*b for non-negative operands, saturating at MaxInt64.
func mulSaturating(a, b Money) Money {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return math.MaxInt64
	}
	return Money(lo)
}

// Allocate splits amount across weights proportionally using the largest
// remainder method, so the parts always sum to amount. Ties go to the lower
// index. When every weight is zero the amount is spread evenly. Weights must
// sum to at most MaxInt64.
func Allocate(amount Money, weights []Money) []Money {
	if len(weights) == 0 {
		return nil
	}
	allocations := make([]Money, len(weights))
	if amount == 0 {
		return allocations
	}
	if amount < 0 {
		for i, part := range Allocate(-amount, weights) {
			allocations[i] = -part
		}
		return allocations
	}
	var totalWeight Money
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		base := amount / Money(len(weights))
		remainder := amount % Money(len(weights))
		for i := range weights {
			allocations[i] = base
			if remainder > 0 {
				allocations[i]++
				remainder--
			}
		}
		return allocations
	}

	type share struct {
		idx       int
		remainder Money
	}
	shares := make([]share, len(weights))
	var distributed Money
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		part, rem := mulDiv(amount, w, totalWeight)
		allocations[i] = part
		distributed += part
		shares[i] = share{idx: i, remainder: rem}
	}

	remainder := amount - distributed
	if remainder <= 0 {
		return allocations
	}
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].remainder == shares[j].remainder {
			return shares[i].idx < shares[j].idx
		}
		return shares[i].remainder > shares[j].remainder
	})
	for _, s := range shares {
		if remainder == 0 {
			break
		}
		allocations[s.idx]++
		remainder--
	}
	return allocations
}
