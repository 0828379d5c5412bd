package discount

import (
	"sort"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/rules"
	"github.com/noah-isme/toko-pricing/internal/voucher"
)

// lineState tracks one line through the pipeline.
type lineState struct {
	item      pricing.LineItem
	original  pricing.Money
	current   pricing.Money
	consumed  bool
	terminal  bool
	discounts []pricing.AppliedDiscount
}

// Resolve combines matched rules and an optional validated coupon into a
// price breakdown. It is deterministic and does not mutate its inputs.
func Resolve(cart []pricing.LineItem, matched []rules.Rule, coupon *voucher.Applied) pricing.PriceBreakdown {
	states := make([]*lineState, len(cart))
	for i, item := range cart {
		sub := item.Subtotal()
		states[i] = &lineState{item: item, original: sub, current: sub}
	}

	applyRules := coupon == nil || coupon.CombinesWithRules
	if applyRules {
		for _, r := range Surviving(matched) {
			targets := make([]*lineState, 0, len(states))
			for _, st := range states {
				if st.consumed || st.terminal || !r.Touches(st.item) {
					continue
				}
				targets = append(targets, st)
			}
			if len(targets) == 0 {
				continue
			}
			apply(targets, r.Effect, pricing.SourceRule, r.ID)
			if !r.Stackable {
				for _, st := range targets {
					st.consumed = true
				}
			}
		}
	}

	var out pricing.PriceBreakdown
	if coupon != nil {
		targets := make([]*lineState, 0, len(states))
		for _, st := range states {
			if st.terminal || !coupon.Touches(st.item) {
				continue
			}
			targets = append(targets, st)
		}
		if len(targets) > 0 {
			apply(targets, coupon.Effect, pricing.SourceCoupon, coupon.CouponID)
		}
		out.CouponID = coupon.CouponID
	}

	out.Lines = make([]pricing.LineBreakdown, 0, len(states))
	for _, st := range states {
		lb := finalize(st)
		out.OriginalTotal += lb.Original
		out.FinalTotal += lb.Final
		out.Lines = append(out.Lines, lb)
	}
	out.TotalDiscount = out.OriginalTotal - out.FinalTotal
	return out
}

// Surviving filters matched rules down to at most one per exclusion group and
// returns them in application order.
func Surviving(matched []rules.Rule) []rules.Rule {
	winners := make(map[string]rules.Rule)
	out := make([]rules.Rule, 0, len(matched))
	for _, r := range matched {
		if r.ExclusionGroup == "" {
			out = append(out, r)
			continue
		}
		best, ok := winners[r.ExclusionGroup]
		if !ok || before(r, best) {
			winners[r.ExclusionGroup] = r
		}
	}
	for _, r := range winners {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

func before(a, b rules.Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// apply runs one pipeline step over the target lines and records the amount
// taken from each, zero included.
func apply(targets []*lineState, effect pricing.Effect, source pricing.SourceKind, id string) {
	amounts := make([]pricing.Money, len(targets))
	switch effect.Kind {
	case pricing.PercentOff:
		for i, st := range targets {
			amounts[i] = pricing.PercentDiscount(st.current, effect.PercentBps)
		}
	case pricing.AmountOff:
		weights := make([]pricing.Money, len(targets))
		var available pricing.Money
		for i, st := range targets {
			if st.current > 0 {
				weights[i] = st.current
				available += st.current
			}
		}
		total := effect.Amount
		if total > available {
			total = available
		}
		if total > 0 {
			amounts = pricing.Allocate(total, weights)
		}
	case pricing.FixedUnitPrice:
		for i, st := range targets {
			amounts[i] = pricing.UnitPriceDiscount(st.current, effect.UnitPrice, st.item.Quantity)
		}
	}
	for i, st := range targets {
		amt := amounts[i]
		if amt < 0 {
			amt = 0
		}
		st.current -= amt
		st.discounts = append(st.discounts, pricing.AppliedDiscount{Source: source, ID: id, Amount: amt})
		if effect.Terminal() {
			st.terminal = true
		}
	}
}

// finalize derives the line outcome from the recorded steps and clamps it into
// [0, original].
func finalize(st *lineState) pricing.LineBreakdown {
	lb := pricing.LineBreakdown{
		Line:      st.item,
		Original:  st.original,
		Discounts: st.discounts,
		Final:     st.current,
	}
	if lb.Discounts == nil {
		lb.Discounts = []pricing.AppliedDiscount{}
	}
	if lb.Final < 0 {
		lb.Final = 0
		lb.DiscountCappedAtZero = true
	}
	if lb.Final > lb.Original {
		lb.Final = lb.Original
	}
	return lb
}
