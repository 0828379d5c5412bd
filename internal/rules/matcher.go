package rules

import (
	"sort"
	"time"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Match returns the candidate rules whose conditions hold for cart at now,
// ordered by ascending priority with the rule id as tie-break. Candidates are
// not yet resolved against each other.
func Match(rules []Rule, cart []pricing.LineItem, now time.Time) []Rule {
	if len(rules) == 0 {
		return nil
	}
	subtotal := pricing.CartSubtotal(cart)
	var facts map[string]any

	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !activeAt(r.Conditions, now) {
			continue
		}
		if subtotal < r.Conditions.MinSubtotal {
			continue
		}
		if !quantityMet(r.Conditions, cart) {
			continue
		}
		if len(r.Conditions.When) > 0 {
			if facts == nil {
				facts = cartFacts(cart, subtotal)
			}
			if !evalPredicate(r.Conditions.When, facts) {
				continue
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].ID < out[j].ID
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

func activeAt(c Conditions, now time.Time) bool {
	if c.ActiveFrom != nil && now.Before(*c.ActiveFrom) {
		return false
	}
	if c.ActiveTo != nil && now.After(*c.ActiveTo) {
		return false
	}
	return true
}

func quantityMet(c Conditions, cart []pricing.LineItem) bool {
	set := pricing.CategorySet(c.Categories)
	if len(set) == 0 {
		return pricing.CartQuantity(cart, nil) >= c.MinQuantity
	}
	present := false
	for _, l := range cart {
		if l.Quantity > 0 && l.InCategories(set) {
			present = true
			break
		}
	}
	if !present {
		return false
	}
	return pricing.CartQuantity(cart, set) >= c.MinQuantity
}
