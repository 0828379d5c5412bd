package pricing

// Summary aggregates order-level pricing components derived from a breakdown.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Tax      Money `json:"tax"`
	Shipping Money `json:"shipping"`
	Total    Money `json:"total"`
}

// Summarize computes order totals for the order-placement collaborator. Tax is
// charged on the discounted amount; shipping is added untaxed.
func Summarize(b PriceBreakdown, taxBps int, shipping Money) Summary {
	subtotal := b.OriginalTotal
	discount := b.TotalDiscount
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	taxable := subtotal - discount
	if taxable < 0 {
		taxable = 0
	}
	if taxBps < 0 {
		taxBps = 0
	}
	if taxBps > BasisPoints {
		taxBps = BasisPoints
	}
	if shipping < 0 {
		shipping = 0
	}
	tax, _ := mulDiv(taxable, Money(taxBps), BasisPoints)
	total := taxable + tax + shipping
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}
}
