package pricing

// SourceKind identifies what produced a discount.
type SourceKind string

const (
	SourceRule   SourceKind = "rule"
	SourceCoupon SourceKind = "coupon"
)

// AppliedDiscount records one discount step on a line.
type AppliedDiscount struct {
	Source SourceKind `json:"source"`
	ID     string     `json:"id"`
	Amount Money      `json:"amount"`
}

// LineBreakdown is the audited price of one line.
type LineBreakdown struct {
	Line      LineItem          `json:"line"`
	Original  Money             `json:"original"`
	Discounts []AppliedDiscount `json:"discounts"`
	Final     Money             `json:"final"`
	// DiscountCappedAtZero is set when the line was clamped to zero.
	DiscountCappedAtZero bool `json:"discount_capped_at_zero,omitempty"`
}

// Discount returns the total discount recorded on the line.
func (l LineBreakdown) Discount() Money {
	return l.Original - l.Final
}

// PriceBreakdown is the engine output.
type PriceBreakdown struct {
	Lines         []LineBreakdown `json:"lines"`
	OriginalTotal Money           `json:"original_total"`
	TotalDiscount Money           `json:"total_discount"`
	FinalTotal    Money           `json:"final_total"`
	CouponID      string          `json:"coupon_id,omitempty"`
}

// Capped reports whether any line had to be clamped.
func (b PriceBreakdown) Capped() bool {
	for _, l := range b.Lines {
		if l.DiscountCappedAtZero {
			return true
		}
	}
	return false
}

// DiscountsFrom sums the discounts attributed to a given source id.
func (b PriceBreakdown) DiscountsFrom(source SourceKind, id string) Money {
	var total Money
	for _, l := range b.Lines {
		for _, d := range l.Discounts {
			if d.Source == source && d.ID == id {
				total += d.Amount
			}
		}
	}
	return total
}
