package pricing

// LineItem is a resolved cart line flattened from standalone products and
// cart bundles. It only lives for one computation.
type LineItem struct {
	Key        string `json:"key"`
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
	UnitPrice  Money  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	// BundleID is the owning cart bundle, empty for standalone products.
	BundleID string `json:"bundle_id,omitempty"`
	// FixedSubtotal replaces UnitPrice*Quantity for bundle-priced lines.
	FixedSubtotal *Money `json:"fixed_subtotal,omitempty"`
}

// Subtotal returns the undiscounted value of the line.
func (l LineItem) Subtotal() Money {
	if l.FixedSubtotal != nil {
		if *l.FixedSubtotal < 0 {
			return 0
		}
		return *l.FixedSubtotal
	}
	if l.Quantity <= 0 || l.UnitPrice <= 0 {
		return 0
	}
	return mulSaturating(l.UnitPrice, Money(l.Quantity))
}

// CartSubtotal sums line subtotals.
func CartSubtotal(lines []LineItem) Money {
	var total Money
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// CartQuantity sums line quantities, optionally restricted to a category set.
func CartQuantity(lines []LineItem, categories map[string]struct{}) int {
	total := 0
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if len(categories) > 0 {
			if _, ok := categories[l.CategoryID]; !ok {
				continue
			}
		}
		total += l.Quantity
	}
	return total
}

// CategorySet builds a lookup set from category ids, ignoring blanks.
func CategorySet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// InCategories reports whether the line belongs to the set. An empty set
// matches every line.
func (l LineItem) InCategories(set map[string]struct{}) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[l.CategoryID]
	return ok
}
