package bundle

import (
	"strconv"

	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// LineItems flattens a cart bundle into pricing lines, one per non-empty slot.
// The bundle is re-checked against the template in snap: a changed fixed price
// or slot count is ErrTemplateChanged, and every choice must still satisfy its
// slot. A bundle-level fixed price is spread over the lines by catalog value so
// the lines always sum to it; otherwise a slot-level fixed price replaces that
// slot's subtotal.
func LineItems(snap *catalog.Snapshot, cb CartBundle) ([]pricing.LineItem, error) {
	tmpl, ok := snap.Bundle(cb.TemplateID)
	if !ok {
		return nil, slotError(cb.TemplateID, -1, "", 0, ErrUnknownBundle)
	}
	if len(tmpl.Slots) != len(cb.Choices) || !sameMoney(tmpl.FixedPrice, cb.FixedPrice) {
		return nil, slotError(cb.TemplateID, -1, "", 0, ErrTemplateChanged)
	}

	lines := make([]pricing.LineItem, 0, len(cb.Choices))
	for i, choice := range cb.Choices {
		if err := validateChoice(snap, cb.TemplateID, i, tmpl.Slots[i], choice); err != nil {
			return nil, err
		}
		if choice.Quantity == 0 {
			continue
		}
		product, _ := snap.Product(choice.ProductID)
		line := pricing.LineItem{
			Key:        cb.ID + "/" + strconv.Itoa(i),
			ProductID:  product.ID,
			CategoryID: product.CategoryID,
			UnitPrice:  product.Price,
			Quantity:   choice.Quantity,
			BundleID:   cb.ID,
		}
		if cb.FixedPrice == nil {
			line.FixedSubtotal = copyMoney(tmpl.Slots[i].FixedPrice)
		}
		lines = append(lines, line)
	}

	if cb.FixedPrice != nil && len(lines) > 0 {
		weights := make([]pricing.Money, len(lines))
		for i, l := range lines {
			weights[i] = l.Subtotal()
		}
		shares := pricing.Allocate(*cb.FixedPrice, weights)
		for i := range lines {
			share := shares[i]
			lines[i].FixedSubtotal = &share
		}
	}
	return lines, nil
}
