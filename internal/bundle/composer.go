package bundle

import (
	"github.com/google/uuid"

	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Selection picks a product and quantity for one template slot.
type Selection struct {
	SlotIndex int    `json:"slot_index"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Choice is the resolved content of one slot in a cart bundle.
type Choice struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartBundle is a shopper's validated instance of a curated bundle. It is a
// value: edits return a new CartBundle and leave the original untouched.
type CartBundle struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Choices    []Choice       `json:"choices"`
	FixedPrice *pricing.Money `json:"fixed_price,omitempty"`
}

// Change edits a single slot. Nil fields keep the current value.
type Change struct {
	SlotIndex int     `json:"slot_index"`
	ProductID *string `json:"product_id,omitempty"`
	Quantity  *int    `json:"quantity,omitempty"`
}

// Composer builds and edits cart bundles against a catalog snapshot.
type Composer struct {
	Snapshot *catalog.Snapshot
	NewID    func() string
}

// NewComposer returns a Composer generating random UUIDs for new bundles.
func NewComposer(snap *catalog.Snapshot) Composer {
	return Composer{Snapshot: snap, NewID: uuid.NewString}
}

// Compose validates selections against the template and builds a CartBundle.
// Slots without a selection fall back to their default product at minimum
// quantity; slots without a default must be selected explicitly.
func (c Composer) Compose(templateID string, selections []Selection) (CartBundle, error) {
	tmpl, ok := c.Snapshot.Bundle(templateID)
	if !ok {
		return CartBundle{}, slotError(templateID, -1, "", 0, ErrUnknownBundle)
	}

	chosen := make(map[int]Selection, len(selections))
	for _, sel := range selections {
		if sel.SlotIndex < 0 || sel.SlotIndex >= len(tmpl.Slots) {
			return CartBundle{}, slotError(templateID, sel.SlotIndex, sel.ProductID, sel.Quantity, ErrUnknownSlot)
		}
		if _, dup := chosen[sel.SlotIndex]; dup {
			return CartBundle{}, slotError(templateID, sel.SlotIndex, sel.ProductID, sel.Quantity, ErrDuplicateSlotSelection)
		}
		chosen[sel.SlotIndex] = sel
	}

	choices := make([]Choice, len(tmpl.Slots))
	for i, slot := range tmpl.Slots {
		sel, ok := chosen[i]
		if !ok {
			if slot.Default == "" {
				return CartBundle{}, slotError(templateID, i, "", 0, ErrMissingSlotSelection)
			}
			sel = Selection{SlotIndex: i, ProductID: slot.Default, Quantity: slot.MinQty}
		}
		choice := Choice{ProductID: sel.ProductID, Quantity: sel.Quantity}
		if err := validateChoice(c.Snapshot, templateID, i, slot, choice); err != nil {
			return CartBundle{}, err
		}
		choices[i] = choice
	}

	return CartBundle{
		ID:         c.newID(),
		TemplateID: tmpl.ID,
		Choices:    choices,
		FixedPrice: copyMoney(tmpl.FixedPrice),
	}, nil
}

// Edit applies change to a copy of existing. Only the changed slot is
// re-validated, together with the bundle-wide invariants: the template still
// exists with the same slot count and the same fixed price. On error the
// returned bundle is the zero value and existing is unchanged.
func (c Composer) Edit(existing CartBundle, change Change) (CartBundle, error) {
	tmpl, ok := c.Snapshot.Bundle(existing.TemplateID)
	if !ok {
		return CartBundle{}, slotError(existing.TemplateID, -1, "", 0, ErrUnknownBundle)
	}
	if len(tmpl.Slots) != len(existing.Choices) || !sameMoney(tmpl.FixedPrice, existing.FixedPrice) {
		return CartBundle{}, slotError(existing.TemplateID, -1, "", 0, ErrTemplateChanged)
	}
	if change.SlotIndex < 0 || change.SlotIndex >= len(tmpl.Slots) {
		return CartBundle{}, slotError(existing.TemplateID, change.SlotIndex, "", 0, ErrUnknownSlot)
	}

	choice := existing.Choices[change.SlotIndex]
	if change.ProductID != nil {
		choice.ProductID = *change.ProductID
	}
	if change.Quantity != nil {
		choice.Quantity = *change.Quantity
	}
	if err := validateChoice(c.Snapshot, existing.TemplateID, change.SlotIndex, tmpl.Slots[change.SlotIndex], choice); err != nil {
		return CartBundle{}, err
	}

	next := existing
	next.Choices = append([]Choice(nil), existing.Choices...)
	next.Choices[change.SlotIndex] = choice
	next.FixedPrice = copyMoney(existing.FixedPrice)
	return next, nil
}

func validateChoice(snap *catalog.Snapshot, bundleID string, idx int, slot catalog.Slot, choice Choice) error {
	product, ok := snap.Product(choice.ProductID)
	if !ok || !product.Active {
		return slotError(bundleID, idx, choice.ProductID, choice.Quantity, ErrUnknownProduct)
	}
	if !slot.Allows(choice.ProductID) {
		return slotError(bundleID, idx, choice.ProductID, choice.Quantity, ErrProductNotAllowedInSlot)
	}
	if choice.Quantity < slot.MinQty || choice.Quantity > slot.MaxQty {
		return slotError(bundleID, idx, choice.ProductID, choice.Quantity, ErrQuantityOutOfRange)
	}
	return nil
}

func (c Composer) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func copyMoney(v *pricing.Money) *pricing.Money {
	if v == nil {
		return nil
	}
	val := *v
	return &val
}

func sameMoney(a, b *pricing.Money) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
