package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProduct is returned when a selected product is missing or inactive.
	ErrUnknownProduct = errors.New("bundle: unknown product")
	// ErrProductNotAllowedInSlot is returned when a product is outside the slot's allowed set.
	ErrProductNotAllowedInSlot = errors.New("bundle: product not allowed in slot")
	// ErrQuantityOutOfRange is returned when a quantity is outside the slot's [min, max].
	ErrQuantityOutOfRange = errors.New("bundle: quantity out of range")
	// ErrMissingSlotSelection is returned when a slot without a default has no selection.
	ErrMissingSlotSelection = errors.New("bundle: missing slot selection")
	// ErrUnknownBundle is returned when the template id is not in the snapshot.
	ErrUnknownBundle = errors.New("bundle: unknown curated bundle")
	// ErrUnknownSlot is returned when a selection or change targets a slot the template lacks.
	ErrUnknownSlot = errors.New("bundle: unknown slot")
	// ErrDuplicateSlotSelection is returned when the same slot is selected twice.
	ErrDuplicateSlotSelection = errors.New("bundle: duplicate slot selection")
	// ErrTemplateChanged is returned when an edited bundle no longer lines up with its template.
	ErrTemplateChanged = errors.New("bundle: template changed")
)

// CompositionError reports an invalid bundle selection and names the slot.
// Slot is -1 for bundle-wide failures.
type CompositionError struct {
	BundleID  string
	Slot      int
	ProductID string
	Quantity  int
	Err       error
}

func (e *CompositionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Slot < 0 {
		return fmt.Sprintf("%v (bundle %s)", e.Err, e.BundleID)
	}
	switch {
	case errors.Is(e.Err, ErrQuantityOutOfRange):
		return fmt.Sprintf("%v: slot %d quantity %d (bundle %s)", e.Err, e.Slot, e.Quantity, e.BundleID)
	case e.ProductID != "":
		return fmt.Sprintf("%v: slot %d product %s (bundle %s)", e.Err, e.Slot, e.ProductID, e.BundleID)
	default:
		return fmt.Sprintf("%v: slot %d (bundle %s)", e.Err, e.Slot, e.BundleID)
	}
}

// Unwrap allows errors.Is to match the sentinel kinds.
func (e *CompositionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func slotError(bundleID string, slot int, productID string, quantity int, err error) *CompositionError {
	return &CompositionError{BundleID: bundleID, Slot: slot, ProductID: productID, Quantity: quantity, Err: err}
}
