package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrInvalidSnapshot wraps validation failures of loaded catalog data.
var ErrInvalidSnapshot = errors.New("catalog: invalid snapshot")

// Product is a sellable catalog entry.
type Product struct {
	ID         string        `json:"id" yaml:"id" validate:"required"`
	CategoryID string        `json:"category_id" yaml:"category_id"`
	Price      pricing.Money `json:"price" yaml:"price" validate:"gte=0"`
	Active     bool          `json:"active" yaml:"active"`
}

// Category is only used as a matching key for rule conditions.
type Category struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name"`
}

// Slot is one substitutable position in a curated bundle.
type Slot struct {
	Allowed    []string       `json:"allowed" yaml:"allowed" validate:"required,min=1,dive,required"`
	Default    string         `json:"default,omitempty" yaml:"default"`
	MinQty     int            `json:"min_qty" yaml:"min_qty" validate:"gte=0"`
	MaxQty     int            `json:"max_qty" yaml:"max_qty" validate:"gtefield=MinQty"`
	FixedPrice *pricing.Money `json:"fixed_price,omitempty" yaml:"fixed_price" validate:"omitempty,gte=0"`
}

// Allows reports whether productID is in the slot's allowed set.
func (s Slot) Allows(productID string) bool {
	for _, id := range s.Allowed {
		if id == productID {
			return true
		}
	}
	return false
}

// CuratedBundle is an admin-authored, immutable bundle template.
type CuratedBundle struct {
	ID         string         `json:"id" yaml:"id" validate:"required"`
	Name       string         `json:"name" yaml:"name"`
	FixedPrice *pricing.Money `json:"fixed_price,omitempty" yaml:"fixed_price" validate:"omitempty,gte=0"`
	Slots      []Slot         `json:"slots" yaml:"slots" validate:"required,min=1,dive"`
}

// Data is the serialisable form of a snapshot, as produced by loaders and
// stored in the cache.
type Data struct {
	Version    string          `json:"version,omitempty" yaml:"version"`
	Categories []Category      `json:"categories" yaml:"categories" validate:"dive"`
	Products   []Product       `json:"products" yaml:"products" validate:"dive"`
	Bundles    []CuratedBundle `json:"bundles" yaml:"bundles" validate:"dive"`
}

// Snapshot is an immutable, indexed view of the catalog for one computation.
// It is safe for concurrent readers.
type Snapshot struct {
	version    string
	products   map[string]Product
	categories map[string]Category
	bundles    map[string]CuratedBundle
}

var validate = validator.New()

// NewSnapshot validates data and indexes it. Products must reference known
// categories when categories are provided and bundle slots must only allow
// known products.
func NewSnapshot(data Data) (*Snapshot, error) {
	if err := validate.Struct(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	s := &Snapshot{
		version:    data.Version,
		products:   make(map[string]Product, len(data.Products)),
		categories: make(map[string]Category, len(data.Categories)),
		bundles:    make(map[string]CuratedBundle, len(data.Bundles)),
	}
	for _, c := range data.Categories {
		if _, dup := s.categories[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidSnapshot, c.ID)
		}
		s.categories[c.ID] = c
	}
	for _, p := range data.Products {
		if _, dup := s.products[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product %q", ErrInvalidSnapshot, p.ID)
		}
		if len(s.categories) > 0 && p.CategoryID != "" {
			if _, ok := s.categories[p.CategoryID]; !ok {
				return nil, fmt.Errorf("%w: product %q references unknown category %q", ErrInvalidSnapshot, p.ID, p.CategoryID)
			}
		}
		s.products[p.ID] = p
	}
	for _, b := range data.Bundles {
		if _, dup := s.bundles[b.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate bundle %q", ErrInvalidSnapshot, b.ID)
		}
		for i, slot := range b.Slots {
			for _, id := range slot.Allowed {
				if _, ok := s.products[id]; !ok {
					return nil, fmt.Errorf("%w: bundle %q slot %d allows unknown product %q", ErrInvalidSnapshot, b.ID, i, id)
				}
			}
			if slot.Default != "" && !slot.Allows(slot.Default) {
				return nil, fmt.Errorf("%w: bundle %q slot %d default %q not in allowed set", ErrInvalidSnapshot, b.ID, i, slot.Default)
			}
		}
		s.bundles[b.ID] = cloneBundle(b)
	}
	return s, nil
}

// Version returns the data version the snapshot was built from.
func (s *Snapshot) Version() string { return s.version }

// Product looks up a product by id.
func (s *Snapshot) Product(id string) (Product, bool) {
	if s == nil {
		return Product{}, false
	}
	p, ok := s.products[id]
	return p, ok
}

// Bundle returns a copy of the curated bundle so callers cannot alter the template.
func (s *Snapshot) Bundle(id string) (CuratedBundle, bool) {
	if s == nil {
		return CuratedBundle{}, false
	}
	b, ok := s.bundles[id]
	if !ok {
		return CuratedBundle{}, false
	}
	return cloneBundle(b), true
}

// Products lists products ordered by id.
func (s *Snapshot) Products() []Product {
	if s == nil {
		return nil
	}
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Data returns the serialisable form of the snapshot with deterministic ordering.
func (s *Snapshot) Data() Data {
	if s == nil {
		return Data{}
	}
	d := Data{Version: s.version, Products: s.Products()}
	for _, c := range s.categories {
		d.Categories = append(d.Categories, c)
	}
	sort.Slice(d.Categories, func(i, j int) bool { return d.Categories[i].ID < d.Categories[j].ID })
	for _, b := range s.bundles {
		d.Bundles = append(d.Bundles, cloneBundle(b))
	}
	sort.Slice(d.Bundles, func(i, j int) bool { return d.Bundles[i].ID < d.Bundles[j].ID })
	return d
}

func cloneBundle(b CuratedBundle) CuratedBundle {
	out := b
	out.FixedPrice = cloneMoney(b.FixedPrice)
	out.Slots = make([]Slot, len(b.Slots))
	for i, slot := range b.Slots {
		cp := slot
		cp.Allowed = append([]string(nil), slot.Allowed...)
		cp.FixedPrice = cloneMoney(slot.FixedPrice)
		out.Slots[i] = cp
	}
	return out
}

func cloneMoney(v *pricing.Money) *pricing.Money {
	if v == nil {
		return nil
	}
	val := *v
	return &val
}
