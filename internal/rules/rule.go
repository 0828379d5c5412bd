package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrInvalidRule wraps validation failures of a rule pack.
var ErrInvalidRule = errors.New("rules: invalid rule")

// Conditions gate whether a rule matches a cart.
type Conditions struct {
	// Categories restricts the rule to lines in these categories. Empty means the whole cart.
	Categories  []string      `json:"categories,omitempty" yaml:"categories"`
	MinQuantity int           `json:"min_quantity,omitempty" yaml:"min_quantity" validate:"gte=0"`
	MinSubtotal pricing.Money `json:"min_subtotal,omitempty" yaml:"min_subtotal" validate:"gte=0"`
	ActiveFrom  *time.Time    `json:"active_from,omitempty" yaml:"active_from"`
	ActiveTo    *time.Time    `json:"active_to,omitempty" yaml:"active_to"`
	// When is an optional JSONLogic predicate over the cart facts.
	When map[string]any `json:"when,omitempty" yaml:"when"`
}

// Rule is a catalog-wide, condition-triggered discount.
type Rule struct {
	ID             string         `json:"id" yaml:"id" validate:"required"`
	Name           string         `json:"name,omitempty" yaml:"name"`
	Priority       int            `json:"priority" yaml:"priority"`
	Conditions     Conditions     `json:"conditions" yaml:"conditions"`
	Effect         pricing.Effect `json:"effect" yaml:"effect"`
	Stackable      bool           `json:"stackable" yaml:"stackable"`
	ExclusionGroup string         `json:"exclusion_group,omitempty" yaml:"exclusion_group"`
}

// Touches reports whether the rule's effect applies to the given line.
func (r Rule) Touches(line pricing.LineItem) bool {
	return line.InCategories(pricing.CategorySet(r.Conditions.Categories))
}

// Pack is the on-disk form of a rule catalog.
type Pack struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules" validate:"dive"`
}

var validate = validator.New()

// Validate checks a rule set for structural problems and duplicate ids.
func Validate(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := validate.Struct(r); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRule, r.ID, err)
		}
		if err := r.Effect.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRule, r.ID, err)
		}
		if r.Conditions.ActiveFrom != nil && r.Conditions.ActiveTo != nil && r.Conditions.ActiveTo.Before(*r.Conditions.ActiveFrom) {
			return fmt.Errorf("%w: %s: active range ends before it starts", ErrInvalidRule, r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// FileLoader reads a YAML rule pack.
type FileLoader struct {
	Path string
}

// Load reads and validates the rule pack.
func (l FileLoader) Load(_ context.Context) ([]Rule, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", l.Path, err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes and validates a YAML rule pack.
func ParseYAML(raw []byte) ([]Rule, error) {
	var pack Pack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("rules: decode yaml: %w", err)
	}
	if err := Validate(pack.Rules); err != nil {
		return nil, err
	}
	return pack.Rules, nil
}
