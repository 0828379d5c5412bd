package rules

import (
	"bytes"
	"encoding/json"

	"github.com/diegoholiveira/jsonlogic"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// cartFacts is the data document JSONLogic predicates are evaluated against:
//
//	{"subtotal": n, "quantity": n, "categories": {"<id>": qty}, "lines": [...]}
func cartFacts(cart []pricing.LineItem, subtotal pricing.Money) map[string]any {
	categories := map[string]any{}
	lines := make([]any, 0, len(cart))
	quantity := 0
	for _, l := range cart {
		if l.Quantity > 0 {
			quantity += l.Quantity
			if l.CategoryID != "" {
				prev, _ := categories[l.CategoryID].(int)
				categories[l.CategoryID] = prev + l.Quantity
			}
		}
		lines = append(lines, map[string]any{
			"product":    l.ProductID,
			"category":   l.CategoryID,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice,
			"subtotal":   l.Subtotal(),
			"bundle":     l.BundleID,
		})
	}
	return map[string]any{
		"subtotal":   subtotal,
		"quantity":   quantity,
		"categories": categories,
		"lines":      lines,
	}
}

// evalPredicate evaluates a JSONLogic expression. Malformed expressions and
// evaluation errors count as "no match".
func evalPredicate(expr map[string]any, facts map[string]any) bool {
	rule, err := json.Marshal(expr)
	if err != nil {
		return false
	}
	data, err := json.Marshal(facts)
	if err != nil {
		return false
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(rule), bytes.NewReader(data), &out); err != nil {
		return false
	}
	var result any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return false
	}
	return truthy(result)
}

// truthy follows JSONLogic truthiness.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
