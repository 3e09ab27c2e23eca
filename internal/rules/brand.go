// Package rules contains the built-in catalog Rule implementations
// authored against the rule.Rule contract: brand/strain/tag reference
// resolution and a generic CEL-backed condition gate. Each rule is a
// pure function of rule.EvalContext, with no I/O and no access to the
// outbound ports the preloader already consulted to build the batch's
// lookup maps.
package rules

import (
	"strings"

	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// BrandNameRule resolves a payload's free-text "brand" field to the
// catalog's brand_id via the batch's preloaded lookup map. Per P5, an
// unresolved brand on update drops the write rather than nulling the
// field; brand_id is an optional canonical field, so the same drop
// behavior applies on create too (no required-reference case for this
// rule, so it never raises a referential_miss).
type BrandNameRule struct {
	meta rule.Meta
}

// NewBrandNameRule builds a BrandNameRule with the given priority and
// ordering constraints. reads/writes are fixed by the rule's contract.
func NewBrandNameRule(priority int, before, after []string) *BrandNameRule {
	return &BrandNameRule{
		meta: rule.NewMeta("brand_name_rule", priority,
			[]string{"brand"}, []string{"brand_id"}, before, after, nil),
	}
}

func (r *BrandNameRule) Meta() rule.Meta { return r.meta }

func (r *BrandNameRule) Applies(ctx rule.EvalContext) bool {
	if !ctx.IsAllKeys() && !ctx.ChangedKeys().Contains("brand") {
		return false
	}
	name, ok := stringField(ctx.Payload(), "brand")
	return ok && name != ""
}

func (r *BrandNameRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	name, _ := stringField(ctx.Payload(), "brand")
	id, ok := ctx.LookupBrandID(name)
	if !ok {
		return rule.Patch{}, nil
	}
	return rule.Patch{"brand_id": id}, nil
}

// stringField reads a trimmed non-empty-checked string field from a
// normalized payload, tolerating a missing key or a non-string value.
func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
