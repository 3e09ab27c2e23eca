package rules

import (
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// StrainNameRule resolves a payload's free-text "strain" field to the
// catalog's strain_id, mirroring BrandNameRule's drop-on-unresolved
// behavior (P5).
type StrainNameRule struct {
	meta rule.Meta
}

// NewStrainNameRule builds a StrainNameRule with the given priority and
// ordering constraints.
func NewStrainNameRule(priority int, before, after []string) *StrainNameRule {
	return &StrainNameRule{
		meta: rule.NewMeta("strain_name_rule", priority,
			[]string{"strain"}, []string{"strain_id"}, before, after, nil),
	}
}

func (r *StrainNameRule) Meta() rule.Meta { return r.meta }

func (r *StrainNameRule) Applies(ctx rule.EvalContext) bool {
	if !ctx.IsAllKeys() && !ctx.ChangedKeys().Contains("strain") {
		return false
	}
	name, ok := stringField(ctx.Payload(), "strain")
	return ok && name != ""
}

func (r *StrainNameRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	name, _ := stringField(ctx.Payload(), "strain")
	id, ok := ctx.LookupStrainID(name)
	if !ok {
		return rule.Patch{}, nil
	}
	return rule.Patch{"strain_id": id}, nil
}
