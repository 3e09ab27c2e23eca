package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter"
	"github.com/google/cel-go/interpreter/functions"

	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// BuildActivation translates one rule.EvalContext into the CEL variable
// bindings declared by NewRuleEnvironment.
func BuildActivation(evalCtx rule.EvalContext) interpreter.Activation {
	menuItem, found := evalCtx.MenuItem()
	if menuItem == nil {
		menuItem = map[string]any{}
	}

	vars := map[string]any{
		"payload":         evalCtx.Payload(),
		"menu_item":       menuItem,
		"menu_item_found": found,
		"changed_keys":    evalCtx.ChangedKeys().Sorted(),
		"is_all_keys":     evalCtx.IsAllKeys(),
		"now":             evalCtx.Now(),
	}
	return interpreter.NewActivation(vars)
}

// lookupOverloads binds lookup_brand_id/lookup_strain_id/lookup_tag_id
// to one rule.EvalContext. They are bound fresh for every Program
// instance, not once at environment construction, because a compiled
// AST is reused across many items while the lookups it resolves are
// per-item (grounded on the lookup methods rule.EvalContext exposes:
// LookupBrandID, LookupStrainID, LookupTag).
func lookupOverloads(evalCtx rule.EvalContext) []*functions.Overload {
	return []*functions.Overload{
		{
			Operator: "lookup_brand_id_string",
			Unary: func(arg ref.Val) ref.Val {
				name, ok := arg.Value().(string)
				if !ok {
					return types.NewErr("lookup_brand_id: expected string, got %T", arg.Value())
				}
				id, found := evalCtx.LookupBrandID(name)
				return optionalInt(id, found)
			},
		},
		{
			Operator: "lookup_strain_id_string",
			Unary: func(arg ref.Val) ref.Val {
				name, ok := arg.Value().(string)
				if !ok {
					return types.NewErr("lookup_strain_id: expected string, got %T", arg.Value())
				}
				id, found := evalCtx.LookupStrainID(name)
				return optionalInt(id, found)
			},
		},
		{
			Operator: "lookup_tag_id_string",
			Unary: func(arg ref.Val) ref.Val {
				name, ok := arg.Value().(string)
				if !ok {
					return types.NewErr("lookup_tag_id: expected string, got %T", arg.Value())
				}
				tag, found := evalCtx.LookupTag(name)
				return optionalInt(tag.ID, found)
			},
		},
	}
}

func optionalInt(id int64, ok bool) ref.Val {
	if !ok {
		return types.OptionalNone
	}
	return types.OptionalOf(types.Int(id))
}

// programOptions returns the ProgramOption set every ConditionRule
// expression is compiled with: optimized evaluation, the shared cost
// and interrupt-check limits, and this item's live lookup bindings.
func programOptions(evalCtx rule.EvalContext) []cel.ProgramOption {
	return []cel.ProgramOption{
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
		cel.Functions(lookupOverloads(evalCtx)...),
	}
}
