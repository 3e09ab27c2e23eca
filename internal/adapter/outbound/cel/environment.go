package cel

import (
	"github.com/google/cel-go/cel"
)

// NewRuleEnvironment builds the CEL environment every ConditionRule
// compiles and evaluates against. It exposes the same read surface as
// rule.EvalContext, translated into CEL variables and functions:
//
//   - payload       map(string, dyn)  the item's normalized raw payload
//   - menu_item     map(string, dyn)  the existing canonical record (empty map on create)
//   - menu_item_found bool            whether menu_item is populated
//   - changed_keys  list(string)      the item's changed field names (empty on create)
//   - is_all_keys   bool              whether the item is a create (changed_keys means "all")
//   - now           timestamp         the batch's frozen wall-clock value
//
// and three optional-returning lookup functions, bound per evaluation
// (see Evaluator.evalFunctions) because they read the live
// rule.EvalContext rather than a fixed activation value:
//
//   - lookup_brand_id(string)  optional(int)
//   - lookup_strain_id(string) optional(int)
//   - lookup_tag_id(string)    optional(int)
func NewRuleEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.OptionalTypes(),

		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("menu_item", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("menu_item_found", cel.BoolType),
		cel.Variable("changed_keys", cel.ListType(cel.StringType)),
		cel.Variable("is_all_keys", cel.BoolType),
		cel.Variable("now", cel.TimestampType),

		cel.Function("lookup_brand_id",
			cel.Overload("lookup_brand_id_string",
				[]*cel.Type{cel.StringType},
				cel.OptionalType(cel.IntType),
			),
		),
		cel.Function("lookup_strain_id",
			cel.Overload("lookup_strain_id_string",
				[]*cel.Type{cel.StringType},
				cel.OptionalType(cel.IntType),
			),
		),
		cel.Function("lookup_tag_id",
			cel.Overload("lookup_tag_id_string",
				[]*cel.Type{cel.StringType},
				cel.OptionalType(cel.IntType),
			),
		),
	)
}
