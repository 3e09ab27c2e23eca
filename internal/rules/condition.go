package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// ConditionRule gates a static patch behind a CEL boolean expression,
// giving a YAML ruleset document a way to express "set status to X
// when Y" without a Go recompile. Its Applies compiles once at
// construction and evaluates the same program on every item, matching
// the teacher's pattern of compiling a policy condition once and
// reusing the cel.Program across requests.
type ConditionRule struct {
	meta       rule.Meta
	evaluator  *ingestcel.Evaluator
	program    cel.Program
	expression string
	then       rule.Patch
}

// NewConditionRule compiles expression against evaluator's rule
// environment and returns a Rule that applies the fixed patch `then`
// whenever expression evaluates true. Returns an error if expression
// fails validation (length/nesting/compile) so a malformed ruleset
// document is rejected at load time, not mid-batch.
func NewConditionRule(name string, priority int, reads, writes, before, after, flags []string, expression string, then rule.Patch, evaluator *ingestcel.Evaluator) (*ConditionRule, error) {
	if err := evaluator.ValidateExpression(expression); err != nil {
		return nil, fmt.Errorf("rules: condition rule %q: %w", name, err)
	}
	prg, err := evaluator.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("rules: condition rule %q: %w", name, err)
	}
	return &ConditionRule{
		meta:       rule.NewMeta(name, priority, reads, writes, before, after, flags),
		evaluator:  evaluator,
		program:    prg,
		expression: expression,
		then:       then.Clone(),
	}, nil
}

func (r *ConditionRule) Meta() rule.Meta { return r.meta }

func (r *ConditionRule) Applies(ctx rule.EvalContext) bool {
	ok, err := r.evaluator.Evaluate(r.program, ctx)
	if err != nil {
		// A condition that fails to evaluate never applies; Apply is
		// never called, so the error surfaces only if a future
		// version threads it through Applies's signature. For now
		// this mirrors the teacher's fail-closed CEL policy default.
		return false
	}
	return ok
}

func (r *ConditionRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	return r.then.Clone(), nil
}
