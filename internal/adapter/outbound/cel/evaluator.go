// Package cel provides a CEL-based condition evaluator used by
// ConditionRule to express catalog transform gates without a Go
// recompile: e.g. "status" changes to "unavailable" when
// "menu_item.in_stock == false && changed_keys.exists(k, k == 'in_stock')".
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"

	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// maxExpressionLength is the maximum allowed length for a CEL expression.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, preventing a pathological
// comprehension from burning unbounded CPU mid-batch.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket/brace
// nesting depth, rejected at load time rather than at eval time.
const maxNestingDepth = 50

// evalTimeout bounds a single rule's evaluation against one item.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL expressions against the
// ingestion rule environment (see NewRuleEnvironment).
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates a new CEL evaluator with the rule environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewRuleEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled
// program bound to the rule environment's cost and optimization options.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting checks that the expression does not exceed the
// maximum allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a CEL expression is syntactically
// valid and safe to load as a ConditionRule gate: non-empty, within the
// length and nesting limits, and compilable against the rule
// environment.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// Evaluate runs a compiled CEL program against one rule.EvalContext.
// Returns true if the expression evaluates to true, false otherwise.
func (e *Evaluator) Evaluate(prg cel.Program, evalCtx rule.EvalContext) (bool, error) {
	activation := BuildActivation(evalCtx)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}
