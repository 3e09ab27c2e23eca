package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

func TestConditionRule_FiresWhenExpressionTrue(t *testing.T) {
	t.Parallel()

	evaluator, err := ingestcel.NewEvaluator()
	require.NoError(t, err)

	r, err := NewConditionRule(
		"out_of_stock_hides_item",
		5,
		[]string{"in_stock"},
		[]string{"status"},
		nil, nil, nil,
		`"in_stock" in changed_keys && payload.in_stock == false`,
		rule.Patch{"status": "unavailable"},
		evaluator,
	)
	require.NoError(t, err)

	ctx := fakeEvalContext{
		now:         time.Now(),
		payload:     map[string]any{"in_stock": false},
		changedKeys: fieldset.New("in_stock"),
	}

	require.True(t, r.Applies(ctx))
	patch, err := r.Apply(ctx)
	require.NoError(t, err)
	require.Equal(t, rule.Patch{"status": "unavailable"}, patch)
}

func TestConditionRule_DoesNotFireWhenExpressionFalse(t *testing.T) {
	t.Parallel()

	evaluator, err := ingestcel.NewEvaluator()
	require.NoError(t, err)

	r, err := NewConditionRule(
		"out_of_stock_hides_item",
		5,
		[]string{"in_stock"},
		[]string{"status"},
		nil, nil, nil,
		`"in_stock" in changed_keys && payload.in_stock == false`,
		rule.Patch{"status": "unavailable"},
		evaluator,
	)
	require.NoError(t, err)

	ctx := fakeEvalContext{
		payload:     map[string]any{"in_stock": true},
		changedKeys: fieldset.New("in_stock"),
	}

	require.False(t, r.Applies(ctx))
}

func TestNewConditionRule_RejectsInvalidExpression(t *testing.T) {
	t.Parallel()

	evaluator, err := ingestcel.NewEvaluator()
	require.NoError(t, err)

	_, err = NewConditionRule("broken", 1, nil, nil, nil, nil, nil, "this is not cel (", nil, evaluator)
	require.Error(t, err)
}
