package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

func TestRegistry_BuildsBuiltinClasses(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	evaluator, err := ingestcel.NewEvaluator()
	require.NoError(t, err)

	cases := []struct {
		class string
		spec  Spec
	}{
		{"brand_name_rule", Spec{Name: "brand_name_rule", Priority: 1}},
		{"strain_name_rule", Spec{Name: "strain_name_rule", Priority: 1}},
		{"tags_rule", Spec{Name: "tags_rule", Priority: 1}},
		{"condition_rule", Spec{
			Name:     "status_gate",
			Priority: 5,
			Params: map[string]any{
				"expression": "true",
				"reads":      []any{"in_stock"},
				"writes":     []any{"status"},
				"then":       map[string]any{"status": "unavailable"},
			},
		}},
	}

	for _, tc := range cases {
		r, err := reg.Build(tc.class, tc.spec, evaluator)
		require.NoErrorf(t, err, "class %q", tc.class)
		assert.Equal(t, tc.spec.Name, r.Meta().Name)
	}
}

func TestRegistry_UnknownClassErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Build("nonexistent_rule", Spec{Name: "x"}, nil)
	require.Error(t, err)
}

func TestRegistry_Register_Overrides(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	called := false
	reg.Register("brand_name_rule", func(spec Spec, evaluator *ingestcel.Evaluator) (rule.Rule, error) {
		called = true
		return NewBrandNameRule(spec.Priority, spec.Before, spec.After), nil
	})

	_, err := reg.Build("brand_name_rule", Spec{Priority: 1}, nil)
	require.NoError(t, err)
	assert.True(t, called)
}
