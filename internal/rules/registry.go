package rules

import (
	"fmt"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// Spec is the normalized description of one rule entry from a YAML
// ruleset document, after the document's own params have been decoded.
// A Factory only ever sees this, never the raw YAML node, keeping the
// registry decoupled from yamlconfig's parsing concerns.
type Spec struct {
	Name     string
	Priority int
	Before   []string
	After    []string
	Flags    []string
	// Params holds the rule class's own configuration, e.g. a
	// condition rule's "expression" and "then" patch.
	Params map[string]any
}

// Factory builds a Rule from a normalized Spec. Returned errors abort
// ruleset compilation (spec's "compile-time" framing for malformed
// configuration).
type Factory func(spec Spec, evaluator *ingestcel.Evaluator) (rule.Rule, error)

// Registry maps a YAML ruleset document's "class" string to the
// Factory that builds it. This is the "dynamic rule registry" design
// note implemented without reflection: class names resolve through a
// fixed compile-time map rather than reflect.New over a type name, so
// an authored ruleset can only ever select from a vetted rule set.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry preloaded with every built-in rule
// class.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("brand_name_rule", buildBrandNameRule)
	r.Register("strain_name_rule", buildStrainNameRule)
	r.Register("tags_rule", buildTagsRule)
	r.Register("condition_rule", buildConditionRule)
	return r
}

// Register adds (or replaces) a class's Factory. Exposed so a host
// application can extend the registry with domain-specific rule
// classes beyond the built-ins.
func (r *Registry) Register(class string, factory Factory) {
	r.factories[class] = factory
}

// Build resolves class and constructs a Rule from spec.
func (r *Registry) Build(class string, spec Spec, evaluator *ingestcel.Evaluator) (rule.Rule, error) {
	factory, ok := r.factories[class]
	if !ok {
		return nil, fmt.Errorf("rules: unknown rule class %q", class)
	}
	return factory(spec, evaluator)
}

func buildBrandNameRule(spec Spec, _ *ingestcel.Evaluator) (rule.Rule, error) {
	return NewBrandNameRule(spec.Priority, spec.Before, spec.After), nil
}

func buildStrainNameRule(spec Spec, _ *ingestcel.Evaluator) (rule.Rule, error) {
	return NewStrainNameRule(spec.Priority, spec.Before, spec.After), nil
}

func buildTagsRule(spec Spec, _ *ingestcel.Evaluator) (rule.Rule, error) {
	return NewTagsRule(spec.Priority, spec.Before, spec.After), nil
}

func buildConditionRule(spec Spec, evaluator *ingestcel.Evaluator) (rule.Rule, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("rules: condition_rule %q requires a CEL evaluator", spec.Name)
	}
	expression, _ := spec.Params["expression"].(string)
	reads, _ := toStringSlice(spec.Params["reads"])
	writes, _ := toStringSlice(spec.Params["writes"])
	thenRaw, _ := spec.Params["then"].(map[string]any)

	then := rule.Patch{}
	for k, v := range thenRaw {
		then[k] = v
	}

	return NewConditionRule(spec.Name, spec.Priority, reads, writes, spec.Before, spec.After, spec.Flags, expression, then, evaluator)
}

func toStringSlice(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
