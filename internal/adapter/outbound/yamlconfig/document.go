// Package yamlconfig loads a ruleset configuration document (spec §6)
// from YAML and compiles it into a ruleset.RuleSet via the rules
// package's class registry. It is an adapter in the hexagonal sense:
// the core (internal/domain/ruleset, internal/domain/rule) never
// imports this package or gopkg.in/yaml.v3 directly.
package yamlconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
	"github.com/catalogforge/ingestpipe/internal/rules"
)

// Document is the parsed shape of one ruleset configuration file:
// a version stamp, the merge policy, and the ordered (by priority,
// then document order) rule entries to compile.
type Document struct {
	Version string       `yaml:"version"`
	Policy  string       `yaml:"policy"`
	Rules   []RuleEntry  `yaml:"rules"`
}

// RuleEntry is one authored rule: which built-in class to instantiate,
// whether it's active, its ordering metadata, and its class-specific
// params (e.g. a condition_rule's "expression"/"then").
type RuleEntry struct {
	Class    string         `yaml:"class"`
	Enabled  *bool          `yaml:"enabled"`
	Priority int            `yaml:"priority"`
	Params   map[string]any `yaml:"params"`
	Overrides struct {
		Before []string `yaml:"before"`
		After  []string `yaml:"after"`
		Flags  []string `yaml:"flags"`
	} `yaml:"overrides"`
	// Name lets a ruleset document give a condition_rule (or any
	// repeated class) a unique name distinct from its class; defaults
	// to Class when empty.
	Name string `yaml:"name"`
}

// enabled reports whether the entry should be compiled in, defaulting
// to true when Enabled is unset.
func (e RuleEntry) enabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// name resolves the entry's rule name: its explicit Name, or its Class
// when Name is empty.
func (e RuleEntry) name() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Class
}

// Load parses a ruleset configuration document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlconfig: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a ruleset configuration document from raw YAML bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yamlconfig: parse: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("yamlconfig: document has no version")
	}
	return &doc, nil
}

// Compile resolves every enabled rule entry through registry (building
// a CEL evaluator's condition rules via evaluator), then compiles the
// resulting rule set with ruleset.Compile under the document's merge
// policy, using doc.Version as the frozen ruleset.Version stamp. opts
// are forwarded to ruleset.Compile (e.g. ruleset.WithDataFlowEdges).
func (d *Document) Compile(registry *rules.Registry, evaluator *ingestcel.Evaluator, opts ...ruleset.CompileOption) (*ruleset.RuleSet, error) {
	policy, err := parsePolicy(d.Policy)
	if err != nil {
		return nil, fmt.Errorf("yamlconfig: ruleset %q: %w", d.Version, err)
	}

	var compiled []rule.Rule
	for _, entry := range d.Rules {
		if !entry.enabled() {
			continue
		}
		spec := rules.Spec{
			Name:     entry.name(),
			Priority: entry.Priority,
			Before:   entry.Overrides.Before,
			After:    entry.Overrides.After,
			Flags:    entry.Overrides.Flags,
			Params:   entry.Params,
		}
		r, err := registry.Build(entry.Class, spec, evaluator)
		if err != nil {
			return nil, fmt.Errorf("yamlconfig: ruleset %q: rule %q: %w", d.Version, spec.Name, err)
		}
		compiled = append(compiled, r)
	}

	return ruleset.Compile(compiled, d.Version, policy, opts...)
}

func parsePolicy(s string) (rule.MergePolicy, error) {
	switch rule.MergePolicy(s) {
	case rule.MergeLastWins, rule.MergeFirstWins, rule.MergeErrorOnConflict:
		return rule.MergePolicy(s), nil
	case "":
		return rule.MergeErrorOnConflict, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}
