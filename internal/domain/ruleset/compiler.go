package ruleset

import (
	"fmt"
	"sort"

	"github.com/catalogforge/ingestpipe/internal/domain/ingesterr"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// Compile turns an unordered set of rules into a frozen RuleSet, following
// spec §4.2's five steps in order: validate names and before/after
// references, build the ordering-edge set, reject unordered overlapping
// writes under error_on_conflict, reject cycles, then produce the single
// deterministic topological order via Kahn's algorithm with (priority,
// name) tie-breaking.
//
// Grounded on the teacher's policy_service.go compile-then-freeze-and-swap
// pattern and on the pack's go-gavel DAG (other_examples), generalized
// from a flat rule list to the declarative before/after/reads/writes
// contract this domain's Meta carries.
func Compile(rules []rule.Rule, version string, policy rule.MergePolicy, opts ...CompileOption) (*RuleSet, error) {
	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: ruleset %q has no rules", ingesterr.ErrCompile, version)
	}

	byName := make(map[string]rule.Rule, len(rules))
	names := make([]string, 0, len(rules))
	priority := make(map[string]int, len(rules))
	metaByName := make(map[string]rule.Meta, len(rules))
	for _, r := range rules {
		m := r.Meta()
		if m.Name == "" {
			return nil, fmt.Errorf("%w: rule with empty name in ruleset %q", ingesterr.ErrCompile, version)
		}
		if _, dup := byName[m.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate rule name %q in ruleset %q", ingesterr.ErrCompile, m.Name, version)
		}
		byName[m.Name] = r
		metaByName[m.Name] = m
		names = append(names, m.Name)
		priority[m.Name] = m.Priority
	}
	sort.Strings(names)

	g := newGraph(names)

	for _, name := range names {
		m := metaByName[name]
		for _, before := range m.Before.Sorted() {
			if _, ok := byName[before]; !ok {
				return nil, fmt.Errorf("%w: rule %q declares before=%q which does not exist in ruleset %q",
					ingesterr.ErrCompile, name, before, version)
			}
			g.addEdge(name, before)
		}
		for _, after := range m.After.Sorted() {
			if _, ok := byName[after]; !ok {
				return nil, fmt.Errorf("%w: rule %q declares after=%q which does not exist in ruleset %q",
					ingesterr.ErrCompile, name, after, version)
			}
			g.addEdge(after, name)
		}
	}

	if cfg.dataFlowEdges {
		for _, a := range names {
			for _, b := range names {
				if a == b {
					continue
				}
				if metaByName[a].Writes.Intersects(metaByName[b].Reads) {
					g.addEdge(a, b)
				}
			}
		}
	}

	if err := checkWriteConflicts(names, metaByName, g, policy, version, cfg.dataFlowEdges); err != nil {
		return nil, err
	}

	if sccs := g.stronglyConnectedComponents(); containsCycle(sccs) {
		return nil, fmt.Errorf("%w: ruleset %q has a cycle among rules %v",
			ingesterr.ErrCompile, version, cycleMembers(sccs))
	}

	order, err := g.kahnOrder(priority)
	if err != nil {
		return nil, fmt.Errorf("%w: ruleset %q: %v", ingesterr.ErrCompile, version, err)
	}

	edges := make(map[string][]string, len(names))
	for _, n := range names {
		adj := append([]string(nil), g.adj[n]...)
		sort.Strings(adj)
		edges[n] = adj
	}

	return &RuleSet{
		version:       version,
		policy:        policy,
		orderedNames:  order,
		rules:         byName,
		edges:         edges,
		dataFlowEdges: cfg.dataFlowEdges,
	}, nil
}

// checkWriteConflicts implements spec §4.2 step 3: under
// error_on_conflict, any two rules whose Writes intersect must be
// separated by a direct ordering edge. last_wins and first_wins tolerate
// unordered overlapping writes; the evaluator resolves them deterministically
// by evaluation order instead.
//
// WithDataFlowEdges(true) relaxes this: an unordered writes∩writes pair
// no longer fails compilation. The evaluator falls back to
// last-writer-wins (by evaluation order) for any such pair at runtime
// instead of erroring, since dataFlowEdges opts the ruleset author into
// tolerating shared writes the same way last_wins/first_wins do.
func checkWriteConflicts(names []string, metaByName map[string]rule.Meta, g *graph, policy rule.MergePolicy, version string, dataFlowEdges bool) error {
	if policy != rule.MergeErrorOnConflict || dataFlowEdges {
		return nil
	}
	for i, a := range names {
		for _, b := range names[i+1:] {
			if !metaByName[a].Writes.Intersects(metaByName[b].Writes) {
				continue
			}
			if g.hasEdge(a, b) {
				continue
			}
			overlap := metaByName[a].Writes.Intersection(metaByName[b].Writes)
			return fmt.Errorf("%w: %w: rules %q and %q both write %v with no ordering edge in ruleset %q",
				ingesterr.ErrCompile, ingesterr.ErrRuleConflict, a, b, overlap, version)
		}
	}
	return nil
}

func containsCycle(sccs [][]string) bool {
	for _, c := range sccs {
		if len(c) > 1 {
			return true
		}
	}
	return false
}

func cycleMembers(sccs [][]string) []string {
	var out []string
	for _, c := range sccs {
		if len(c) > 1 {
			out = append(out, c...)
		}
	}
	sort.Strings(out)
	return out
}
