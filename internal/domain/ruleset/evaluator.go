package ruleset

import (
	"fmt"
	"time"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/ingesterr"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// evalContext is the sole implementation of rule.EvalContext: a read-only
// view composed from a frozen batch context, a frozen item context, and
// the running changed-key set the evaluator advances rule by rule (spec
// §4.2, §4.3). Rule bodies hold only this narrow interface and cannot
// reach batchctx/itemctx directly.
type evalContext struct {
	batch       batchctx.Context
	item        itemctx.Context
	changedKeys fieldset.Set
	allKeys     bool
}

func (e evalContext) Now() time.Time                   { return e.batch.Now() }
func (e evalContext) Payload() map[string]any          { return e.item.Payload() }
func (e evalContext) MenuItem() (map[string]any, bool) { return e.item.MenuItem() }
func (e evalContext) ChangedKeys() fieldset.Set        { return e.changedKeys.Clone() }
func (e evalContext) IsAllKeys() bool                  { return e.allKeys }

func (e evalContext) FlagEnabled(name string) (bool, error) {
	snap := e.batch.Flags()
	v, ok := snap.Values[name]
	if !ok {
		return false, fmt.Errorf("ruleset: flag %q not present in batch snapshot", name)
	}
	return v, nil
}

func (e evalContext) LookupBrandID(key string) (int64, bool) {
	id, ok := e.batch.Lookups().Brands[key]
	return id, ok
}

func (e evalContext) LookupStrainID(name string) (int64, bool) {
	id, ok := e.batch.Lookups().Strains[name]
	return id, ok
}

func (e evalContext) LookupTag(name string) (rule.TagRecord, bool) {
	t, ok := e.batch.Lookups().Tags[name]
	if !ok {
		return rule.TagRecord{}, false
	}
	return rule.TagRecord{ID: t.ID, Name: t.Name}, true
}

// RuleApplyError reports which rule's Apply raised an error, so callers
// can record a violation keyed by rule name instead of a generic one.
type RuleApplyError struct {
	Rule string
	Err  error
}

func (e *RuleApplyError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *RuleApplyError) Unwrap() error {
	return ingesterr.ErrRuleFailure
}

// EvalResult is Evaluate's output: the merged patch, the names of rules
// that fired in order, and the resulting changed-key state (needed by the
// processor to thread into the next stage's itemctx.Context).
type EvalResult struct {
	Changes     rule.Patch
	Fired       []string
	ChangedKeys fieldset.Set
	AllKeys     bool
}

// Evaluate runs every compiled rule in deterministic order against one
// item, implementing spec §4.2's evaluation loop verbatim: for each rule
// in order, check Applies, call Apply if so, merge the patch according to
// the ruleset's MergePolicy, append to fired, and fold the rule's writes
// into the running changed-key set before moving to the next rule.
//
// A rule.Apply error is fatal for this item only: it is returned wrapped
// so the caller can record it as a per-rule violation and reject the
// item, leaving the rest of the batch unaffected (spec §7).
func (rs *RuleSet) Evaluate(batch batchctx.Context, item itemctx.Context) (EvalResult, error) {
	changes := rule.Patch{}
	changeOwner := map[string]string{} // key -> name of rule that currently owns it, for error_on_conflict diagnostics
	var fired []string

	changedKeys := item.ChangedKeys()
	allKeys := item.IsAllKeys()

	for _, name := range rs.orderedNames {
		r := rs.rules[name]
		meta := r.Meta()

		ctx := evalContext{batch: batch, item: item, changedKeys: changedKeys, allKeys: allKeys}

		if !r.Applies(ctx) {
			continue
		}

		patch, err := r.Apply(ctx)
		if err != nil {
			return EvalResult{}, &RuleApplyError{Rule: name, Err: err}
		}

		for k := range patch {
			if !meta.Writes.Contains(k) {
				return EvalResult{}, fmt.Errorf("%w: rule %q wrote undeclared key %q (writes=%v)",
					ingesterr.ErrRuleConflict, name, k, meta.SortedWrites())
			}
		}

		for k, v := range patch {
			if owner, conflict := changeOwner[k]; conflict && owner != name {
				switch {
				case rs.policy == rule.MergeFirstWins:
					continue
				case rs.policy == rule.MergeLastWins:
					changes[k] = v
					changeOwner[k] = name
				case rs.dataFlowEdges:
					// error_on_conflict, but WithDataFlowEdges(true) relaxed
					// compilation to admit this unordered pair; fall back to
					// last-writer-wins by evaluation order instead of erroring.
					changes[k] = v
					changeOwner[k] = name
				default: // MergeErrorOnConflict: compile already proved this can't happen for ordered rules
					return EvalResult{}, fmt.Errorf("%w: rules %q and %q both wrote %q at runtime",
						ingesterr.ErrRuleConflict, owner, name, k)
				}
				continue
			}
			changes[k] = v
			changeOwner[k] = name
		}

		fired = append(fired, name)
		if !allKeys {
			changedKeys = changedKeys.Union(meta.Writes)
		}
	}

	return EvalResult{
		Changes:     changes,
		Fired:       fired,
		ChangedKeys: changedKeys,
		AllKeys:     allKeys,
	}, nil
}
