package service

import (
	"fmt"
	"time"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
)

// ReplayResult compares a re-executed canonical transform against what
// a recorded ReplayPack says actually happened (spec §9's replay
// guarantee: re-running a pack against the same-version RuleSet must
// reproduce the same fired rules and changes).
type ReplayResult struct {
	Pack             replay.Pack
	RecomputedFired  []string
	RecomputedChange map[string]any
	Match            bool
	Diff             string
}

// ReplayRunner reconstructs a batchctx.Context and itemctx.Context from
// a recorded Pack and re-evaluates it against a live RuleSet, the way
// the teacher's own replay-cache lookups recompute a cache key from
// stored inputs rather than trusting a cached decision blindly.
type ReplayRunner struct {
	CreateRuleSet *ruleset.RuleSet
	UpdateRuleSet *ruleset.RuleSet
}

// NewReplayRunner builds a ReplayRunner over the two canonical
// RuleSets a pack's status maps to.
func NewReplayRunner(createRS, updateRS *ruleset.RuleSet) *ReplayRunner {
	return &ReplayRunner{CreateRuleSet: createRS, UpdateRuleSet: updateRS}
}

// Run re-evaluates pack and reports whether the RuleSet it is replayed
// against reproduces the pack's recorded fired rules and changes
// exactly. A pack recorded for a destroy or rejected item carries no
// canonical ruleset evaluation to replay; Run returns an error for those.
func (r *ReplayRunner) Run(pack replay.Pack) (ReplayResult, error) {
	rs, action, err := r.ruleSetForStatus(pack.Status)
	if err != nil {
		return ReplayResult{}, err
	}
	if rs.Version() != pack.RulesetVersion {
		return ReplayResult{}, fmt.Errorf("replay: ruleset version mismatch: pack=%q live=%q", pack.RulesetVersion, rs.Version())
	}

	batch := batchctx.NewBuilder().
		WithNow(time.Unix(pack.ProducedAt, 0).UTC()).
		WithEnv(pack.Env).
		WithSourceID(pack.SourceID).
		WithRulesetVersion(pack.RulesetVersion).
		WithFlags(batchctx.FlagSnapshot{Values: pack.FlagsSnapshot, Version: pack.FlagsVersion}).
		WithLookups(lookupsFromSnapshot(pack.ResolverSnapshot)).
		Freeze()

	item := itemctx.New(pack.ExternalID, pack.SourceID, pack.MappedPayload).
		WithIngestID(pack.IngestID).
		WithAction(action)

	if action == itemctx.ActionUpdate {
		item = item.WithMenuItem(priorRecord(pack), true).WithChangedKeys(fieldset.New(pack.ChangedKeys...))
	} else {
		item = item.WithAllKeys()
	}

	result, err := rs.Evaluate(batch, item)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: re-evaluation failed: %w", err)
	}

	match, diff := compareReplay(pack, result)
	return ReplayResult{
		Pack:             pack,
		RecomputedFired:  result.Fired,
		RecomputedChange: result.Changes,
		Match:            match,
		Diff:             diff,
	}, nil
}

func (r *ReplayRunner) ruleSetForStatus(status string) (*ruleset.RuleSet, itemctx.Action, error) {
	switch status {
	case "created":
		return r.CreateRuleSet, itemctx.ActionCreate, nil
	case "updated":
		return r.UpdateRuleSet, itemctx.ActionUpdate, nil
	default:
		return nil, itemctx.ActionUnset, fmt.Errorf("replay: status %q has no canonical ruleset to replay", status)
	}
}

// priorRecord approximates the pre-change record as the mapped payload
// minus this batch's own changes, since a Pack doesn't separately
// capture the pre-update record (spec §6 doesn't name it as a required
// field). This is sufficient for replaying Applies/Apply against
// changed_keys and payload, which never consult the prior menu item's
// values directly.
func priorRecord(pack replay.Pack) map[string]any {
	prior := make(map[string]any, len(pack.MappedPayload))
	for k, v := range pack.MappedPayload {
		prior[k] = v
	}
	for k := range pack.Changes {
		delete(prior, k)
	}
	return prior
}

func lookupsFromSnapshot(snap replay.ResolverSnapshot) batchctx.LookupMaps {
	out := batchctx.NewLookupMaps()
	for k, v := range snap.Brands {
		out.Brands[k] = v
	}
	for k, v := range snap.Strains {
		out.Strains[k] = v
	}
	for k, v := range snap.Tags {
		out.Tags[k] = batchctx.TagRecord{ID: v.ID, Name: v.Name}
	}
	return out
}

func compareReplay(pack replay.Pack, result ruleset.EvalResult) (bool, string) {
	if !stringSlicesEqual(pack.FiredRules, result.Fired) {
		return false, fmt.Sprintf("fired rules differ: recorded=%v recomputed=%v", pack.FiredRules, result.Fired)
	}
	if !mapsEqual(pack.Changes, result.Changes) {
		return false, fmt.Sprintf("changes differ: recorded=%v recomputed=%v", pack.Changes, result.Changes)
	}
	return true, ""
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok {
			return false
		}
		if fmt.Sprint(v) != fmt.Sprint(ov) {
			return false
		}
	}
	return true
}
