package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
)

type fakeReplayRule struct {
	meta  rule.Meta
	patch rule.Patch
}

func (f fakeReplayRule) Meta() rule.Meta                          { return f.meta }
func (f fakeReplayRule) Applies(ctx rule.EvalContext) bool        { return true }
func (f fakeReplayRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	return f.patch.Clone(), nil
}

func newFakeReplayRule(name string, priority int, writes []string, patch rule.Patch) fakeReplayRule {
	return fakeReplayRule{
		meta:  rule.NewMeta(name, priority, nil, writes, nil, nil, nil),
		patch: patch,
	}
}

func basePack() replay.Pack {
	return replay.Pack{
		PackVersion:    replay.PackVersion,
		ProducedAt:     1700000000,
		Env:            "production",
		RulesetVersion: "v1",
		SourceID:       "treez",
		ExternalID:     "ext-1",
		IngestID:       "ingest-1",
		Status:         "created",
		FiredRules:     []string{"set_status"},
		MappedPayload:  map[string]any{"name": "Widget"},
		ChangedKeys:    nil,
		Changes:        map[string]any{"status": "active"},
		Violations:     map[string][]string{},
		ResolverSnapshot: replay.ResolverSnapshot{
			Brands:  map[string]int64{},
			Strains: map[string]int64{},
			Tags:    map[string]replay.TagSnapshot{},
		},
		FlagsSnapshot: map[string]bool{},
	}
}

func TestReplayRunner_Run_MatchesIdenticalRuleSet(t *testing.T) {
	createRS, err := ruleset.Compile(
		[]rule.Rule{newFakeReplayRule("set_status", 0, []string{"status"}, rule.Patch{"status": "active"})},
		"v1",
		rule.MergeErrorOnConflict,
	)
	require.NoError(t, err)

	runner := NewReplayRunner(createRS, nil)
	result, err := runner.Run(basePack())
	require.NoError(t, err)

	assert.True(t, result.Match, result.Diff)
	assert.Equal(t, []string{"set_status"}, result.RecomputedFired)
	assert.Equal(t, "active", result.RecomputedChange["status"])
}

func TestReplayRunner_Run_DetectsDrift(t *testing.T) {
	createRS, err := ruleset.Compile(
		[]rule.Rule{newFakeReplayRule("set_status", 0, []string{"status"}, rule.Patch{"status": "archived"})},
		"v1",
		rule.MergeErrorOnConflict,
	)
	require.NoError(t, err)

	runner := NewReplayRunner(createRS, nil)
	result, err := runner.Run(basePack())
	require.NoError(t, err)

	assert.False(t, result.Match)
	assert.Contains(t, result.Diff, "changes differ")
}

func TestReplayRunner_Run_VersionMismatchErrors(t *testing.T) {
	createRS, err := ruleset.Compile(
		[]rule.Rule{newFakeReplayRule("set_status", 0, []string{"status"}, rule.Patch{"status": "active"})},
		"v2",
		rule.MergeErrorOnConflict,
	)
	require.NoError(t, err)

	runner := NewReplayRunner(createRS, nil)
	_, err = runner.Run(basePack())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ruleset version mismatch")
}

func TestReplayRunner_Run_RejectsNonCanonicalStatus(t *testing.T) {
	runner := NewReplayRunner(nil, nil)
	pack := basePack()
	pack.Status = "destroyed"

	_, err := runner.Run(pack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no canonical ruleset to replay")
}

func TestReplayRunner_Run_UpdateActionUsesChangedKeys(t *testing.T) {
	updateRS, err := ruleset.Compile(
		[]rule.Rule{newFakeReplayRule("bump_version", 0, []string{"version"}, rule.Patch{"version": 2})},
		"v1",
		rule.MergeErrorOnConflict,
	)
	require.NoError(t, err)

	runner := NewReplayRunner(nil, updateRS)
	pack := basePack()
	pack.Status = "updated"
	pack.ChangedKeys = []string{"name"}
	pack.Changes = map[string]any{"version": 2}
	pack.FiredRules = []string{"bump_version"}

	result, err := runner.Run(pack)
	require.NoError(t, err)
	assert.True(t, result.Match, result.Diff)
}
