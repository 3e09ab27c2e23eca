// Package integration provides end-to-end tests that exercise the
// Pipeline, Processor, and storage/replay adapters together, the way
// the teacher's own internal/integration package drives its
// UpstreamManager and FileStateStore together rather than in isolation.
package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/memory"
	"github.com/catalogforge/ingestpipe/internal/domain/contract"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
	"github.com/catalogforge/ingestpipe/internal/service"
)

type intRule struct {
	meta  rule.Meta
	patch rule.Patch
	gate  func(rule.EvalContext) bool
}

func (r intRule) Meta() rule.Meta { return r.meta }

func (r intRule) Applies(ctx rule.EvalContext) bool {
	if r.gate != nil {
		return r.gate(ctx)
	}
	return true
}

func (r intRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	return r.patch.Clone(), nil
}

func newIntPipeline(t *testing.T, store *memory.MenuItemStore, artifacts *memory.ArtifactStore) *service.Pipeline {
	t.Helper()

	noop := intRule{meta: rule.NewMeta("external_noop", 0, nil, nil, nil, nil, nil), patch: rule.Patch{}}
	externalRS, err := ruleset.Compile([]rule.Rule{noop}, "external-v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)

	setStatus := intRule{
		meta:  rule.NewMeta("set_status", 0, nil, []string{"status"}, nil, nil, nil),
		patch: rule.Patch{"status": "active"},
		gate:  func(ctx rule.EvalContext) bool { return ctx.IsAllKeys() },
	}
	createRS, err := ruleset.Compile([]rule.Rule{setStatus}, "create-v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)
	updateRS, err := ruleset.Compile([]rule.Rule{noop}, "update-v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)

	cfg := service.PipelineConfig{
		Env:             "test",
		SourceID:        "treez",
		RulesetVersion:  "create-v1",
		Concurrency:     4,
		Preloader:       service.NewPreloader(memory.NewLookupProvider(nil, nil, nil), nil),
		FlagSnapshotter: service.NewFlagSnapshotter(memory.NewFlagBackend(nil), nil, nil),
		FlagActorKey:    "batch-1",
		FlagNamespace:   "catalog",
		Processor: service.ProcessorConfig{
			RawContracts:      contract.NewRegistry(nil, contract.NewTreezRawPayloadContract()),
			CanonicalContract: contract.NewCanonicalMenuItemContract(),
			ExternalTransformers: map[string]*ruleset.RuleSet{
				"treez": externalRS,
			},
			DestroyPointers: map[string]service.DestroyPointer{
				"treez": func(mapped map[string]any) bool {
					v, _ := mapped["deleted"].(bool)
					return v
				},
			},
			CreateRuleSet: createRS,
			UpdateRuleSet: updateRS,
			Store:         store,
		},
		Build:     replay.BuildInfo{AppVersion: "test", GitSHA: "deadbeef", PayloadSchemaVersion: "v1"},
		Artifacts: artifacts,
	}

	ruleOrder := func(action itemctx.Action) []replay.RuleOrderEntry {
		if action == itemctx.ActionCreate {
			return []replay.RuleOrderEntry{{Name: "set_status", Priority: 0}}
		}
		return nil
	}
	return service.NewPipeline(cfg, ruleOrder, nil)
}

// TestPipeline_FullLifecycle runs an item through create, then update,
// then destroy in three successive batches, verifying storage state and
// replay packs at each step and that no worker-pool goroutine leaks
// across batches (spec P1/P9 and the teacher's own goleak discipline).
func TestPipeline_FullLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewMenuItemStore()
	artifacts := memory.NewArtifactStore()
	pipeline := newIntPipeline(t, store, artifacts)
	ctx := context.Background()

	created, err := pipeline.Run(ctx, []service.RawItem{
		{ExternalID: "ext-1", Payload: map[string]any{"external_id": "ext-1", "name": "Widget"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Created)
	require.Len(t, created.Outcomes, 1)
	assert.Equal(t, "created", created.Outcomes[0].Status)

	rec, found, err := store.Find(ctx, "treez", "ext-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "active", rec.Fields["status"])
	assert.Equal(t, 1, artifacts.Len())

	updated, err := pipeline.Run(ctx, []service.RawItem{
		{ExternalID: "ext-1", Payload: map[string]any{"external_id": "ext-1", "name": "Widget v2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Updated)

	rec, found, err = store.Find(ctx, "treez", "ext-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Widget v2", rec.Fields["name"])
	assert.Equal(t, 2, artifacts.Len())

	destroyed, err := pipeline.Run(ctx, []service.RawItem{
		{ExternalID: "ext-1", Payload: map[string]any{"external_id": "ext-1", "name": "Widget v2", "deleted": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, destroyed.Destroyed)

	_, found, err = store.Find(ctx, "treez", "ext-1")
	require.NoError(t, err)
	assert.False(t, found, "destroyed record must not be found")
}

// TestPipeline_MultiItemBatch_PreservesInputOrderAndIsolatesFailures
// runs several items of differing fates through one batch concurrently,
// verifying each item's outcome lands at its original input index
// regardless of goroutine completion order (spec §4.7 ordering
// invariant), and that one item's rejection never affects a sibling's
// outcome.
func TestPipeline_MultiItemBatch_PreservesInputOrderAndIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewMenuItemStore()
	artifacts := memory.NewArtifactStore()
	pipeline := newIntPipeline(t, store, artifacts)
	ctx := context.Background()

	batch := []service.RawItem{
		{ExternalID: "ok-1", Payload: map[string]any{"external_id": "ok-1", "name": "A"}},
		{ExternalID: "bad-1", Payload: map[string]any{"name": "missing external_id"}},
		{ExternalID: "ok-2", Payload: map[string]any{"external_id": "ok-2", "name": "B"}},
	}

	result, err := pipeline.Run(ctx, batch)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)

	assert.Equal(t, "ok-1", result.Outcomes[0].ExternalID)
	assert.Equal(t, "created", result.Outcomes[0].Status)

	assert.Equal(t, "bad-1", result.Outcomes[1].ExternalID)
	assert.Equal(t, "rejected", result.Outcomes[1].Status)

	assert.Equal(t, "ok-2", result.Outcomes[2].ExternalID)
	assert.Equal(t, "created", result.Outcomes[2].Status)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Rejected)
}

// TestPipeline_DuplicateExternalIDWithinBatch verifies the first
// occurrence of an external_id proceeds and every later occurrence is
// rejected without reaching the processor (spec §4.6 stage 1).
func TestPipeline_DuplicateExternalIDWithinBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewMenuItemStore()
	artifacts := memory.NewArtifactStore()
	pipeline := newIntPipeline(t, store, artifacts)
	ctx := context.Background()

	batch := []service.RawItem{
		{ExternalID: "dup-1", Payload: map[string]any{"external_id": "dup-1", "name": "First"}},
		{ExternalID: "dup-1", Payload: map[string]any{"external_id": "dup-1", "name": "Second"}},
	}

	result, err := pipeline.Run(ctx, batch)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)

	assert.Equal(t, "created", result.Outcomes[0].Status)
	assert.Equal(t, "rejected", result.Outcomes[1].Status)
	assert.Contains(t, result.Outcomes[1].Violations, "external_id")
}
