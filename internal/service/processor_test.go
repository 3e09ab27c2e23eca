package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/memory"
	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/contract"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
)

// fakeRule mirrors the ruleset package's own test double: it always
// applies and writes a fixed patch, unless a gate says otherwise.
type fakeRule struct {
	meta  rule.Meta
	patch rule.Patch
	gate  func(rule.EvalContext) bool
}

func (f fakeRule) Meta() rule.Meta { return f.meta }

func (f fakeRule) Applies(ctx rule.EvalContext) bool {
	if f.gate != nil {
		return f.gate(ctx)
	}
	return true
}

func (f fakeRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	return f.patch.Clone(), nil
}

func newFakeRule(name string, priority int, writes []string, patch rule.Patch) fakeRule {
	return fakeRule{meta: rule.NewMeta(name, priority, nil, writes, nil, nil, nil), patch: patch}
}

func newTestBatch() batchctx.Context {
	return batchctx.NewBuilder().
		WithEnv("test").
		WithSourceID("treez").
		WithRulesetVersion("v1").
		WithFlags(batchctx.FlagSnapshot{Values: map[string]bool{}, Version: "none"}).
		WithLookups(batchctx.NewLookupMaps()).
		Freeze()
}

func newTestProcessor(t *testing.T, store *memory.MenuItemStore, destroy DestroyPointer) *Processor {
	t.Helper()

	noop := newFakeRule("external_noop", 0, nil, rule.Patch{})
	identity, err := ruleset.Compile([]rule.Rule{noop}, "external-v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)

	statusRule := fakeRule{
		meta:  rule.NewMeta("default_status", 0, nil, []string{"status"}, nil, nil, nil),
		patch: rule.Patch{"status": "active"},
		gate:  func(ctx rule.EvalContext) bool { return ctx.IsAllKeys() },
	}
	createRS, err := ruleset.Compile([]rule.Rule{statusRule}, "create-v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)
	updateRS, err := ruleset.Compile([]rule.Rule{statusRule}, "update-v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)

	destroyPointers := map[string]DestroyPointer{}
	if destroy != nil {
		destroyPointers["treez"] = destroy
	}

	cfg := ProcessorConfig{
		RawContracts:      contract.NewRegistry(nil, contract.NewTreezRawPayloadContract()),
		CanonicalContract: contract.NewCanonicalMenuItemContract(),
		ExternalTransformers: map[string]*ruleset.RuleSet{
			"treez": identity,
		},
		DestroyPointers: destroyPointers,
		CreateRuleSet:   createRS,
		UpdateRuleSet:   updateRS,
		Store:           store,
	}
	return NewProcessor(cfg, nil)
}

func TestProcess_RawValidationRejectsMissingRequiredField(t *testing.T) {
	store := memory.NewMenuItemStore()
	p := newTestProcessor(t, store, nil)

	item := itemctx.New("ext-1", "treez", map[string]any{})

	out, err := p.Process(context.Background(), newTestBatch(), item)
	require.NoError(t, err)
	assert.Equal(t, itemctx.StatusRejected, out.Status())
	assert.True(t, out.Invalid())
}

func TestProcess_CreatesNewRecord(t *testing.T) {
	store := memory.NewMenuItemStore()
	p := newTestProcessor(t, store, nil)

	item := itemctx.New("ext-1", "treez", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
	})

	out, err := p.Process(context.Background(), newTestBatch(), item)
	require.NoError(t, err)
	require.Equal(t, itemctx.StatusCreated, out.Status())
	assert.Equal(t, itemctx.ActionCreate, out.Action())

	rec, found, ferr := store.Find(context.Background(), "treez", "ext-1")
	require.NoError(t, ferr)
	require.True(t, found)
	assert.Equal(t, "active", rec.Fields["status"])
}

func TestProcess_UpdatesExistingRecord(t *testing.T) {
	store := memory.NewMenuItemStore()
	store.Seed("treez", "ext-1", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
		"status":      "active",
	}, nil)
	p := newTestProcessor(t, store, nil)

	item := itemctx.New("ext-1", "treez", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream Updated",
	})

	out, err := p.Process(context.Background(), newTestBatch(), item)
	require.NoError(t, err)
	require.Equal(t, itemctx.StatusUpdated, out.Status())
	assert.Equal(t, itemctx.ActionUpdate, out.Action())

	rec, found, ferr := store.Find(context.Background(), "treez", "ext-1")
	require.NoError(t, ferr)
	require.True(t, found)
	assert.Equal(t, "Blue Dream Updated", rec.Fields["name"])
}

func TestProcess_NoopWhenNoChanges(t *testing.T) {
	store := memory.NewMenuItemStore()
	store.Seed("treez", "ext-1", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
		"status":      "active",
	}, nil)
	p := newTestProcessor(t, store, nil)

	item := itemctx.New("ext-1", "treez", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
	})

	out, err := p.Process(context.Background(), newTestBatch(), item)
	require.NoError(t, err)
	assert.Equal(t, itemctx.StatusNoop, out.Status())
}

func TestProcess_DestroysExistingRecord(t *testing.T) {
	store := memory.NewMenuItemStore()
	store.Seed("treez", "ext-1", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
		"status":      "active",
	}, nil)
	destroy := func(mapped map[string]any) bool { return true }
	p := newTestProcessor(t, store, destroy)

	item := itemctx.New("ext-1", "treez", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
	})

	out, err := p.Process(context.Background(), newTestBatch(), item)
	require.NoError(t, err)
	require.Equal(t, itemctx.StatusDestroyed, out.Status())
	assert.Equal(t, itemctx.ActionDestroy, out.Action())

	_, found, ferr := store.Find(context.Background(), "treez", "ext-1")
	require.NoError(t, ferr)
	assert.False(t, found)
}

func TestProcess_UnclassifiableWhenDestroyPointerSetWithoutExistingRecord(t *testing.T) {
	store := memory.NewMenuItemStore()
	destroy := func(mapped map[string]any) bool { return true }
	p := newTestProcessor(t, store, destroy)

	item := itemctx.New("ext-1", "treez", map[string]any{
		"external_id": "ext-1",
		"name":        "Blue Dream",
	})

	out, err := p.Process(context.Background(), newTestBatch(), item)
	require.NoError(t, err)
	assert.Equal(t, itemctx.StatusRejected, out.Status())
	assert.True(t, out.Invalid())
}
