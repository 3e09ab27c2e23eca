package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
)

func TestComputeEvalCacheKey_Deterministic(t *testing.T) {
	changed := fieldset.New("b", "a")
	payload := map[string]any{"name": "Widget", "price_cents": int64(500)}

	key1, ok1 := computeEvalCacheKey("create-v1", itemctx.ActionCreate, false, changed, payload, nil, false)
	key2, ok2 := computeEvalCacheKey("create-v1", itemctx.ActionCreate, false, fieldset.New("a", "b"), payload, nil, false)

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, key1, key2, "changed-key insertion order must not affect the hash")
}

func TestComputeEvalCacheKey_DiffersOnPayload(t *testing.T) {
	changed := fieldset.New("name")
	key1, ok1 := computeEvalCacheKey("create-v1", itemctx.ActionCreate, false, changed, map[string]any{"name": "A"}, nil, false)
	key2, ok2 := computeEvalCacheKey("create-v1", itemctx.ActionCreate, false, changed, map[string]any{"name": "B"}, nil, false)

	require.True(t, ok1)
	require.True(t, ok2)
	assert.NotEqual(t, key1, key2)
}

func TestComputeEvalCacheKey_DiffersOnVersion(t *testing.T) {
	changed := fieldset.New("name")
	payload := map[string]any{"name": "A"}
	key1, _ := computeEvalCacheKey("create-v1", itemctx.ActionCreate, false, changed, payload, nil, false)
	key2, _ := computeEvalCacheKey("create-v2", itemctx.ActionCreate, false, changed, payload, nil, false)

	assert.NotEqual(t, key1, key2)
}

func TestEvalCache_GetMissThenHit(t *testing.T) {
	c := newEvalCache(2)
	_, ok := c.Get(42)
	assert.False(t, ok)

	result := ruleset.EvalResult{
		Changes:     map[string]any{"status": "active"},
		Fired:       []string{"set_status"},
		ChangedKeys: fieldset.New("status"),
	}
	c.Put(42, result)

	got, ok := c.Get(42)
	require.True(t, ok)
	assert.Equal(t, result.Fired, got.Fired)
	assert.Equal(t, result.Changes["status"], got.Changes["status"])
}

func TestEvalCache_HitReturnsIndependentCopy(t *testing.T) {
	c := newEvalCache(2)
	original := ruleset.EvalResult{
		Changes:     map[string]any{"status": "active"},
		ChangedKeys: fieldset.New("status"),
	}
	c.Put(1, original)

	got, ok := c.Get(1)
	require.True(t, ok)
	got.Changes["status"] = "mutated"
	got.ChangedKeys = got.ChangedKeys.With("extra")

	again, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "active", again.Changes["status"], "a caller mutating its copy must not affect the cached entry")
	assert.False(t, again.ChangedKeys.Contains("extra"))
}

func TestEvalCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newEvalCache(2)
	c.Put(1, ruleset.EvalResult{Fired: []string{"r1"}})
	c.Put(2, ruleset.EvalResult{Fired: []string{"r2"}})

	// Touch key 1 so key 2 becomes the least recently used.
	_, _ = c.Get(1)

	c.Put(3, ruleset.EvalResult{Fired: []string{"r3"}})

	_, ok2 := c.Get(2)
	assert.False(t, ok2, "key 2 should have been evicted")

	_, ok1 := c.Get(1)
	_, ok3 := c.Get(3)
	assert.True(t, ok1)
	assert.True(t, ok3)
}

func TestEvalCache_ZeroSizeDisablesCaching(t *testing.T) {
	c := newEvalCache(0)
	c.Put(1, ruleset.EvalResult{Fired: []string{"r1"}})

	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestEvalCache_NilReceiverIsSafeNoop(t *testing.T) {
	var c *evalCache
	_, ok := c.Get(1)
	assert.False(t, ok)
	c.Put(1, ruleset.EvalResult{}) // must not panic
}

func TestRuleSetFingerprint_DiffersWhenRuleOrderDiffers(t *testing.T) {
	ruleA := newFakeReplayRule("a", 0, []string{"a"}, rule.Patch{"a": 1})
	ruleB := newFakeReplayRule("b", 1, []string{"b"}, rule.Patch{"b": 2})

	rs1, err := ruleset.Compile([]rule.Rule{ruleA, ruleB}, "v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)
	rs2, err := ruleset.Compile([]rule.Rule{ruleB}, "v1", rule.MergeErrorOnConflict)
	require.NoError(t, err)

	assert.NotEqual(t, rs1.Fingerprint(), rs2.Fingerprint())
	assert.Equal(t, rs1.Version(), rs2.Version(), "same version stamp, different compiled content")
}
