package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/memory"
	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
)

func TestPreloader_CollectsDistinctKeysAcrossItems(t *testing.T) {
	provider := memory.NewLookupProvider(
		map[string]int64{"acme": 1, "globex": 2},
		map[string]int64{"sativa": 10},
		map[string]batchctx.TagRecord{"organic": {ID: 5, Name: "organic"}},
	)
	preloader := NewPreloader(provider, nil)

	payloads := []map[string]any{
		{"brand_id": "acme", "strain_name": "sativa", "tag_names": []string{"organic"}},
		{"brand_id": "acme"},
		{"brand_id": "globex", "tag_names": []any{"organic", ""}},
		{},
	}

	lookups, err := preloader.Preload(context.Background(), payloads)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lookups.Brands["acme"])
	assert.Equal(t, int64(2), lookups.Brands["globex"])
	assert.Equal(t, int64(10), lookups.Strains["sativa"])
	assert.Equal(t, int64(5), lookups.Tags["organic"].ID)
}

func TestPreloader_EmptyPayloadsYieldEmptyMaps(t *testing.T) {
	provider := memory.NewLookupProvider(nil, nil, nil)
	preloader := NewPreloader(provider, nil)

	lookups, err := preloader.Preload(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, lookups.Brands)
	assert.Empty(t, lookups.Strains)
	assert.Empty(t, lookups.Tags)
}
