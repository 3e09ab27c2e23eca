package sqlitestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
)

func TestLookupProvider_PreloadBrands(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO brands (brand_key, brand_id) VALUES ('cookies', 101), ('stiiizy', 102)`)
	require.NoError(t, err)

	p := NewLookupProvider(db)
	got, err := p.PreloadBrands(context.Background(), []string{"cookies", "stiiizy", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"cookies": 101, "stiiizy": 102}, got)
}

func TestLookupProvider_PreloadStrains(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO strains (strain_name, strain_id) VALUES ('blue dream', 201)`)
	require.NoError(t, err)

	p := NewLookupProvider(db)
	got, err := p.PreloadStrains(context.Background(), []string{"blue dream", "gsc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"blue dream": 201}, got)
}

func TestLookupProvider_PreloadTags(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO tags (tag_name, tag_id) VALUES ('indica', 301), ('sativa', 302)`)
	require.NoError(t, err)

	p := NewLookupProvider(db)
	got, err := p.PreloadTags(context.Background(), []string{"indica", "sativa", "hybrid"})
	require.NoError(t, err)
	assert.Equal(t, map[string]batchctx.TagRecord{
		"indica": {ID: 301, Name: "indica"},
		"sativa": {ID: 302, Name: "sativa"},
	}, got)
}

func TestLookupProvider_PreloadBrands_EmptyKeysYieldsEmptyMap(t *testing.T) {
	db := openTestDB(t)
	p := NewLookupProvider(db)

	got, err := p.PreloadBrands(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookupProvider_PreloadBrands_ChunksLargeKeySets(t *testing.T) {
	db := openTestDB(t)
	keys := make([]string, 0, maxVariables+50)
	stmt, err := db.Prepare(`INSERT INTO brands (brand_key, brand_id) VALUES (?, ?)`)
	require.NoError(t, err)
	defer stmt.Close()
	for i := 0; i < maxVariables+50; i++ {
		key := "brand-" + string(rune('a'+i%26)) + string(rune('A'+i/26))
		keys = append(keys, key)
		_, err := stmt.Exec(key, int64(i))
		require.NoError(t, err)
	}

	p := NewLookupProvider(db)
	got, err := p.PreloadBrands(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, got, len(keys))
}
