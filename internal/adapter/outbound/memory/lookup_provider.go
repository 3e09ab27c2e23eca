// Package memory provides in-memory implementations of the outbound
// ports for tests and local development, grounded on the teacher's
// mutex-guarded in-memory store pattern (formerly policy_store.go: a
// slice/map behind a sync.RWMutex, returning defensive copies).
package memory

import (
	"context"
	"sync"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
)

// LookupProvider is a fixed in-memory outbound.LookupProvider: the
// catalog is seeded once at construction and never mutated, matching
// how a real reference-data provider would be queried within one batch.
type LookupProvider struct {
	mu      sync.RWMutex
	brands  map[string]int64
	strains map[string]int64
	tags    map[string]batchctx.TagRecord
}

// NewLookupProvider seeds a LookupProvider from fixed catalogs.
func NewLookupProvider(brands, strains map[string]int64, tags map[string]batchctx.TagRecord) *LookupProvider {
	return &LookupProvider{
		brands:  cloneInt64Map(brands),
		strains: cloneInt64Map(strains),
		tags:    cloneTagMap(tags),
	}
}

func (p *LookupProvider) PreloadBrands(_ context.Context, keys []string) (map[string]int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return subsetInt64(p.brands, keys), nil
}

func (p *LookupProvider) PreloadStrains(_ context.Context, names []string) (map[string]int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return subsetInt64(p.strains, names), nil
}

func (p *LookupProvider) PreloadTags(_ context.Context, names []string) (map[string]batchctx.TagRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]batchctx.TagRecord, len(names))
	for _, n := range names {
		if v, ok := p.tags[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func subsetInt64(m map[string]int64, keys []string) map[string]int64 {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTagMap(m map[string]batchctx.TagRecord) map[string]batchctx.TagRecord {
	out := make(map[string]batchctx.TagRecord, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
