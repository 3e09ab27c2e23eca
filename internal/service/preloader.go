package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/ingesterr"
	"github.com/catalogforge/ingestpipe/internal/port/outbound"
)

// Preloader implements C4: given the full set of raw item payloads for a
// batch, collect the distinct reference keys and issue exactly one bulk
// query per reference kind, producing the frozen LookupMaps every rule
// reads through its EvalContext. Partial preloads are not permitted —
// any backend error is batch-fatal (spec §4.4).
type Preloader struct {
	provider outbound.LookupProvider
	logger   *slog.Logger
}

// NewPreloader constructs a Preloader, following the teacher's
// constructor-injected-logger convention (NewPolicyService(ctx, store,
// logger, ...)).
func NewPreloader(provider outbound.LookupProvider, logger *slog.Logger) *Preloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preloader{provider: provider, logger: logger}
}

// Preload collects the distinct brand_id, strain_name, and tag_names
// values referenced across payloads and resolves each kind in one bulk
// call, per spec §4.4's three reference kinds.
func (p *Preloader) Preload(ctx context.Context, payloads []map[string]any) (batchctx.LookupMaps, error) {
	brandKeys := collectStrings(payloads, "brand_id")
	strainNames := collectStrings(payloads, "strain_name")
	tagNames := collectTagNames(payloads, "tag_names")

	brands, err := p.provider.PreloadBrands(ctx, brandKeys)
	if err != nil {
		return batchctx.LookupMaps{}, fmt.Errorf("%w: preload brands: %v", ingesterr.ErrBatchFatal, err)
	}
	strains, err := p.provider.PreloadStrains(ctx, strainNames)
	if err != nil {
		return batchctx.LookupMaps{}, fmt.Errorf("%w: preload strains: %v", ingesterr.ErrBatchFatal, err)
	}
	tags, err := p.provider.PreloadTags(ctx, tagNames)
	if err != nil {
		return batchctx.LookupMaps{}, fmt.Errorf("%w: preload tags: %v", ingesterr.ErrBatchFatal, err)
	}

	tagRecords := make(map[string]batchctx.TagRecord, len(tags))
	for k, v := range tags {
		tagRecords[k] = v
	}

	p.logger.Info("preload complete",
		"brands", len(brands), "strains", len(strains), "tags", len(tagRecords))

	return batchctx.LookupMaps{Brands: brands, Strains: strains, Tags: tagRecords}, nil
}

// collectStrings gathers the unique, non-blank string values of field
// across every payload, sorted for deterministic query ordering.
func collectStrings(payloads []map[string]any, field string) []string {
	seen := make(map[string]struct{})
	for _, p := range payloads {
		v, ok := p[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
	}
	return sortedKeys(seen)
}

// collectTagNames flattens the list-valued tag_names field across every
// payload into a unique, sorted set.
func collectTagNames(payloads []map[string]any, field string) []string {
	seen := make(map[string]struct{})
	for _, p := range payloads {
		v, ok := p[field]
		if !ok {
			continue
		}
		list, ok := v.([]string)
		if !ok {
			if anyList, ok := v.([]any); ok {
				for _, item := range anyList {
					if s, ok := item.(string); ok && s != "" {
						seen[s] = struct{}{}
					}
				}
			}
			continue
		}
		for _, s := range list {
			if s != "" {
				seen[s] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
