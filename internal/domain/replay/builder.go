package replay

import (
	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
)

// BuildInfo carries the process-level stamps (app version, git SHA,
// payload schema version) a Pack records but that neither batchctx nor
// itemctx knows about — they're read once at process start, not
// per-batch or per-item.
type BuildInfo struct {
	AppVersion           string
	GitSHA               string
	PayloadSchemaVersion string
}

// Build assembles a Pack from a terminal item's final itemctx.Context,
// the batch it ran in, and the rule order its ruleset compiled to,
// implementing spec §6's "sufficient to replay" requirement: every
// input the canonical transform consulted is captured by value.
func Build(build BuildInfo, batch batchctx.Context, item itemctx.Context, producedAt int64, mappedPayload map[string]any, rulesOrder []RuleOrderEntry) Pack {
	changedKeys := item.ChangedKeys().Sorted()
	if item.IsAllKeys() {
		changedKeys = []string{"all"}
	}

	lookups := batch.Lookups()
	tags := make(map[string]TagSnapshot, len(lookups.Tags))
	for k, v := range lookups.Tags {
		tags[k] = TagSnapshot{ID: v.ID, Name: v.Name}
	}

	var violations map[string][]string
	if item.Invalid() {
		violations = item.Violations()
	}

	flags := batch.Flags()

	return Pack{
		PackVersion:          PackVersion,
		ProducedAt:           producedAt,
		Env:                  batch.Env(),
		AppVersion:           build.AppVersion,
		GitSHA:               build.GitSHA,
		RulesetVersion:       batch.RulesetVersion(),
		FlagsVersion:         flags.Version,
		PayloadSchemaVersion: build.PayloadSchemaVersion,
		SourceID:             item.SourceID(),
		ExternalID:           item.ExternalID(),
		IngestID:             item.IngestID(),
		Status:               string(item.Status()),
		FiredRules:           item.Fired(),
		RawPayloadNormalized: item.Payload(),
		MappedPayload:        mappedPayload,
		ChangedKeys:          changedKeys,
		Changes:              item.Changes(),
		Violations:           violations,
		ResolverSnapshot: ResolverSnapshot{
			Brands:  lookups.Brands,
			Strains: lookups.Strains,
			Tags:    tags,
		},
		RulesOrder:    rulesOrder,
		FlagsSnapshot: flags.Values,
	}
}

// Outcome projects a built Pack down to the caller-facing summary.
func (p Pack) Outcome() Outcome {
	return Outcome{
		ExternalID: p.ExternalID,
		Status:     p.Status,
		FiredRules: p.FiredRules,
		Violations: p.Violations,
	}
}
