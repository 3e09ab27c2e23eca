// Package app assembles the narrow ports and service-layer
// collaborators a config.PipelineConfig describes into a runnable
// service.Pipeline, the way the teacher's cmd/sentinel-gate/cmd/start.go
// wires its proxy.Server from an OSSConfig: one function translating
// config into concrete adapters, called once per process and reused by
// every CLI subcommand that needs a live pipeline (run, serve).
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/memory"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/obs"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/objectstore"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/sqlitestore"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/yamlconfig"
	"github.com/catalogforge/ingestpipe/internal/config"
	"github.com/catalogforge/ingestpipe/internal/domain/contract"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
	"github.com/catalogforge/ingestpipe/internal/port/outbound"
	"github.com/catalogforge/ingestpipe/internal/rules"
	"github.com/catalogforge/ingestpipe/internal/service"
)

// Built bundles the assembled Pipeline with the resources Close should
// release once the process is done with it (e.g. a sqlite handle).
type Built struct {
	Pipeline *service.Pipeline
	Close    func() error
}

// BuildPipeline assembles one service.Pipeline for sourceID, the only
// source the returned Pipeline's Run processes (spec's PipelineConfig
// is one SourceID at a time; a multi-source deployment runs one
// Pipeline per source).
func BuildPipeline(cfg *config.PipelineConfig, sourceID string, logger *slog.Logger, recorder *obs.Recorder) (*Built, error) {
	src, ok := findSource(cfg.Sources, sourceID)
	if !ok {
		return nil, fmt.Errorf("app: unknown source %q", sourceID)
	}

	evaluator, err := ingestcel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("app: build CEL evaluator: %w", err)
	}
	registry := rules.NewRegistry()

	externalRS, err := compileRuleset(src.ExternalRulesetPath, registry, evaluator)
	if err != nil {
		return nil, fmt.Errorf("app: source %q external ruleset: %w", sourceID, err)
	}
	createRS, err := compileRuleset(cfg.CanonicalCreateRulesetPath, registry, evaluator)
	if err != nil {
		return nil, fmt.Errorf("app: canonical create ruleset: %w", err)
	}
	updateRS, err := compileRuleset(cfg.CanonicalUpdateRulesetPath, registry, evaluator)
	if err != nil {
		return nil, fmt.Errorf("app: canonical update ruleset: %w", err)
	}

	logger.Info("compiled rulesets",
		"source_id", sourceID,
		"external_version", externalRS.Version(), "external_fingerprint", externalRS.Fingerprint(),
		"create_version", createRS.Version(), "create_fingerprint", createRS.Fingerprint(),
		"update_version", updateRS.Version(), "update_fingerprint", updateRS.Fingerprint(),
	)

	store, lookups, closeStorage, err := buildStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	artifacts, err := buildArtifactStore(cfg.Replay)
	if err != nil {
		closeStorage()
		return nil, err
	}
	flagBackend := buildFlagBackend(cfg.Flags)

	rawContracts := contract.NewRegistry(map[string]contract.Contract{
		"treez": contract.NewTreezRawPayloadContract(),
	}, contract.NewTreezRawPayloadContract())

	processorCfg := service.ProcessorConfig{
		RawContracts:      rawContracts,
		CanonicalContract: contract.NewCanonicalMenuItemContract(),
		ExternalTransformers: map[string]*ruleset.RuleSet{
			sourceID: externalRS,
		},
		DestroyPointers: map[string]service.DestroyPointer{
			sourceID: destroyPointerFor(src.DestroyPointerField),
		},
		CreateRuleSet: createRS,
		UpdateRuleSet: updateRS,
		Store:         store,
	}

	pipelineCfg := service.PipelineConfig{
		Env:             cfg.Env,
		SourceID:        sourceID,
		RulesetVersion:  cfg.RulesetVersion,
		Concurrency:     cfg.Concurrency,
		Preloader:       service.NewPreloader(lookups, logger),
		FlagSnapshotter: service.NewFlagSnapshotter(flagBackend, cfg.Flags.Manifest, logger),
		FlagActorKey:    cfg.Flags.ActorKey,
		FlagNamespace:   cfg.Flags.Namespace,
		Processor:       processorCfg,
		Build: replay.BuildInfo{
			AppVersion:           cfg.Replay.AppVersion,
			GitSHA:               cfg.Replay.GitSHA,
			PayloadSchemaVersion: cfg.Replay.PayloadSchemaVersion,
		},
		Artifacts: artifacts,
		Obs:       recorder,
	}

	pipeline := service.NewPipeline(pipelineCfg, ruleOrderForAction(createRS, updateRS), logger)
	return &Built{Pipeline: pipeline, Close: closeStorage}, nil
}

func findSource(sources []config.SourceConfig, id string) (config.SourceConfig, bool) {
	for _, s := range sources {
		if s.ID == id {
			return s, true
		}
	}
	return config.SourceConfig{}, false
}

func compileRuleset(path string, registry *rules.Registry, evaluator *ingestcel.Evaluator) (*ruleset.RuleSet, error) {
	doc, err := yamlconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return doc.Compile(registry, evaluator)
}

func destroyPointerFor(field string) service.DestroyPointer {
	return func(mapped map[string]any) bool {
		v, ok := mapped[field]
		if !ok {
			return false
		}
		switch t := v.(type) {
		case bool:
			return t
		case string:
			return t != ""
		default:
			return false
		}
	}
}

func buildStorage(cfg config.StorageConfig) (outbound.MenuItemStore, outbound.LookupProvider, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewMenuItemStore(), memory.NewLookupProvider(nil, nil, nil), func() error { return nil }, nil
	case "sqlite":
		db, err := sqlitestore.Open(cfg.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("app: open storage: %w", err)
		}
		closer := func() error { return closeDB(db) }
		return sqlitestore.NewMenuItemStore(db), sqlitestore.NewLookupProvider(db), closer, nil
	default:
		return nil, nil, nil, fmt.Errorf("app: unknown storage driver %q", cfg.Driver)
	}
}

func closeDB(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func buildArtifactStore(cfg config.ReplayConfig) (outbound.ArtifactStore, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewArtifactStore(), nil
	case "file":
		return objectstore.NewFileStore(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("app: unknown replay driver %q", cfg.Driver)
	}
}

func buildFlagBackend(cfg config.FlagsConfig) outbound.FlagBackend {
	if cfg.Driver == "memory" {
		return memory.NewFlagBackend(nil)
	}
	namespaced := make(map[string]bool, len(cfg.StaticValues))
	for name, v := range cfg.StaticValues {
		namespaced[cfg.Namespace+"/"+name] = v
	}
	return memory.NewFlagBackend(namespaced)
}

// ruleOrderForAction closes over the compiled create/update RuleSets to
// answer Pipeline's per-item "what order did this action's rules run
// in" question for replay pack construction (spec §6).
func ruleOrderForAction(createRS, updateRS *ruleset.RuleSet) func(itemctx.Action) []replay.RuleOrderEntry {
	return func(action itemctx.Action) []replay.RuleOrderEntry {
		var rs *ruleset.RuleSet
		switch action {
		case itemctx.ActionCreate:
			rs = createRS
		case itemctx.ActionUpdate:
			rs = updateRS
		default:
			return nil
		}
		names := rs.OrderedNames()
		entries := make([]replay.RuleOrderEntry, len(names))
		for i, name := range names {
			entries[i] = replay.RuleOrderEntry{Name: name, Priority: rs.Priority(name)}
		}
		return entries
	}
}
