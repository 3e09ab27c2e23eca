// Package config provides configuration types for the ingest pipeline.
//
// A PipelineConfig describes everything needed to construct one
// service.Pipeline for one environment: the batch-level constants (env,
// ruleset version, worker concurrency), the per-source wiring (which
// raw contract and compiled rulesets a source's items run through), and
// the outbound adapter selection (persistence, replay-pack storage,
// feature flags). None of this is read by the core rule engine itself —
// it exists purely to assemble the narrow ports the core depends on.
package config

// PipelineConfig is the top-level configuration for one ingestpipe
// process.
type PipelineConfig struct {
	// Env names the deployment environment (e.g. "production",
	// "staging"), stamped into every replay pack's object key.
	Env string `yaml:"env" mapstructure:"env" validate:"required"`

	// RulesetVersion is the version string frozen into every batch's
	// BatchContext and replay pack.
	RulesetVersion string `yaml:"ruleset_version" mapstructure:"ruleset_version" validate:"required"`

	// Concurrency bounds the per-item worker pool. Defaults to 4 if
	// unset (SetDefaults).
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"omitempty,min=1"`

	// LogLevel sets the minimum slog level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Sources configures each upstream source the pipeline accepts
	// batches from.
	Sources []SourceConfig `yaml:"sources" mapstructure:"sources" validate:"required,min=1,dive"`

	// CanonicalCreateRulesetPath and CanonicalUpdateRulesetPath name the
	// YAML ruleset documents compiled into the single create-action and
	// update-action RuleSets every source's items run through after
	// classification (spec §4.6 step 7). Unlike the per-source
	// normalization ruleset, these are shared across all sources: the
	// canonical schema they write into is source-independent.
	CanonicalCreateRulesetPath string `yaml:"canonical_create_ruleset_path" mapstructure:"canonical_create_ruleset_path" validate:"required"`
	CanonicalUpdateRulesetPath string `yaml:"canonical_update_ruleset_path" mapstructure:"canonical_update_ruleset_path" validate:"required"`

	// Storage selects the MenuItemStore and LookupProvider adapter.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Replay selects the ArtifactStore adapter and stamps build info
	// recorded into every replay pack.
	Replay ReplayConfig `yaml:"replay" mapstructure:"replay"`

	// Flags selects the FlagBackend adapter and declares the manifest
	// of flag names rules are permitted to read.
	Flags FlagsConfig `yaml:"flags" mapstructure:"flags"`

	// SilentAttributes lists canonical field names whose updates bypass
	// model-level hooks at persistence (spec §9 "silent attributes").
	SilentAttributes []string `yaml:"silent_attributes" mapstructure:"silent_attributes"`

	// DevMode relaxes startup requirements (e.g. an in-memory storage
	// driver with no DSN) for local runs.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// SourceConfig wires one upstream source's raw contract and the
// compiled ruleset document its items run through before action
// classification.
type SourceConfig struct {
	// ID is the source_id this config applies to (e.g. "treez").
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// RawContract names which built-in RawPayloadContract schema
	// validates this source's inbound payloads (e.g. "treez").
	RawContract string `yaml:"raw_contract" mapstructure:"raw_contract" validate:"required"`

	// ExternalRulesetPath is the YAML ruleset document that normalizes
	// this source's field names and types (spec §4.6 step 3).
	ExternalRulesetPath string `yaml:"external_ruleset_path" mapstructure:"external_ruleset_path" validate:"required"`

	// DestroyPointerField is the normalized payload field whose
	// presence (a non-empty string, or boolean true) marks an item for
	// destruction (spec §4.6 step 3's destroy_pointer).
	DestroyPointerField string `yaml:"destroy_pointer_field" mapstructure:"destroy_pointer_field" validate:"required"`
}

// StorageConfig selects the MenuItemStore/LookupProvider adapter pair.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"required,oneof=sqlite memory"`

	// DSN is the sqlite data source name (e.g. "file:catalog.db").
	// Required when Driver is "sqlite".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ReplayConfig selects the ArtifactStore adapter and the build-time
// stamps every replay pack records.
type ReplayConfig struct {
	// Driver is "file" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"required,oneof=file memory"`

	// Dir is the root directory the file driver writes the
	// env=.../date=.../... object-key tree under.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// AppVersion, GitSHA, PayloadSchemaVersion are stamped verbatim
	// into replay.BuildInfo.
	AppVersion           string `yaml:"app_version" mapstructure:"app_version"`
	GitSHA               string `yaml:"git_sha" mapstructure:"git_sha"`
	PayloadSchemaVersion string `yaml:"payload_schema_version" mapstructure:"payload_schema_version"`
}

// FlagsConfig selects the FlagBackend adapter and declares the
// permitted flag manifest (spec §4.5).
type FlagsConfig struct {
	// Driver is "static" (config-supplied values) or "memory" (test double).
	Driver string `yaml:"driver" mapstructure:"driver" validate:"required,oneof=static memory"`

	// Namespace and ActorKey are passed to FlagBackend.Evaluate.
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	ActorKey  string `yaml:"actor_key" mapstructure:"actor_key"`

	// Manifest is the fixed, declared set of flag names rules may read.
	// Accessing any other name at evaluation time is an unrecoverable
	// error (spec §4.5).
	Manifest []string `yaml:"manifest" mapstructure:"manifest" validate:"required,min=1"`

	// StaticValues supplies every manifest flag's value when Driver is
	// "static".
	StaticValues map[string]bool `yaml:"static_values" mapstructure:"static_values"`
}

// SetDefaults applies sensible defaults for fields left at their zero
// value, mirroring the teacher's OSSConfig.SetDefaults.
func (c *PipelineConfig) SetDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Replay.Driver == "" {
		c.Replay.Driver = "file"
	}
	if c.Replay.Dir == "" {
		c.Replay.Dir = "./replay-packs"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Flags.Driver == "" {
		c.Flags.Driver = "static"
	}
}

// SetDevDefaults applies permissive defaults for local development,
// mirroring the teacher's OSSConfig.SetDevDefaults: applied after
// SetDefaults but before Validate, so a one-line config can still pass.
func (c *PipelineConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Storage.Driver = "memory"
	c.Replay.Driver = "memory"
	c.Flags.Driver = "memory"
	if len(c.Flags.Manifest) == 0 {
		c.Flags.Manifest = []string{"dev-flag"}
	}
}
