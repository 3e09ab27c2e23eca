// Package batchctx defines the frozen, batch-scoped values every item in
// a batch observes identically: the sampled clock, the feature-flag
// snapshot, and the preloaded reference lookups (spec §3, §4.3).
package batchctx

import "time"

// LookupMaps are the three batch-scoped, read-only reference caches
// populated once by the Preloader before the first item is processed.
type LookupMaps struct {
	// Brands maps a brand identifier (as it appears in the payload) to
	// the resolved catalog brand id.
	Brands map[string]int64
	// Strains maps a strain name to the resolved catalog strain id.
	Strains map[string]int64
	// Tags maps a tag name to its resolved catalog record.
	Tags map[string]TagRecord
}

// TagRecord mirrors rule.TagRecord without importing the rule package,
// keeping batchctx a leaf. ruleset converts between the two at the
// EvalContext boundary.
type TagRecord struct {
	ID   int64
	Name string
}

// NewLookupMaps builds a LookupMaps with initialized, non-nil maps.
func NewLookupMaps() LookupMaps {
	return LookupMaps{
		Brands:  map[string]int64{},
		Strains: map[string]int64{},
		Tags:    map[string]TagRecord{},
	}
}

func (l LookupMaps) clone() LookupMaps {
	out := NewLookupMaps()
	for k, v := range l.Brands {
		out.Brands[k] = v
	}
	for k, v := range l.Strains {
		out.Strains[k] = v
	}
	for k, v := range l.Tags {
		out.Tags[k] = v
	}
	return out
}

// FlagSnapshot is a frozen map of feature-flag values plus a stable
// digest over the sorted map, computed once per batch (spec §4.5).
type FlagSnapshot struct {
	Values  map[string]bool
	Version string
}

func (f FlagSnapshot) clone() FlagSnapshot {
	out := make(map[string]bool, len(f.Values))
	for k, v := range f.Values {
		out[k] = v
	}
	return FlagSnapshot{Values: out, Version: f.Version}
}

// Context is the frozen, one-per-batch carrier. Every field is set
// exactly once by Builder.Freeze and never mutated afterward, making a
// Context value safe to share by copy across concurrent workers
// (spec §4.3, §5).
type Context struct {
	now            time.Time
	env            string
	sourceID       string
	rulesetVersion string
	flags          FlagSnapshot
	lookups        LookupMaps
}

// Now returns the single wall-clock value sampled at batch start.
func (c Context) Now() time.Time { return c.now }

// Env returns the deployment environment constant for this batch.
func (c Context) Env() string { return c.env }

// SourceID returns the upstream source identifier for this batch.
func (c Context) SourceID() string { return c.sourceID }

// RulesetVersion returns the compiled RuleSet's version string.
func (c Context) RulesetVersion() string { return c.rulesetVersion }

// Flags returns the frozen feature-flag snapshot.
func (c Context) Flags() FlagSnapshot { return c.flags.clone() }

// Lookups returns the frozen, preloaded reference caches.
func (c Context) Lookups() LookupMaps { return c.lookups.clone() }

// Builder assembles a Context's fields before freezing it. Each Pipeline
// invocation constructs exactly one.
type Builder struct {
	ctx Context
}

// NewBuilder starts a Builder with no fields set.
func NewBuilder() *Builder { return &Builder{} }

// WithNow sets the batch's single sampled clock value.
func (b *Builder) WithNow(now time.Time) *Builder {
	b.ctx.now = now
	return b
}

// WithEnv sets the deployment environment constant.
func (b *Builder) WithEnv(env string) *Builder {
	b.ctx.env = env
	return b
}

// WithSourceID sets the batch's source identifier.
func (b *Builder) WithSourceID(sourceID string) *Builder {
	b.ctx.sourceID = sourceID
	return b
}

// WithRulesetVersion sets the compiled RuleSet's version string.
func (b *Builder) WithRulesetVersion(version string) *Builder {
	b.ctx.rulesetVersion = version
	return b
}

// WithFlags sets the resolved feature-flag snapshot.
func (b *Builder) WithFlags(flags FlagSnapshot) *Builder {
	b.ctx.flags = flags.clone()
	return b
}

// WithLookups sets the preloaded reference caches.
func (b *Builder) WithLookups(lookups LookupMaps) *Builder {
	b.ctx.lookups = lookups.clone()
	return b
}

// Freeze returns the immutable Context. The Builder must not be reused
// after calling Freeze.
func (b *Builder) Freeze() Context {
	return Context{
		now:            b.ctx.now,
		env:            b.ctx.env,
		sourceID:       b.ctx.sourceID,
		rulesetVersion: b.ctx.rulesetVersion,
		flags:          b.ctx.flags.clone(),
		lookups:        b.ctx.lookups.clone(),
	}
}
