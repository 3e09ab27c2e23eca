// Package rule contains the declarative metadata and pure evaluation
// contract that every catalog rule implements.
package rule

import (
	"time"

	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
)

// MergePolicy controls how two rules' patches combine when their
// writes overlap and no ordering edge separates them.
type MergePolicy string

const (
	// MergeLastWins lets the later-evaluated rule's patch win on conflict.
	MergeLastWins MergePolicy = "last_wins"
	// MergeFirstWins keeps the earlier-evaluated rule's value on conflict.
	MergeFirstWins MergePolicy = "first_wins"
	// MergeErrorOnConflict fails evaluation (and compilation) on any
	// unordered overlapping write.
	MergeErrorOnConflict MergePolicy = "error_on_conflict"
)

// Meta is the declarative descriptor of a Rule: everything the compiler
// needs to order it and everything the evaluator needs to enforce its
// write contract, without running any of its code.
type Meta struct {
	// Name uniquely identifies the rule within a RuleSet.
	Name string
	// Priority tie-breaks ready nodes during compilation; lower runs earlier.
	Priority int
	// Reads is the set of canonical field names this rule's Applies/Apply
	// may consult on the item context.
	Reads fieldset.Set
	// Writes is the authoritative set of field names Apply may emit.
	Writes fieldset.Set
	// Before lists rule names that must run after this rule.
	Before fieldset.Set
	// After lists rule names that must run before this rule.
	After fieldset.Set
	// Flags lists feature flag names this rule depends on. Compile does
	// not check them against a flag manifest; a name missing from the
	// batch's FlagSnapshot surfaces only when FlagEnabled is called.
	Flags fieldset.Set
}

// NewMeta builds a Meta from unordered name slices, normalizing them
// into sets. A nil or empty slice yields an empty (non-nil) set so
// downstream code never needs a nil check.
func NewMeta(name string, priority int, reads, writes, before, after, flags []string) Meta {
	return Meta{
		Name:     name,
		Priority: priority,
		Reads:    fieldset.New(reads...),
		Writes:   fieldset.New(writes...),
		Before:   fieldset.New(before...),
		After:    fieldset.New(after...),
		Flags:    fieldset.New(flags...),
	}
}

// SortedWrites returns Writes as a sorted slice, useful for deterministic
// error messages and replay-pack serialization.
func (m Meta) SortedWrites() []string {
	return m.Writes.Sorted()
}

// SortedReads returns Reads as a sorted slice.
func (m Meta) SortedReads() []string {
	return m.Reads.Sorted()
}

// Patch is the set of field writes a rule's Apply produced. Keys must be
// a subset of the rule's Meta.Writes (invariant P4); the evaluator
// enforces this, Apply implementations are trusted but checked.
type Patch map[string]any

// Clone returns a shallow copy of the patch, safe to hand to a caller
// that must not observe later mutation of the original map.
func (p Patch) Clone() Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Rule is anything that declares Meta and exposes the two pure
// evaluation methods the engine drives. Implementations must not
// perform I/O, must not mutate their inputs, and must not read a clock
// or random source directly — all of that is captured once in the
// EvalContext passed to them.
type Rule interface {
	// Meta returns the rule's declarative descriptor.
	Meta() Meta
	// Applies reports whether this rule should run for the given
	// context. Must be a pure function of ctx.
	Applies(ctx EvalContext) bool
	// Apply computes this rule's contribution to the item. The
	// returned Patch's keys must be a subset of Meta().Writes. Apply
	// must not mutate ctx. An error here is fatal for the item (recorded
	// as violations.rule_error.<name>), not retried.
	Apply(ctx EvalContext) (Patch, error)
}

// TagRecord is the batch-preloaded representation of a catalog tag.
type TagRecord struct {
	ID   int64
	Name string
}

// EvalContext is the read-only view a Rule observes. A single
// implementation (internal/domain/ruleset.evalContext) composes a frozen
// BatchContext and a frozen ItemContext; Rule implementations only ever
// see this narrow interface, never the full item/batch structs, so a
// rule body structurally cannot reach into I/O ports or mutate state.
type EvalContext interface {
	// Now is the single wall-clock value frozen for the whole batch.
	Now() time.Time
	// Payload is the normalized raw payload mapping for the item.
	Payload() map[string]any
	// MenuItem returns the existing canonical record, or (nil, false)
	// for a create.
	MenuItem() (map[string]any, bool)
	// ChangedKeys is the set of fields that differ from the existing
	// record; it is empty for a create, where IsAllKeys reports true.
	ChangedKeys() fieldset.Set
	// IsAllKeys reports whether ChangedKeys represents the "all" sentinel.
	IsAllKeys() bool
	// FlagEnabled resolves a feature flag from the frozen snapshot.
	// Returns an error if name is outside the declared MANIFEST.
	FlagEnabled(name string) (bool, error)
	// LookupBrandID resolves a brand name to its catalog id.
	LookupBrandID(key string) (int64, bool)
	// LookupStrainID resolves a strain name to its catalog id.
	LookupStrainID(name string) (int64, bool)
	// LookupTag resolves a tag name to its catalog record.
	LookupTag(name string) (TagRecord, bool)
}
