// Package ingesterr defines the error taxonomy from spec §7: sentinel
// values wrapped with context via fmt.Errorf and matched with errors.Is.
package ingesterr

import "errors"

// Item-scoped errors recover locally: the item terminates rejected and
// other items in the batch proceed.
var (
	// ErrSchemaReject means the RawPayloadContract rejected the payload.
	ErrSchemaReject = errors.New("schema_reject")
	// ErrTransformReject means the CanonicalMenuItemContract rejected the
	// transformed changeset.
	ErrTransformReject = errors.New("transform_reject")
	// ErrReferentialMiss means a required foreign reference (create mode)
	// could not be resolved against the preloaded lookups.
	ErrReferentialMiss = errors.New("referential_miss")
	// ErrRuleConflict means two rules wrote an overlapping key under
	// error_on_conflict with no ordering edge between them.
	ErrRuleConflict = errors.New("rule_conflict")
	// ErrRuleFailure means a rule's Apply raised an error evaluating a
	// specific item (e.g. a CEL expression error), distinct from a
	// write-write conflict between two rules.
	ErrRuleFailure = errors.New("rule_error")
	// ErrPersistence means the persistence stage's constraint or
	// transactional write failed.
	ErrPersistence = errors.New("persistence_error")
)

// ErrCompile is batch-fatal: a ruleset failed to compile, so the
// pipeline refuses to accept work at all.
var ErrCompile = errors.New("compile_error")

// ErrBatchFatal marks errors that abort the whole batch before any item
// is processed (preloader or flag-backend failure).
var ErrBatchFatal = errors.New("batch_fatal")

// ErrUnclassifiable means action classification matched none of
// create/update/destroy.
var ErrUnclassifiable = errors.New("unclassifiable")
