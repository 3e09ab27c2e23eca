// Package outbound declares the narrow ports the pipeline drives
// against external collaborators (spec §1's "out of scope" list):
// reference lookups, feature flags, canonical persistence, and the
// replay-pack object store. Concrete adapters live under
// internal/adapter/outbound; the service layer only ever depends on
// these interfaces, mirroring the teacher's own port/outbound split
// (e.g. AuditStore, PolicyStore).
package outbound

import (
	"context"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
)

// LookupProvider is the Preloader's (C4) sole external dependency: one
// bulk query per reference kind over the full set of keys referenced by
// a batch. Implementations must be all-or-nothing — spec §4.4 forbids
// partial preloads.
type LookupProvider interface {
	// PreloadBrands resolves brand keys to catalog brand ids.
	PreloadBrands(ctx context.Context, keys []string) (map[string]int64, error)
	// PreloadStrains resolves strain names to catalog strain ids.
	PreloadStrains(ctx context.Context, names []string) (map[string]int64, error)
	// PreloadTags resolves tag names to catalog tag records.
	PreloadTags(ctx context.Context, names []string) (map[string]batchctx.TagRecord, error)
}

// FlagBackend is the Flag Snapshot's (C5) external dependency: evaluate
// one named flag for one actor key. The snapshot service calls this once
// per name in the declared manifest and never again for the rest of the
// batch.
type FlagBackend interface {
	Evaluate(ctx context.Context, actorKey, namespace, name string) (bool, error)
}

// MenuItemRecord is the persistence port's view of an existing canonical
// record: its fields plus which of those fields are "silent" (writable
// without triggering downstream hooks).
type MenuItemRecord struct {
	Fields        map[string]any
	SilentColumns []string
}

// MenuItemStore is the Persistence stage's (C6 step 7) external
// dependency: look up an existing record by (source_id, external_id),
// then create/update/destroy it. Each call is one scoped transaction;
// the spec explicitly forbids cross-item transactions.
type MenuItemStore interface {
	// Find returns the existing canonical record, or ok=false for a create.
	Find(ctx context.Context, sourceID, externalID string) (MenuItemRecord, bool, error)
	// Create inserts a new record from changes.
	Create(ctx context.Context, sourceID, externalID string, changes map[string]any) error
	// Update applies changes to an existing record. silent reports whether
	// every changed key is in the record's SilentColumns, letting the
	// adapter choose the hook-bypassing write path itself.
	Update(ctx context.Context, sourceID, externalID string, changes map[string]any, silent bool) error
	// Destroy soft-deletes a record and stamps tombstone metadata.
	Destroy(ctx context.Context, sourceID, externalID, reason string) error
}

// ArtifactStore is the ReplayPack sink (spec §5, §6): PUT-if-absent
// writes of a gzip-encoded JSON document, keyed by the object-store
// layout path. Never overwrites an existing key.
type ArtifactStore interface {
	// PutIfAbsent writes body under key unless key already exists, in
	// which case it returns ErrObjectExists (defined by the adapter) and
	// performs no write.
	PutIfAbsent(ctx context.Context, key string, body []byte) error
}
