// Package objectstore provides a local-filesystem ArtifactStore:
// gzip-encoded replay packs written PUT-if-absent under the spec §6
// object-key layout. Grounded on the teacher's FileAuditStore
// (internal/adapter/outbound/audit/file_store.go) directory-creation
// and exclusive-open idioms, adapted from an append-only rotating log
// to a write-once keyed object store — a replay pack is immutable
// once written, so there is no rotation, no retention sweep, and no
// in-memory cache to populate on boot.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrObjectExists is returned by PutIfAbsent when key already has an
// object stored under it. The write is never attempted in that case.
var ErrObjectExists = errors.New("objectstore: object already exists")

// FileStore writes replay-pack bytes under root, using the caller's
// key verbatim as the path relative to root (the spec §6 object-key
// layout already encodes env/date/status/ruleset/source_id/external_id
// segments, so this adapter does no further namespacing of its own).
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir. The directory is
// created lazily, per-key, the first time PutIfAbsent needs it — not
// eagerly here — since most deployments point root at a shared mount
// whose top-level directory already exists.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// PutIfAbsent implements outbound.ArtifactStore: it creates the key's
// parent directories, then opens the target file with O_CREATE|O_EXCL
// so a second write for the same key fails with ErrObjectExists
// instead of silently overwriting an existing replay pack — the same
// write-once guarantee spec §6 requires of the object store.
func (s *FileStore) PutIfAbsent(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("objectstore: mkdir for %s: %w", key, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrObjectExists
		}
		return fmt.Errorf("objectstore: open %s: %w", key, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	return f.Sync()
}

// Get reads back a previously stored object, for the Replay CLI. Not
// part of outbound.ArtifactStore (which is write-only from the
// pipeline's perspective) — callers that need to read packs back
// (cmd/ingestpipe replay) use this directly against a *FileStore.
func (s *FileStore) Get(key string) ([]byte, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	return data, nil
}
