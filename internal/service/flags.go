package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/ingesterr"
	"github.com/catalogforge/ingestpipe/internal/port/outbound"
)

// FlagSnapshotter implements C5: resolve a fixed MANIFEST of flag names
// against the external flag backend exactly once per batch, and stamp
// the result with a stable version digest. Once computed, the snapshot
// is the single source of truth for the rest of the batch — mid-batch
// flag changes never affect already-running work (spec §4.5).
type FlagSnapshotter struct {
	backend  outbound.FlagBackend
	manifest []string
	logger   *slog.Logger
}

// NewFlagSnapshotter builds a FlagSnapshotter over a fixed, sorted
// manifest of permitted flag names. Accessing any name outside this
// manifest at evaluation time is an unrecoverable error (enforced by
// ruleset.evalContext.FlagEnabled against the resulting snapshot).
func NewFlagSnapshotter(backend outbound.FlagBackend, manifest []string, logger *slog.Logger) *FlagSnapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]string(nil), manifest...)
	sort.Strings(sorted)
	return &FlagSnapshotter{backend: backend, manifest: sorted, logger: logger}
}

// Snapshot evaluates every manifest flag for actorKey/namespace and
// computes the version digest: the first 12 hex characters of a SHA-256
// over the sorted name->bool map, serialized canonically as JSON with
// sorted keys (Go's encoding/json already sorts map keys on marshal).
func (s *FlagSnapshotter) Snapshot(ctx context.Context, actorKey, namespace string) (batchctx.FlagSnapshot, error) {
	values := make(map[string]bool, len(s.manifest))
	for _, name := range s.manifest {
		v, err := s.backend.Evaluate(ctx, actorKey, namespace, name)
		if err != nil {
			return batchctx.FlagSnapshot{}, fmt.Errorf("%w: evaluate flag %q: %v", ingesterr.ErrBatchFatal, name, err)
		}
		values[name] = v
	}

	version, err := digest(values)
	if err != nil {
		return batchctx.FlagSnapshot{}, fmt.Errorf("%w: compute flag snapshot digest: %v", ingesterr.ErrBatchFatal, err)
	}

	s.logger.Info("flag snapshot computed", "actor_key", actorKey, "namespace", namespace, "version", version, "count", len(values))
	return batchctx.FlagSnapshot{Values: values, Version: version}, nil
}

// Manifest returns the sorted set of flag names this snapshotter resolves.
func (s *FlagSnapshotter) Manifest() []string {
	return append([]string(nil), s.manifest...)
}

func digest(values map[string]bool) (string, error) {
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])[:12], nil
}
