package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutIfAbsent_WritesNewObject(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFileStore(dir)

	key := "env=production/date=2026-08-01/status=created/ruleset=v1/treez/X1/ingest-1.json.gz"
	err := s.PutIfAbsent(context.Background(), key, []byte("payload"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFileStore_PutIfAbsent_RejectsDuplicateKey(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFileStore(dir)

	key := "env=production/date=2026-08-01/status=created/ruleset=v1/treez/X1/ingest-1.json.gz"
	require.NoError(t, s.PutIfAbsent(context.Background(), key, []byte("first")))

	err := s.PutIfAbsent(context.Background(), key, []byte("second"))
	require.ErrorIs(t, err, ErrObjectExists)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "second write must not overwrite the first")
}

func TestFileStore_Get_RoundTrips(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFileStore(dir)

	key := "env=dev/date=2026-08-01/status=updated/ruleset=v1/treez/X2/ingest-2.json.gz"
	require.NoError(t, s.PutIfAbsent(context.Background(), key, []byte("contents")))

	data, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))
}

func TestFileStore_Get_MissingKeyErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFileStore(dir)

	_, err := s.Get("does/not/exist.json.gz")
	require.Error(t, err)
}

func TestFileStore_PutIfAbsent_RespectsCancellation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFileStore(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.PutIfAbsent(ctx, "k.json.gz", []byte("x"))
	require.Error(t, err)
}
