package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/memory"
)

func TestFlagSnapshotter_ResolvesManifestAndStampsVersion(t *testing.T) {
	backend := memory.NewFlagBackend(map[string]bool{
		"catalog/enable_brand_resolution": true,
		"catalog/enable_strain_resolution": false,
	})
	snap := NewFlagSnapshotter(backend, []string{"enable_brand_resolution", "enable_strain_resolution"}, nil)

	s1, err := snap.Snapshot(context.Background(), "src-1", "catalog")
	require.NoError(t, err)
	assert.True(t, s1.Values["enable_brand_resolution"])
	assert.False(t, s1.Values["enable_strain_resolution"])
	assert.Len(t, s1.Version, 12)

	s2, err := snap.Snapshot(context.Background(), "src-2", "catalog")
	require.NoError(t, err)
	assert.Equal(t, s1.Version, s2.Version, "same manifest values must digest identically regardless of actor")
}

func TestFlagSnapshotter_UnregisteredManifestFlagFails(t *testing.T) {
	backend := memory.NewFlagBackend(map[string]bool{})
	snap := NewFlagSnapshotter(backend, []string{"missing"}, nil)

	_, err := snap.Snapshot(context.Background(), "src-1", "catalog")
	require.Error(t, err)
}
