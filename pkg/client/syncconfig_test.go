package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSyncConfigStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_config.json")
	store, err := LoadSyncConfigStore(path)
	require.NoError(t, err)
	assert.Empty(t, store.List())
}

func TestAddPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_config.json")
	store, err := LoadSyncConfigStore(path)
	require.NoError(t, err)

	id, err := store.Add("/local/a", "/remote/a")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	reloaded, err := LoadSyncConfigStore(path)
	require.NoError(t, err)
	pairs := reloaded.List()
	require.Len(t, pairs, 1)
	assert.Equal(t, SyncPair{ID: 1, LocalPath: "/local/a", RemotePath: "/remote/a"}, pairs[0])
}

func TestAddAssignsIncreasingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_config.json")
	store, err := LoadSyncConfigStore(path)
	require.NoError(t, err)

	first, err := store.Add("/a", "/a")
	require.NoError(t, err)
	second, err := store.Add("/b", "/b")
	require.NoError(t, err)
	assert.Less(t, first, second)
}

func TestRemoveExistingPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_config.json")
	store, err := LoadSyncConfigStore(path)
	require.NoError(t, err)

	id, err := store.Add("/local", "/remote")
	require.NoError(t, err)

	removed, err := store.Remove(id)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, store.List())
}

func TestRemoveUnknownPairReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_config.json")
	store, err := LoadSyncConfigStore(path)
	require.NoError(t, err)

	removed, err := store.Remove(99)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestListOrderedByID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_config.json")
	store, err := LoadSyncConfigStore(path)
	require.NoError(t, err)

	_, err = store.Add("/z", "/z")
	require.NoError(t, err)
	_, err = store.Add("/a", "/a")
	require.NoError(t, err)

	pairs := store.List()
	require.Len(t, pairs, 2)
	assert.Equal(t, 1, pairs[0].ID)
	assert.Equal(t, 2, pairs[1].ID)
}
