package sync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStores_SaveReplacesAndReopens(t *testing.T) {
	for _, backend := range []string{StateBackendSqlite, StateBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "data")

			store, err := OpenStateStore(backend, dir)
			require.NoError(t, err)

			state, err := store.Load()
			require.NoError(t, err)
			assert.Empty(t, state)

			require.NoError(t, store.Save(SyncState{
				"a.md":       {Hash: "h1", Revision: 1},
				"notes/b.md": {Hash: "h2", Revision: 7},
				"deleted.md": {Hash: "h3", Revision: 2},
			}))
			require.NoError(t, store.Save(SyncState{
				"a.md":       {Hash: "h1b", Revision: 2},
				"notes/b.md": {Hash: "h2", Revision: 7},
			}))
			require.NoError(t, store.Close())

			store, err = OpenStateStore(backend, dir)
			require.NoError(t, err)
			defer store.Close()

			state, err = store.Load()
			require.NoError(t, err)
			assert.Equal(t, SyncState{
				"a.md":       {Hash: "h1b", Revision: 2},
				"notes/b.md": {Hash: "h2", Revision: 7},
			}, state)
		})
	}
}

func TestOpenStateStore_UnknownBackend(t *testing.T) {
	_, err := OpenStateStore("redis", t.TempDir())
	assert.Error(t, err)
}

func TestHistoryTracker_SnapshotIsolation(t *testing.T) {
	h := NewHistoryTracker(SyncState{"a.md": {Hash: "h", Revision: 1}})

	snap := h.Snapshot()
	h.Set("b.md", SyncStateEntry{Hash: "x", Revision: 1})
	h.Delete("a.md")

	assert.Len(t, snap, 1)
	_, ok := h.Get("a.md")
	assert.False(t, ok)
	e, ok := h.Get("b.md")
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Revision)

	h.Replace(nil)
	assert.Equal(t, 0, h.Len())
}
