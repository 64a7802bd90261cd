package sync

import (
	"testing"
	"time"

	"github.com/openmined/vaultsync/internal/client/localstore"
	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/stretchr/testify/assert"
)

func both(path, localHash, remoteHash string) BothEntry {
	return BothEntry{
		Path:   path,
		Local:  localstore.FileEntry{Path: path, Hash: localHash},
		Remote: remote.Record{Path: path, Hash: remoteHash},
	}
}

func TestClassify(t *testing.T) {
	history := NewHistoryTracker(SyncState{"a.md": {Hash: "h0", Revision: 1}})

	tests := []struct {
		name  string
		entry BothEntry
		want  Action
	}{
		{"equal hashes", both("a.md", "h1", "h1"), ActionUnchanged},
		{"equal without history", both("new.md", "x", "x"), ActionUnchanged},
		{"only local changed", both("a.md", "h1", "h0"), ActionPush},
		{"only remote changed", both("a.md", "h0", "h2"), ActionPull},
		{"both changed", both("a.md", "h1", "h2"), ActionConflict},
		{"no history", both("new.md", "x", "y"), ActionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.entry, history))
		})
	}
}

func TestConflictFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, "notes/a.conflict-2024-03-09_13-05-07.md", ConflictFileName("notes/a.md", at))
	assert.Equal(t, "Makefile.conflict-2024-03-09_13-05-07", ConflictFileName("Makefile", at))
	assert.Equal(t, "v1.2/README.conflict-2024-03-09_13-05-07", ConflictFileName("v1.2/README", at))
	assert.Equal(t, "a.tar.conflict-2024-03-09_13-05-07.gz", ConflictFileName("a.tar.gz", at))
	assert.Equal(t, ".gitignore.conflict-2024-03-09_13-05-07", ConflictFileName(".gitignore", at))
	assert.Equal(t, "notes/.env.conflict-2024-03-09_13-05-07", ConflictFileName("notes/.env", at))
	assert.Equal(t, "notes/.hidden.conflict-2024-03-09_13-05-07.md", ConflictFileName("notes/.hidden.md", at))
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("")
	assert.NoError(t, err)
	assert.Equal(t, PolicyLastWriteWins, p)

	p, err = ParseConflictPolicy("create-conflict-file")
	assert.NoError(t, err)
	assert.Equal(t, PolicyConflictFile, p)

	_, err = ParseConflictPolicy("merge")
	assert.Error(t, err)
}
