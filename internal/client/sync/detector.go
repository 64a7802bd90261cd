package sync

import (
	"slices"
	"strings"

	"github.com/openmined/vaultsync/internal/client/localstore"
	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/openmined/vaultsync/internal/utils"
)

// BothEntry is a path present locally and remotely.
type BothEntry struct {
	Path   string
	Local  localstore.FileEntry
	Remote remote.Record
}

// Changes partitions a local listing and a remote manifest by path.
type Changes struct {
	LocalOnly  []localstore.FileEntry
	RemoteOnly []remote.Record
	Both       []BothEntry
}

// Diverged returns the entries of Both whose hashes differ.
func (c *Changes) Diverged() []BothEntry {
	var out []BothEntry
	for _, b := range c.Both {
		if b.Local.Hash != b.Remote.Hash {
			out = append(out, b)
		}
	}
	return out
}

// DetectChanges partitions paths into local only, remote only and present on
// both sides. Paths are compared in normalized form and every output slice is
// sorted by path. Hash equality is not evaluated here.
func DetectChanges(local []localstore.FileEntry, manifest []remote.Record) *Changes {
	localByPath := make(map[string]localstore.FileEntry, len(local))
	for _, f := range local {
		f.Path = utils.NormPath(f.Path)
		localByPath[f.Path] = f
	}

	remoteByPath := make(map[string]remote.Record, len(manifest))
	for _, r := range manifest {
		r.Path = utils.NormPath(r.Path)
		remoteByPath[r.Path] = r
	}

	changes := &Changes{}
	for p, f := range localByPath {
		if r, ok := remoteByPath[p]; ok {
			changes.Both = append(changes.Both, BothEntry{Path: p, Local: f, Remote: r})
		} else {
			changes.LocalOnly = append(changes.LocalOnly, f)
		}
	}
	for p, r := range remoteByPath {
		if _, ok := localByPath[p]; !ok {
			changes.RemoteOnly = append(changes.RemoteOnly, r)
		}
	}

	slices.SortFunc(changes.LocalOnly, func(a, b localstore.FileEntry) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(changes.RemoteOnly, func(a, b remote.Record) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(changes.Both, func(a, b BothEntry) int { return strings.Compare(a.Path, b.Path) })
	return changes
}
