// Package remote talks to the place a vault is synced with. Two wire
// protocols are supported behind one Backend interface: the vaultsync ledger
// server and a git tree/commit REST API.
package remote

import (
	"context"
	"time"

	"github.com/openmined/vaultsync/internal/client/hasher"
)

// Record is one entry of a remote manifest.
type Record struct {
	Path        string
	Hash        string
	Size        int64
	Revision    uint64
	CommittedAt time.Time
}

// File is the content of a remote path together with the revision it was read at.
type File struct {
	Path     string
	Content  []byte
	Hash     string
	Revision uint64
}

// WriteRequest creates or updates a single path.
type WriteRequest struct {
	Path    string
	Content []byte

	// BaseRevision is the revision the writer believes is current. nil means
	// the writer has no prior knowledge of the path.
	BaseRevision *uint64

	// BaseHash is the hash the writer believes is current. Backends that use
	// content addressed optimistic checks (tree/commit) use it instead of
	// BaseRevision.
	BaseHash string
}

type WriteResult struct {
	Path     string
	Hash     string
	Revision uint64
}

// Backend is the capability set the sync engine needs from a remote.
type Backend interface {
	Manifest(ctx context.Context) ([]Record, error)
	Read(ctx context.Context, path string) (*File, error)
	Write(ctx context.Context, req *WriteRequest) (*WriteResult, error)
	Delete(ctx context.Context, path string) error
}

// BatchWriter is implemented by backends that can apply many writes as one
// atomic commit.
type BatchWriter interface {
	WriteBatch(ctx context.Context, reqs []*WriteRequest, message string) ([]*WriteResult, error)
}

// HealthChecker probes connectivity without touching any file.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ContentHasher is implemented by backends whose manifest hashes are not
// sha256 digests of the content.
type ContentHasher interface {
	ContentHasher() hasher.Hasher
}

// HasherFor returns the hasher local files must be hashed with so their
// hashes compare equal to the manifest of b.
func HasherFor(b Backend) hasher.Hasher {
	if ch, ok := b.(ContentHasher); ok {
		return ch.ContentHasher()
	}
	return hasher.Default()
}

// Revision is a helper for filling WriteRequest.BaseRevision.
func Revision(r uint64) *uint64 {
	return &r
}
