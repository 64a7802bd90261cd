package ledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("ledger: not found")
	ErrConflict = errors.New("ledger: revision conflict")
	ErrNoPath   = errors.New("ledger: path missing")
)

// Entry is the index row for one path.
type Entry struct {
	Path      string `db:"path"`
	Hash      string `db:"hash"`
	Size      int64  `db:"size"`
	UpdatedAt int64  `db:"updated_at"` // unix milliseconds
	Revision  uint64 `db:"revision"`
}

func (e *Entry) ModTime() time.Time {
	return time.UnixMilli(e.UpdatedAt).UTC()
}

// WriteRequest carries new content for a path. ClaimedRevision is the
// revision the writer last saw, nil when it claims no prior knowledge.
type WriteRequest struct {
	Path            string
	Content         []byte
	ClaimedRevision *uint64
}

type WriteResult struct {
	Path     string
	Hash     string
	Revision uint64
}

// File is the current content of a path together with its index row.
type File struct {
	*Entry
	Content []byte
}

// ConflictError reports a write whose claimed revision is older than the
// stored one.
type ConflictError struct {
	Path            string
	CurrentRevision uint64
	CurrentHash     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ledger: conflict on %s (current revision %d)", e.Path, e.CurrentRevision)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
