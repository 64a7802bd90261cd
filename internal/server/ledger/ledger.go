// Package ledger keeps the authoritative path -> (hash, revision) index of a
// vault and the content behind it.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/client/hasher"
	"github.com/openmined/vaultsync/internal/db"
	"github.com/openmined/vaultsync/internal/server/blob"
)

const Schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	revision INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_updated_at ON files(updated_at);
`

const (
	selectEntry = `SELECT path, hash, size, updated_at, revision FROM files WHERE path = ?`
	upsertEntry = `INSERT INTO files (path, hash, size, updated_at, revision) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, size = excluded.size,
		updated_at = excluded.updated_at, revision = excluded.revision`
)

// Ledger serialises writers. Every check-and-write runs under one mutex inside
// one transaction, so a revision is handed out exactly once.
type Ledger struct {
	db     *sqlx.DB
	blobs  blob.Backend
	hasher hasher.Hasher
	now    func() time.Time

	mu sync.Mutex
}

func New(sqlDB *sqlx.DB, blobs blob.Backend) (*Ledger, error) {
	if _, err := sqlDB.Exec(Schema); err != nil {
		return nil, fmt.Errorf("ledger schema: %w", err)
	}

	return &Ledger{
		db:     sqlDB,
		blobs:  blobs,
		hasher: hasher.SHA256{},
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Manifest lists every path. It does not take the writer lock.
func (l *Ledger) Manifest(ctx context.Context) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := l.db.SelectContext(ctx, &entries, `SELECT path, hash, size, updated_at, revision FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("ledger manifest: %w", err)
	}
	return entries, nil
}

func (l *Ledger) Stat(ctx context.Context, path string) (*Entry, error) {
	var entry Entry
	err := l.db.GetContext(ctx, &entry, selectEntry, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("ledger stat %s: %w", path, err)
	}
	return &entry, nil
}

// Get returns the content and index row of path.
func (l *Ledger) Get(ctx context.Context, path string) (*File, error) {
	entry, err := l.Stat(ctx, path)
	if err != nil {
		return nil, err
	}

	content, err := l.blobs.Get(ctx, path)
	if errors.Is(err, blob.ErrNotFound) {
		// index row without content, a delete racing this read
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("ledger read %s: %w", path, err)
	}

	return &File{Entry: entry, Content: content}, nil
}

// Write stores content for one path. A write conflicts only when the stored
// revision is greater than the claimed one; a nil claim always succeeds.
func (l *Ledger) Write(ctx context.Context, req *WriteRequest) (*WriteResult, error) {
	results, err := l.WriteBatch(ctx, []*WriteRequest{req})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// priorBlob is the content a batch overwrote, put back when the batch fails.
type priorBlob struct {
	content []byte
	existed bool
}

// WriteBatch applies all writes in one transaction. The first conflict fails
// the batch and nothing is committed. Content of a failed batch is rolled
// back along with the index.
func (l *Ledger) WriteBatch(ctx context.Context, reqs []*WriteRequest) ([]*WriteResult, error) {
	if len(reqs) == 0 {
		return []*WriteResult{}, nil
	}
	for _, req := range reqs {
		if req.Path == "" {
			return nil, ErrNoPath
		}
		if !blob.ValidateKey(req.Path) {
			return nil, fmt.Errorf("ledger write %q: %w", req.Path, blob.ErrInvalidKey)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	results := make([]*WriteResult, 0, len(reqs))
	prior := make(map[string]priorBlob, len(reqs))
	err := db.InTx(ctx, l.db, func(tx *sqlx.Tx) error {
		// current revisions, including earlier writes to the same path in this batch
		current := make(map[string]*Entry, len(reqs))
		for _, req := range reqs {
			if _, seen := current[req.Path]; seen {
				continue
			}
			var entry Entry
			err := tx.GetContext(ctx, &entry, selectEntry, req.Path)
			if errors.Is(err, sql.ErrNoRows) {
				current[req.Path] = nil
				continue
			} else if err != nil {
				return fmt.Errorf("ledger lookup %s: %w", req.Path, err)
			}
			current[req.Path] = &entry
		}

		now := l.now()
		next := make([]*Entry, 0, len(reqs))
		for _, req := range reqs {
			existing := current[req.Path]
			if existing != nil && req.ClaimedRevision != nil && existing.Revision > *req.ClaimedRevision {
				return &ConflictError{Path: req.Path, CurrentRevision: existing.Revision, CurrentHash: existing.Hash}
			}

			entry := &Entry{
				Path:      req.Path,
				Hash:      l.hasher.Hash(req.Content),
				Size:      int64(len(req.Content)),
				UpdatedAt: now.UnixMilli(),
				Revision:  1,
			}
			if existing != nil {
				entry.Revision = existing.Revision + 1
			}
			current[req.Path] = entry
			next = append(next, entry)
		}

		for i, req := range reqs {
			if _, saved := prior[req.Path]; !saved {
				old, err := l.blobs.Get(ctx, req.Path)
				if err != nil && !errors.Is(err, blob.ErrNotFound) {
					return fmt.Errorf("ledger read %s: %w", req.Path, err)
				}
				prior[req.Path] = priorBlob{content: old, existed: err == nil}
			}
			if err := l.blobs.Put(ctx, req.Path, req.Content); err != nil {
				return fmt.Errorf("ledger store %s: %w", req.Path, err)
			}
			e := next[i]
			if _, err := tx.ExecContext(ctx, upsertEntry, e.Path, e.Hash, e.Size, e.UpdatedAt, e.Revision); err != nil {
				return fmt.Errorf("ledger index %s: %w", req.Path, err)
			}
			results = append(results, &WriteResult{Path: e.Path, Hash: e.Hash, Revision: e.Revision})
		}
		return nil
	})
	if err != nil {
		l.restore(ctx, prior)
		return nil, err
	}

	slog.Debug("ledger write", "files", len(results))
	return results, nil
}

// restore puts back the content a failed batch replaced. The index was rolled
// back, so these are the blobs it still points at.
func (l *Ledger) restore(ctx context.Context, prior map[string]priorBlob) {
	ctx = context.WithoutCancel(ctx)
	for path, p := range prior {
		var err error
		if p.existed {
			err = l.blobs.Put(ctx, path, p.content)
		} else {
			err = l.blobs.Delete(ctx, path)
		}
		if err != nil {
			slog.Error("ledger restore content", "path", path, "error", err)
		}
	}
}

// Delete drops path from the index and its content. Deleting an unknown path
// returns ErrNotFound.
func (l *Ledger) Delete(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := db.InTx(ctx, l.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
		if err != nil {
			return fmt.Errorf("ledger delete %s: %w", path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := l.blobs.Delete(ctx, path); err != nil {
		slog.Warn("ledger delete content", "path", path, "error", err)
	}
	return nil
}

// Count returns the number of indexed paths.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM files`)
	return n, err
}
