package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/db"
	"github.com/openmined/vaultsync/internal/utils"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS sync_state (
    path TEXT PRIMARY KEY,
    hash TEXT NOT NULL,
    revision INTEGER NOT NULL,
    synced_at TEXT NOT NULL -- RFC3339
);
`

type dbStateEntry struct {
	Path     string `db:"path"`
	Hash     string `db:"hash"`
	Revision int64  `db:"revision"`
	SyncedAt string `db:"synced_at"`
}

// SqliteStateStore keeps SyncState in a sqlite table under the data dir.
type SqliteStateStore struct {
	db     *sqlx.DB
	dbPath string
}

func OpenSqliteStateStore(dbPath string) (*SqliteStateStore, error) {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1), db.WithSchema(stateSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to open sync state: %w", err)
	}

	return &SqliteStateStore{db: conn, dbPath: dbPath}, nil
}

func (s *SqliteStateStore) Load() (SyncState, error) {
	var rows []dbStateEntry
	if err := s.db.Select(&rows, "SELECT path, hash, revision, synced_at FROM sync_state"); err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}

	state := make(SyncState, len(rows))
	for _, r := range rows {
		state[r.Path] = SyncStateEntry{Hash: r.Hash, Revision: uint64(r.Revision)}
	}
	return state, nil
}

func (s *SqliteStateStore) Save(state SyncState) error {
	now := time.Now().UTC().Format(time.RFC3339)

	err := db.InTx(context.Background(), s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("DELETE FROM sync_state"); err != nil {
			return err
		}

		stmt, err := tx.PrepareNamed(`INSERT INTO sync_state (path, hash, revision, synced_at)
		                              VALUES (:path, :hash, :revision, :synced_at)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for path, e := range state {
			row := dbStateEntry{Path: path, Hash: e.Hash, Revision: int64(e.Revision), SyncedAt: now}
			if _, err := stmt.Exec(row); err != nil {
				return fmt.Errorf("path %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}

	slog.Debug("sync state saved", "entries", len(state))
	return nil
}

func (s *SqliteStateStore) Close() error {
	return s.db.Close()
}
