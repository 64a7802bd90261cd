package sync

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/utils"
	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("sync_state")

// BoltStateStore keeps SyncState in a bbolt bucket, one json value per path.
type BoltStateStore struct {
	db *bolt.DB
}

func OpenBoltStateStore(dbPath string) (*BoltStateStore, error) {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	bdb, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open sync state: %w", err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("failed to init sync state: %w", err)
	}

	return &BoltStateStore{db: bdb}, nil
}

func (s *BoltStateStore) Load() (SyncState, error) {
	state := SyncState{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).ForEach(func(k, v []byte) error {
			var e SyncStateEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("path %s: %w", k, err)
			}
			state[string(k)] = e
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	return state, nil
}

func (s *BoltStateStore) Save(state SyncState) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(stateBucket); err != nil {
			return err
		}
		b, err := tx.CreateBucket(stateBucket)
		if err != nil {
			return err
		}
		for path, e := range state {
			v, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(path), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

func (s *BoltStateStore) Close() error {
	return s.db.Close()
}
