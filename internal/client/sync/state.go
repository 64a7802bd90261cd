package sync

import (
	"fmt"
	"path/filepath"
)

const (
	StateBackendSqlite = "sqlite"
	StateBackendBolt   = "bolt"
)

// StateStore persists the SyncState of a vault between runs.
type StateStore interface {
	Load() (SyncState, error)
	// Save replaces the stored state with state.
	Save(state SyncState) error
	Close() error
}

// OpenStateStore opens the store named by backend inside dataDir.
func OpenStateStore(backend, dataDir string) (StateStore, error) {
	switch backend {
	case "", StateBackendSqlite:
		return OpenSqliteStateStore(filepath.Join(dataDir, "state.db"))
	case StateBackendBolt:
		return OpenBoltStateStore(filepath.Join(dataDir, "state.bolt"))
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// memoryStateStore keeps state in memory only.
type memoryStateStore struct {
	state SyncState
}

// NewMemoryStateStore returns a StateStore that does not outlive the process.
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{state: SyncState{}}
}

func (m *memoryStateStore) Load() (SyncState, error) {
	out := make(SyncState, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStateStore) Save(state SyncState) error {
	m.state = make(SyncState, len(state))
	for k, v := range state {
		m.state[k] = v
	}
	return nil
}

func (m *memoryStateStore) Close() error { return nil }
