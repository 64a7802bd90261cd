package sync

import (
	"maps"
	"sync"
)

// SyncStateEntry is the hash and revision a path had when it was last seen
// identical on both sides.
type SyncStateEntry struct {
	Hash     string `json:"hash"`
	Revision uint64 `json:"revision"`
}

// SyncState maps a vault path to its last synchronized state.
type SyncState map[string]SyncStateEntry

// HistoryTracker is the in memory SyncState of one vault. Persistence goes
// through a StateStore.
type HistoryTracker struct {
	mu    sync.RWMutex
	state SyncState
}

func NewHistoryTracker(initial SyncState) *HistoryTracker {
	state := make(SyncState, len(initial))
	maps.Copy(state, initial)
	return &HistoryTracker{state: state}
}

func (h *HistoryTracker) Get(path string) (SyncStateEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.state[path]
	return e, ok
}

func (h *HistoryTracker) Set(path string, entry SyncStateEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state[path] = entry
}

func (h *HistoryTracker) Delete(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.state, path)
}

func (h *HistoryTracker) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.state)
}

// Snapshot returns a copy that later mutations do not affect.
func (h *HistoryTracker) Snapshot() SyncState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.state)
}

// Replace swaps the whole state.
func (h *HistoryTracker) Replace(state SyncState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = maps.Clone(state)
	if h.state == nil {
		h.state = SyncState{}
	}
}
