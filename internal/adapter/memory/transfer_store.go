package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// TransferStore is a mutex-guarded in-memory registry of download states
type TransferStore struct {
	mu      sync.RWMutex
	entries map[string]domain.DownloadState
}

// Ensure TransferStore implements port.TransferStore
var _ port.TransferStore = (*TransferStore)(nil)

// NewTransferStore creates an empty TransferStore
func NewTransferStore() *TransferStore {
	return &TransferStore{
		entries: make(map[string]domain.DownloadState),
	}
}

// Put inserts or replaces the state for state.ID
func (s *TransferStore) Put(state domain.DownloadState) {
	s.mu.Lock()
	s.entries[state.ID] = state
	s.mu.Unlock()
}

// Get returns a snapshot of the state for id
func (s *TransferStore) Get(id string) (domain.DownloadState, error) {
	s.mu.RLock()
	state, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return domain.DownloadState{}, domain.ErrNotFound
	}
	return state, nil
}

// Update applies fn to a copy of the entry and stores it if fn succeeds
func (s *TransferStore) Update(id string, fn func(*domain.DownloadState) error) (domain.DownloadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entries[id]
	if !ok {
		return domain.DownloadState{}, domain.ErrNotFound
	}

	if err := fn(&state); err != nil {
		return s.entries[id], err
	}

	s.entries[id] = state
	return state, nil
}

// Remove deletes the entry for id
func (s *TransferStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// List returns snapshots of all entries ordered by identifier
func (s *TransferStore) List() []domain.DownloadState {
	s.mu.RLock()
	states := make([]domain.DownloadState, 0, len(s.entries))
	for _, state := range s.entries {
		states = append(states, state)
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].ID < states[j].ID
	})
	return states
}

// RemoveTerminalOlderThan deletes completed and failed entries not updated within age
func (s *TransferStore) RemoveTerminalOlderThan(age time.Duration) int {
	threshold := time.Now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.entries {
		if state.Status.IsTerminal() && state.UpdatedAt.Before(threshold) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
