package repository

import (
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
)

// TransferStore is the registry of download states keyed by identifier.
// Implementations must be safe for concurrent use and hand out copies,
// so a reader never observes a partially-updated record.
type TransferStore interface {
	// Put inserts or replaces the state for state.ID
	Put(state domain.DownloadState)

	// Get returns a snapshot of the state
	// Returns domain.ErrNotFound if no entry exists
	Get(id string) (domain.DownloadState, error)

	// Update applies fn to the entry under the store lock and returns the result.
	// If fn returns an error the entry is left unchanged.
	// Returns domain.ErrNotFound if no entry exists
	Update(id string, fn func(*domain.DownloadState) error) (domain.DownloadState, error)

	// Remove deletes the entry
	// Returns domain.ErrNotFound if no entry exists
	Remove(id string) error

	// List returns snapshots of all entries ordered by identifier
	List() []domain.DownloadState

	// RemoveTerminalOlderThan deletes completed and failed entries not updated within age
	// Returns the number of entries removed
	RemoveTerminalOlderThan(age time.Duration) int
}
