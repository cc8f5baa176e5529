package repository

import (
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
)

// HistoryRepository records finished transfer attempts
type HistoryRepository interface {
	// Record stores a finished attempt
	Record(entry *domain.HistoryEntry) error

	// Recent returns the most recent entries, newest first
	Recent(limit int) ([]*domain.HistoryEntry, error)

	// ByFileName returns entries for one download target, newest first
	ByFileName(fileName string, limit int) ([]*domain.HistoryEntry, error)

	// DeleteOlderThan removes entries finished before now-age
	// Returns the number of entries deleted
	DeleteOlderThan(age time.Duration) (int, error)

	// Ping checks database connectivity
	Ping() error

	// Close closes the database connection
	Close() error
}
