package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// WritableFile is an open download artifact
type WritableFile interface {
	io.Writer
	io.Closer

	// Sync flushes written data to stable storage
	Sync() error

	// Truncate changes the size of the file
	Truncate(size int64) error
}

// FileSystem defines the interface for download root operations
type FileSystem interface {
	// RootDir returns the download root directory
	RootDir() string

	// FinalPath returns the local path of a completed download
	FinalPath(name string) string

	// PartialPath returns the local path of an in-progress download
	PartialPath(name string) string

	// FileExists checks if a file exists
	FileExists(path string) bool

	// OpenPartial opens the in-progress file for appending, creating it if needed
	// Returns: file, existing size (the resume offset), error
	OpenPartial(name string) (WritableFile, int64, error)

	// CreateFinal creates (or truncates) the final file for direct writes
	CreateFinal(name string) (WritableFile, error)

	// Promote atomically renames the in-progress file to its final name
	// Returns: final path, final size, error
	Promote(name string) (string, int64, error)

	// RemoveArtifacts deletes both the in-progress and the final file for name
	RemoveArtifacts(name string) error

	// ListPartials returns names (without suffix) and modification times of in-progress files
	ListPartials() (map[string]time.Time, error)

	// RemovePartial deletes the in-progress file for name
	RemovePartial(name string) error

	// GetDiskUsage returns disk usage statistics for the download root
	GetDiskUsage() (*DiskUsage, error)
}
