package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain/vo"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// Manager handles files under the download root
type Manager struct {
	rootDir string
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager, creating rootDir if needed
func NewManager(rootDir string) (*Manager, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("download root dir is required")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download root dir: %w", err)
	}

	return &Manager{rootDir: rootDir}, nil
}

// RootDir returns the download root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// FinalPath returns the local path of a completed download
func (m *Manager) FinalPath(name string) string {
	return filepath.Join(m.rootDir, name)
}

// PartialPath returns the local path of an in-progress download
func (m *Manager) PartialPath(name string) string {
	return filepath.Join(m.rootDir, vo.PartialName(name))
}

// FileExists checks if a regular file exists
func (m *Manager) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// OpenPartial opens the in-progress file in append mode.
// The existing size is the offset the next byte will be written at.
func (m *Manager) OpenPartial(name string) (port.WritableFile, int64, error) {
	partialPath := m.PartialPath(name)

	f, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open partial file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat partial file: %w", err)
	}

	return f, info.Size(), nil
}

// CreateFinal creates or truncates the final file for direct writes
func (m *Manager) CreateFinal(name string) (port.WritableFile, error) {
	f, err := os.OpenFile(m.FinalPath(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// Promote renames the in-progress file to its final name
func (m *Manager) Promote(name string) (string, int64, error) {
	partialPath := m.PartialPath(name)
	finalPath := m.FinalPath(name)

	info, err := os.Stat(partialPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat partial file: %w", err)
	}

	if err := os.Rename(partialPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to rename partial file: %w", err)
	}

	return finalPath, info.Size(), nil
}

// RemoveArtifacts deletes the in-progress and final files for name
func (m *Manager) RemoveArtifacts(name string) error {
	var errs []error
	for _, path := range []string{m.PartialPath(name), m.FinalPath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err))
		}
	}
	return errors.Join(errs...)
}

// RemovePartial deletes the in-progress file for name
func (m *Manager) RemovePartial(name string) error {
	if err := os.Remove(m.PartialPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete partial file: %w", err)
	}
	return nil
}

// ListPartials returns the target names and modification times of in-progress files
func (m *Manager) ListPartials() (map[string]time.Time, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read download root: %w", err)
	}

	partials := make(map[string]time.Time)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), vo.PartialSuffix) {
			continue
		}
		name, ok := vo.FromPartialName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		partials[name.String()] = info.ModTime()
	}
	return partials, nil
}
