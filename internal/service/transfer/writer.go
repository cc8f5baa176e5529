package transfer

import (
	"fmt"
	"strings"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// Policy selects how a download writes to disk
type Policy string

const (
	// PolicyResume writes to the partial file and resumes from its size
	PolicyResume Policy = "resume"
	// PolicyDirect writes straight to the final name and never resumes
	PolicyDirect Policy = "direct"
)

// ParsePolicy parses a policy name, defaulting to PolicyResume for an empty string
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyResume:
		return PolicyResume, nil
	case PolicyDirect:
		return PolicyDirect, nil
	default:
		return "", fmt.Errorf("unknown download policy %q (use resume or direct)", s)
	}
}

// writer owns the open file handle of one session
type writer struct {
	fs     port.FileSystem
	name   string
	policy Policy
	file   port.WritableFile

	// offset is the number of bytes on disk
	offset int64
	closed bool
}

// openWriter opens the artifact for name.
// With PolicyResume the existing partial size becomes the resume offset.
func openWriter(fs port.FileSystem, name string, policy Policy) (*writer, error) {
	w := &writer{fs: fs, name: name, policy: policy}

	switch policy {
	case PolicyDirect:
		f, err := fs.CreateFinal(name)
		if err != nil {
			return nil, err
		}
		w.file = f
	default:
		f, size, err := fs.OpenPartial(name)
		if err != nil {
			return nil, err
		}
		w.file = f
		w.offset = size
	}

	return w, nil
}

// Offset returns the number of bytes on disk
func (w *writer) Offset() int64 {
	return w.offset
}

// Restart discards existing data so writing starts again at byte 0
func (w *writer) Restart() error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate partial file: %w", err)
	}
	w.offset = 0
	return nil
}

// Write appends p to the artifact
func (w *writer) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.offset += int64(n)
	return n, err
}

// Commit flushes and closes the artifact, then promotes it to its final name
func (w *writer) Commit() (*domain.DownloadResult, error) {
	if err := w.file.Sync(); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	if w.policy == PolicyDirect {
		return &domain.DownloadResult{
			FinalPath:    w.fs.FinalPath(w.name),
			BytesWritten: w.offset,
		}, nil
	}

	finalPath, size, err := w.fs.Promote(w.name)
	if err != nil {
		return nil, err
	}
	return &domain.DownloadResult{FinalPath: finalPath, BytesWritten: size}, nil
}

// Close closes the handle and keeps the data on disk. Safe to call twice.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
