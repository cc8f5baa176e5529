package vo

import (
	"errors"
	"path/filepath"
	"strings"
)

// PartialSuffix marks an in-progress download artifact
const PartialSuffix = ".part"

// FileName represents a download target name value object.
// It is a single path element inside the download root.
type FileName struct {
	value string
}

var (
	ErrEmptyFileName   = errors.New("file name cannot be empty")
	ErrInvalidFileName = errors.New("invalid file name")
)

// NewFileName creates a new FileName value object.
// Names containing path separators, parent references or the partial suffix are rejected.
func NewFileName(name string) (FileName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FileName{}, ErrEmptyFileName
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return FileName{}, ErrInvalidFileName
	}
	if filepath.Base(name) != name {
		return FileName{}, ErrInvalidFileName
	}
	if strings.HasSuffix(name, PartialSuffix) {
		return FileName{}, ErrInvalidFileName
	}
	return FileName{value: name}, nil
}

// String returns the name.
func (fn FileName) String() string {
	return fn.value
}

// PartialName returns the artifact name used while name is downloading.
func PartialName(name string) string {
	if name == "" {
		return ""
	}
	return name + PartialSuffix
}

// FromPartialName recovers the target name from an in-progress artifact name.
func FromPartialName(partial string) (FileName, bool) {
	if !strings.HasSuffix(partial, PartialSuffix) {
		return FileName{}, false
	}
	fn, err := NewFileName(strings.TrimSuffix(partial, PartialSuffix))
	if err != nil {
		return FileName{}, false
	}
	return fn, true
}
