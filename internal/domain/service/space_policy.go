package service

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/vertextoedge/sonix-downloader/internal/domain"
)

// SpacePolicy is a domain service that decides whether a transfer fits on disk
type SpacePolicy struct {
	minFreeBytes uint64
}

// NewSpacePolicy creates a SpacePolicy keeping minFreeBytes free after the download
func NewSpacePolicy(minFreeBytes uint64) *SpacePolicy {
	return &SpacePolicy{minFreeBytes: minFreeBytes}
}

// CheckSpace returns domain.ErrInsufficientSpace if writing remaining bytes would leave
// less than the reserved free space. Unknown sizes (negative remaining) always pass.
func (p *SpacePolicy) CheckSpace(remaining int64, freeBytes uint64) error {
	if remaining <= 0 {
		return nil
	}
	need := uint64(remaining) + p.minFreeBytes
	if freeBytes < need {
		return fmt.Errorf("%w: need %s, have %s free",
			domain.ErrInsufficientSpace, humanize.IBytes(need), humanize.IBytes(freeBytes))
	}
	return nil
}
