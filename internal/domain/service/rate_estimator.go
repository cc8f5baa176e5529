package service

import (
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
)

// Rate is the derived throughput of a transfer at one point in time
type Rate struct {
	// Speed is in bytes per second
	Speed float64
	ETA   domain.ETA

	// Percent is in [0, 100], or -1 when the total size is unknown
	Percent float64
}

// EstimateRate is a pure domain service computing speed, ETA and progress.
// bytesTransferred is cumulative for the attempt, including any resumed prefix.
// totalBytes is domain.UnknownSize when the remote did not announce a length.
func EstimateRate(bytesTransferred, totalBytes int64, elapsed time.Duration) Rate {
	r := Rate{Percent: -1, ETA: domain.ETA{Kind: domain.ETACalculating}}

	if secs := elapsed.Seconds(); secs > 0 {
		r.Speed = float64(bytesTransferred) / secs
	}

	if totalBytes < 0 {
		return r
	}

	r.Percent = Percent(bytesTransferred, totalBytes)

	remaining := totalBytes - bytesTransferred
	switch {
	case remaining <= 0:
		r.ETA = domain.ETA{Kind: domain.ETAAlmostDone}
	case r.Speed > 0:
		r.ETA = domain.ETA{Kind: domain.ETAKnown, Seconds: float64(remaining) / r.Speed}
	}

	return r
}

// Percent returns bytesTransferred as a percentage of totalBytes, clamped to [0, 100].
// It returns -1 when totalBytes is unknown.
func Percent(bytesTransferred, totalBytes int64) float64 {
	if totalBytes < 0 {
		return -1
	}
	if totalBytes == 0 {
		return 100
	}
	p := float64(bytesTransferred) / float64(totalBytes) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ApplyRate copies a computed rate into a download state
func ApplyRate(s *domain.DownloadState, r Rate) {
	s.Speed = r.Speed
	s.ETA = r.ETA
	s.Percent = r.Percent
}
