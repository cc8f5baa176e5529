package domain

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of a download
type Status string

// Download status constants
const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCanceled    Status = "canceled"
)

// UnknownSize marks a total size the remote did not announce
const UnknownSize int64 = -1

// IsActive returns true while a stream may be consuming bytes
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDownloading
}

// IsTerminal returns true for states that only an explicit start can leave
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Label returns the capitalized status used by the control API
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusDownloading:
		return "Downloading"
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCanceled:
		return "Canceled"
	default:
		return string(s)
	}
}

// ETAKind distinguishes a computed ETA from the indeterminate markers
type ETAKind int

const (
	ETACalculating ETAKind = iota
	ETAKnown
	ETAAlmostDone
)

// ETA is the estimated time remaining for a transfer
type ETA struct {
	Kind    ETAKind
	Seconds float64
}

// String renders the ETA the way the control API reports it
func (e ETA) String() string {
	switch e.Kind {
	case ETAKnown:
		return fmt.Sprintf("%d sec", int64(math.Round(e.Seconds)))
	case ETAAlmostDone:
		return "Almost done"
	default:
		return "Calculating..."
	}
}

// DownloadState is the tracked state of one named download.
// Values are copied in and out of the transfer store, so a DownloadState
// held by a caller is a snapshot.
type DownloadState struct {
	ID     string
	URL    string
	Status Status

	BytesTransferred int64
	TotalBytes       int64

	// StartedAt is when the current streaming attempt began
	StartedAt time.Time
	UpdatedAt time.Time

	// Derived on every chunk
	Speed   float64
	ETA     ETA
	Percent float64

	// Resume support
	Resumed     bool
	ResumedFrom int64

	AttemptID string
	LastError string
}

// NewDownloadState creates a pending state for a new attempt
func NewDownloadState(id, url, attemptID string) DownloadState {
	now := time.Now()
	return DownloadState{
		ID:         id,
		URL:        url,
		Status:     StatusPending,
		TotalBytes: UnknownSize,
		Percent:    -1,
		StartedAt:  now,
		UpdatedAt:  now,
		AttemptID:  attemptID,
	}
}

// HasTotal returns true if the remote announced a total size
func (s *DownloadState) HasTotal() bool {
	return s.TotalBytes >= 0
}

// MarkDownloading records the start of streaming from offset
func (s *DownloadState) MarkDownloading(offset, total int64) {
	now := time.Now()
	s.Status = StatusDownloading
	s.BytesTransferred = offset
	s.TotalBytes = total
	s.Resumed = offset > 0
	s.ResumedFrom = offset
	s.StartedAt = now
	s.UpdatedAt = now
	s.LastError = ""
}

// MarkFailed records a failed attempt
func (s *DownloadState) MarkFailed(err error) {
	s.Status = StatusFailed
	if err != nil {
		s.LastError = err.Error()
	}
	s.Speed = 0
	s.UpdatedAt = time.Now()
}

// MarkCompleted records a finished transfer of size bytes
func (s *DownloadState) MarkCompleted(size int64) {
	s.Status = StatusCompleted
	s.BytesTransferred = size
	if !s.HasTotal() {
		s.TotalBytes = size
	}
	s.Percent = 100
	s.ETA = ETA{Kind: ETAAlmostDone}
	s.UpdatedAt = time.Now()
}

// Pause transitions an active download to paused.
// Pausing a paused download is a no-op.
func (s *DownloadState) Pause() error {
	switch {
	case s.Status == StatusPaused:
		return nil
	case s.Status.IsActive():
		s.Status = StatusPaused
		s.Speed = 0
		s.ETA = ETA{Kind: ETACalculating}
		s.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: cannot pause %s download", ErrInvalidStateTransition, s.Status)
	}
}
