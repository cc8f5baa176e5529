package event

import (
	"time"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// Event names
const (
	NameTransferStarted   = "transfer.started"
	NameTransferPaused    = "transfer.paused"
	NameTransferCompleted = "transfer.completed"
	NameTransferFailed    = "transfer.failed"
	NameTransferCanceled  = "transfer.canceled"
)

// TransferEvent carries the fields shared by all transfer lifecycle events
type TransferEvent struct {
	Timestamp time.Time
	ID        string
	AttemptID string
	URL       string

	// BytesTransferred is the size on disk when the event was raised
	BytesTransferred int64
	TotalBytes       int64
}

// OccurredAt returns when the event occurred
func (e TransferEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// TransferStarted is raised when a stream is opened for a download
type TransferStarted struct {
	TransferEvent
	ResumedFrom int64
}

// EventName returns the event name
func (e TransferStarted) EventName() string {
	return NameTransferStarted
}

// TransferPaused is raised when the chunk loop stops on a pause
type TransferPaused struct {
	TransferEvent
}

// EventName returns the event name
func (e TransferPaused) EventName() string {
	return NameTransferPaused
}

// TransferCompleted is raised once the file has been promoted to its final name
type TransferCompleted struct {
	TransferEvent
	FinalPath string
	Duration  time.Duration
	Resumed   bool
}

// EventName returns the event name
func (e TransferCompleted) EventName() string {
	return NameTransferCompleted
}

// TransferFailed is raised when a network or disk error ends a transfer
type TransferFailed struct {
	TransferEvent
	Error string
}

// EventName returns the event name
func (e TransferFailed) EventName() string {
	return NameTransferFailed
}

// TransferCanceled is raised after a download's artifacts have been removed
type TransferCanceled struct {
	TransferEvent
}

// EventName returns the event name
func (e TransferCanceled) EventName() string {
	return NameTransferCanceled
}

// NewTransferEvent creates the shared part of a transfer event
func NewTransferEvent(id, attemptID, url string, bytesTransferred, totalBytes int64) TransferEvent {
	return TransferEvent{
		Timestamp:        time.Now(),
		ID:               id,
		AttemptID:        attemptID,
		URL:              url,
		BytesTransferred: bytesTransferred,
		TotalBytes:       totalBytes,
	}
}
