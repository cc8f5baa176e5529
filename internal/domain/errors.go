package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound       = errors.New("download not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrAlreadyActive  = errors.New("download is already in progress")

	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientSpace      = errors.New("insufficient disk space")
)

// TransferFailedError wraps a network or disk error that ended a transfer.
// Partial data is kept so a later start can resume.
type TransferFailedError struct {
	ID  string
	Op  string
	Err error
}

// Error returns the error message
func (e *TransferFailedError) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return e.Op + ": " + e.Err.Error()
		}
		return e.Op
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "transfer failed"
}

// Unwrap returns the underlying error
func (e *TransferFailedError) Unwrap() error {
	return e.Err
}

// NewTransferFailedError creates a new TransferFailedError
func NewTransferFailedError(id, op string, err error) *TransferFailedError {
	return &TransferFailedError{ID: id, Op: op, Err: err}
}

// IsTransferFailed returns true if the error ended a transfer
func IsTransferFailed(err error) bool {
	var te *TransferFailedError
	return errors.As(err, &te)
}

// RemoteStatusError is returned when the remote answers with a non-success status
type RemoteStatusError struct {
	StatusCode int
	Status     string
}

// Error returns the error message
func (e *RemoteStatusError) Error() string {
	if e.Status != "" {
		return "remote returned status: " + e.Status
	}
	return fmt.Sprintf("remote returned status: %d", e.StatusCode)
}

// GetRemoteStatus returns the remote status code if err carries one
func GetRemoteStatus(err error) (int, bool) {
	var re *RemoteStatusError
	if errors.As(err, &re) {
		return re.StatusCode, true
	}
	return 0, false
}

// InvalidRequestf returns an ErrInvalidRequest with detail
func InvalidRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
