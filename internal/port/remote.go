package port

import (
	"context"
	"io"
)

// RemoteStream is an open byte stream from a remote source
type RemoteStream struct {
	// Body yields the bytes starting at Offset
	Body io.ReadCloser

	// Offset is the byte position Body starts at.
	// It is 0 when the remote ignored a range request.
	Offset int64

	// TotalBytes is the full size of the remote file, or -1 when unknown
	TotalBytes int64
}

// RemoteFetcher issues ranged GET requests
type RemoteFetcher interface {
	// Fetch opens a stream for url starting at offset.
	// The stream is bound to ctx: canceling ctx interrupts a blocked read.
	// Returns *domain.RemoteStatusError for non-success statuses.
	Fetch(ctx context.Context, url string, offset int64) (*RemoteStream, error)
}
