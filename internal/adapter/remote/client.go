package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	UserAgent             string
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	BufferSize            int
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		UserAgent:             "sonix-downloader",
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       120 * time.Second,
		BufferSize:            256 * 1024,
	}
}

// Client fetches remote files with HTTP range requests
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Ensure Client implements port.RemoteFetcher
var _ port.RemoteFetcher = (*Client)(nil)

// NewClient creates a new remote client
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if cfg.ResponseHeaderTimeout == 0 {
		cfg.ResponseHeaderTimeout = 30 * time.Second
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 120 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256 * 1024
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		// Buffer sizes for high-speed transfers
		WriteBufferSize: cfg.BufferSize,
		ReadBufferSize:  cfg.BufferSize,

		ForceAttemptHTTP2: true,

		// Byte offsets must refer to the stored representation
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads
		},
		userAgent: cfg.UserAgent,
	}
}

// Fetch opens a stream for url starting at offset.
// A 206 response continues at offset; a 200 response restarts at 0.
// A 416 response whose announced size equals offset yields an empty stream
// at offset, since the local data is already complete. When the announced size
// is below offset the local data cannot belong to this file, so the whole file
// is requested again and the stream starts at 0.
func (c *Client) Fetch(ctx context.Context, url string, offset int64) (*port.RemoteStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if start, ok := parseContentRangeStart(resp.Header.Get("Content-Range")); ok && start != offset {
			resp.Body.Close()
			return nil, fmt.Errorf("remote returned range starting at byte %d, requested %d", start, offset)
		}
		total := domain.UnknownSize
		if t, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			total = t
		} else if resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
		return &port.RemoteStream{Body: resp.Body, Offset: offset, TotalBytes: total}, nil

	case http.StatusOK:
		total := domain.UnknownSize
		if resp.ContentLength >= 0 {
			total = resp.ContentLength
		}
		return &port.RemoteStream{Body: resp.Body, Offset: 0, TotalBytes: total}, nil

	case http.StatusRequestedRangeNotSatisfiable:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if t, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok && offset > 0 {
			if t == offset {
				return &port.RemoteStream{Body: http.NoBody, Offset: offset, TotalBytes: t}, nil
			}
			if t < offset {
				return c.Fetch(ctx, url, 0)
			}
		}
		return nil, &domain.RemoteStatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &domain.RemoteStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// parseContentRangeStart extracts the first byte position from a Content-Range
// header such as "bytes 300-999/1000".
func parseContentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	dash := strings.IndexByte(rest, '-')
	if dash <= 0 {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(rest[:dash]), 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

// parseContentRangeTotal extracts the complete length from a Content-Range
// header such as "bytes 300-999/1000" or "bytes */1000".
func parseContentRangeTotal(header string) (int64, bool) {
	if header == "" {
		return 0, false
	}
	idx := strings.LastIndex(header, "/")
	if idx == -1 || idx == len(header)-1 {
		return 0, false
	}
	totalStr := strings.TrimSpace(header[idx+1:])
	if totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
