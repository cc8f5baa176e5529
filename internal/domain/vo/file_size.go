package vo

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// FileSize represents a byte count value object with human-readable formatting.
type FileSize struct {
	bytes int64
}

const (
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
)

var ErrNegativeSize = errors.New("file size cannot be negative")

// NewFileSize creates a new FileSize value object.
func NewFileSize(bytes int64) (FileSize, error) {
	if bytes < 0 {
		return FileSize{}, ErrNegativeSize
	}
	return FileSize{bytes: bytes}, nil
}

// FileSizeFromMB creates a FileSize from megabytes.
func FileSizeFromMB(mb int64) FileSize {
	return FileSize{bytes: mb * MB}
}

// Bytes returns the size in bytes.
func (fs FileSize) Bytes() int64 {
	return fs.bytes
}

// String returns a human-readable representation, e.g. "1.5 GiB".
func (fs FileSize) String() string {
	return humanize.IBytes(uint64(fs.bytes))
}

// FormatSpeed renders a throughput in bytes/sec as kilobytes per second
// with two decimals, e.g. "12.00 KB/s".
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return fmt.Sprintf("%.2f KB/s", bytesPerSec/float64(KB))
}

// FormatSize renders a byte count for logs, or "unknown" for a negative count.
func FormatSize(bytes int64) string {
	size, err := NewFileSize(bytes)
	if err != nil {
		return "unknown"
	}
	return size.String()
}
