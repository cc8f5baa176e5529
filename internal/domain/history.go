package domain

import "time"

// HistoryEntry is one finished transfer attempt recorded for reporting.
// It is never read back to resume a transfer.
type HistoryEntry struct {
	ID         int64
	AttemptID  string
	FileName   string
	URL        string
	Status     Status
	Bytes      int64
	TotalBytes int64
	Resumed    bool
	Error      string
	FinishedAt time.Time
}
