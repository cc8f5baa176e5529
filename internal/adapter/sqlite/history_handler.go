package sqlite

import (
	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/domain/event"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// HistoryHandler records finished transfers
type HistoryHandler struct {
	history port.HistoryRepository
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(history port.HistoryRepository) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// Handle records completed, failed and canceled transfers
func (h *HistoryHandler) Handle(e event.DomainEvent) error {
	var entry *domain.HistoryEntry

	switch ev := e.(type) {
	case event.TransferCompleted:
		entry = newEntry(ev.TransferEvent, domain.StatusCompleted)
		entry.Resumed = ev.Resumed
	case event.TransferFailed:
		entry = newEntry(ev.TransferEvent, domain.StatusFailed)
		entry.Error = ev.Error
	case event.TransferCanceled:
		entry = newEntry(ev.TransferEvent, domain.StatusCanceled)
	default:
		return nil
	}

	return h.history.Record(entry)
}

// HandledEvents returns the terminal transfer events
func (h *HistoryHandler) HandledEvents() []string {
	return []string{
		event.NameTransferCompleted,
		event.NameTransferFailed,
		event.NameTransferCanceled,
	}
}

func newEntry(e event.TransferEvent, status domain.Status) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		AttemptID:  e.AttemptID,
		FileName:   e.ID,
		URL:        e.URL,
		Status:     status,
		Bytes:      e.BytesTransferred,
		TotalBytes: e.TotalBytes,
		FinishedAt: e.Timestamp,
	}
}
