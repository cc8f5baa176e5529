package event

import (
	"go.uber.org/zap"
)

// LoggingHandler writes every event to the debug log
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferStarted:
		h.logger.Debug("transfer started",
			zap.String("id", e.ID),
			zap.String("attempt_id", e.AttemptID),
			zap.String("url", e.URL),
			zap.Int64("resumed_from", e.ResumedFrom),
			zap.Int64("total_bytes", e.TotalBytes),
		)
	case TransferPaused:
		h.logger.Debug("transfer paused",
			zap.String("id", e.ID),
			zap.String("attempt_id", e.AttemptID),
			zap.Int64("bytes", e.BytesTransferred),
		)
	case TransferCompleted:
		h.logger.Debug("transfer completed",
			zap.String("id", e.ID),
			zap.String("attempt_id", e.AttemptID),
			zap.String("final_path", e.FinalPath),
			zap.Int64("size", e.BytesTransferred),
			zap.Bool("resumed", e.Resumed),
			zap.Duration("duration", e.Duration),
		)
	case TransferFailed:
		h.logger.Debug("transfer failed",
			zap.String("id", e.ID),
			zap.String("attempt_id", e.AttemptID),
			zap.Int64("bytes", e.BytesTransferred),
			zap.String("error", e.Error),
		)
	case TransferCanceled:
		h.logger.Debug("transfer canceled",
			zap.String("id", e.ID),
			zap.String("attempt_id", e.AttemptID),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns all event names
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"}
}
