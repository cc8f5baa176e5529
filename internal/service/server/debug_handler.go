package server

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	controller Controller
	history    port.HistoryRepository
	logger     *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(controller Controller, history port.HistoryRepository, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		controller: controller,
		history:    history,
		logger:     logger,
	}
}

// HandleDownloads lists every tracked download
func (h *DebugHandler) HandleDownloads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	states := h.controller.List()
	downloads := make([]progressResponse, 0, len(states))
	for _, s := range states {
		downloads = append(downloads, newProgressResponse(s))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(downloads),
		"downloads": downloads,
	})
}

type historyResponse struct {
	ID         int64  `json:"id"`
	AttemptID  string `json:"attemptId"`
	FileName   string `json:"fileName"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	Bytes      int64  `json:"bytes"`
	TotalBytes int64  `json:"totalBytes"`
	Resumed    bool   `json:"resumed"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finishedAt"`
}

// HandleHistory lists recently finished transfers: /history?limit=&fileName=
func (h *DebugHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "History is disabled", "")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	var entries []*domain.HistoryEntry
	var err error
	if name := r.URL.Query().Get("fileName"); name != "" {
		entries, err = h.history.ByFileName(name, limit)
	} else {
		entries, err = h.history.Recent(limit)
	}
	if err != nil {
		h.logger.Error("failed to read history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read history", err.Error())
		return
	}

	response := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, historyResponse{
			ID:         e.ID,
			AttemptID:  e.AttemptID,
			FileName:   e.FileName,
			URL:        e.URL,
			Status:     e.Status.Label(),
			Bytes:      e.Bytes,
			TotalBytes: e.TotalBytes,
			Resumed:    e.Resumed,
			Error:      e.Error,
			FinishedAt: e.FinishedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(response),
		"history": response,
	})
}
