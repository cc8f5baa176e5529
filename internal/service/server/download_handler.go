package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/domain/vo"
	"github.com/vertextoedge/sonix-downloader/internal/service/transfer"
)

// maxBodyBytes bounds control request bodies
const maxBodyBytes = 64 * 1024

// DownloadHandler handles download control requests
type DownloadHandler struct {
	controller Controller
	logger     *zap.Logger
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(controller Controller, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		controller: controller,
		logger:     logger,
	}
}

type startRequest struct {
	MovieURL string `json:"movieUrl"`
	FileName string `json:"fileName"`
}

type fileRequest struct {
	FileName string `json:"fileName"`
}

type actionResponse struct {
	Message     string `json:"message"`
	FileName    string `json:"fileName"`
	ResumedFrom int64  `json:"resumedFrom,omitempty"`
	TotalBytes  *int64 `json:"totalBytes,omitempty"`
}

// progressResponse is a download snapshot as reported to clients
type progressResponse struct {
	FileName         string `json:"fileName"`
	Progress         string `json:"progress"`
	Status           string `json:"status"`
	Speed            string `json:"speed"`
	ETA              string `json:"eta"`
	BytesTransferred int64  `json:"bytesTransferred"`
	TotalBytes       int64  `json:"totalBytes"`
	StartTime        string `json:"startTime"`
	Resumed          bool   `json:"resumed,omitempty"`
	ResumedFrom      int64  `json:"resumedFrom,omitempty"`
	Error            string `json:"error,omitempty"`
}

func newProgressResponse(s domain.DownloadState) progressResponse {
	progress := "N/A"
	if s.Percent >= 0 {
		progress = fmt.Sprintf("%.2f", s.Percent)
	}
	return progressResponse{
		FileName:         s.ID,
		Progress:         progress,
		Status:           s.Status.Label(),
		Speed:            vo.FormatSpeed(s.Speed),
		ETA:              s.ETA.String(),
		BytesTransferred: s.BytesTransferred,
		TotalBytes:       s.TotalBytes,
		StartTime:        s.StartedAt.Format(time.RFC3339),
		Resumed:          s.Resumed,
		ResumedFrom:      s.ResumedFrom,
		Error:            s.LastError,
	}
}

// HandleStart handles POST /start_download
func (h *DownloadHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if req.MovieURL == "" || req.FileName == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "movieUrl and fileName are required")
		return
	}

	res, err := h.controller.Start(r.Context(), transfer.StartRequest{URL: req.MovieURL, FileName: req.FileName})
	if err != nil {
		h.writeControlError(w, "start", req.FileName, err)
		return
	}

	if res.AlreadyComplete {
		writeJSON(w, http.StatusOK, actionResponse{Message: "Download already completed", FileName: res.ID})
		return
	}

	resp := actionResponse{Message: "Download started", FileName: res.ID, ResumedFrom: res.ResumedFrom}
	if res.TotalBytes >= 0 {
		total := res.TotalBytes
		resp.TotalBytes = &total
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePause handles POST /pause_download
func (h *DownloadHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	name, ok := h.fileAction(w, r)
	if !ok {
		return
	}

	if err := h.controller.Pause(name); err != nil {
		h.writeControlError(w, "pause", name, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Message: "Download paused", FileName: name})
}

// HandleCancel handles POST /cancel_download
func (h *DownloadHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	name, ok := h.fileAction(w, r)
	if !ok {
		return
	}

	if err := h.controller.Cancel(name); err != nil {
		h.writeControlError(w, "cancel", name, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Message: "Download canceled", FileName: name})
}

// HandleProgress handles GET /download_progress?fileName=
func (h *DownloadHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	name := r.URL.Query().Get("fileName")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "fileName is required")
		return
	}

	state, err := h.controller.Progress(name)
	if err != nil {
		h.writeControlError(w, "progress", name, err)
		return
	}
	writeJSON(w, http.StatusOK, newProgressResponse(state))
}

// fileAction decodes a POST body naming one download
func (h *DownloadHandler) fileAction(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return "", false
	}

	var req fileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return "", false
	}
	if req.FileName == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "fileName is required")
		return "", false
	}
	return req.FileName, true
}

func (h *DownloadHandler) writeControlError(w http.ResponseWriter, op, name string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("download request failed",
			zap.String("op", op),
			zap.String("file", name),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, msg, err.Error())
}

// errorStatus maps engine errors to HTTP statuses
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Download not found"
	case errors.Is(err, domain.ErrAlreadyActive):
		return http.StatusConflict, "Download already in progress"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "Invalid state for this operation"
	case errors.Is(err, domain.ErrInsufficientSpace):
		return http.StatusInsufficientStorage, "Insufficient disk space"
	case errors.Is(err, transfer.ErrShutdown):
		return http.StatusServiceUnavailable, "Server is shutting down"
	case domain.IsTransferFailed(err):
		return http.StatusBadGateway, "Download failed"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
