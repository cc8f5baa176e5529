package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/port"
	"github.com/vertextoedge/sonix-downloader/internal/service/transfer"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:3000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Controller is the download engine driven by the control API
type Controller interface {
	Start(ctx context.Context, req transfer.StartRequest) (*domain.StartResult, error)
	Pause(id string) error
	Cancel(id string) error
	Progress(id string) (domain.DownloadState, error)
	List() []domain.DownloadState
}

// Ensure the transfer manager satisfies Controller
var _ Controller = (*transfer.Manager)(nil)

// Server represents the HTTP control API server
type Server struct {
	config          *Config
	controller      Controller
	history         port.HistoryRepository
	fs              port.FileSystem
	logger          *zap.Logger
	server          *http.Server
	downloadHandler *DownloadHandler
	debugHandler    *DebugHandler
}

// New creates a new HTTP server.
// history and fs may be nil; the endpoints depending on them report unavailable.
func New(cfg *Config, controller Controller, history port.HistoryRepository, fs port.FileSystem, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:     cfg,
		controller: controller,
		history:    history,
		fs:         fs,
		logger:     logger,
	}

	s.downloadHandler = NewDownloadHandler(controller, logger)
	s.debugHandler = NewDebugHandler(controller, history, logger)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Download control endpoints
	mux.HandleFunc("/start_download", s.downloadHandler.HandleStart)
	mux.HandleFunc("/pause_download", s.downloadHandler.HandlePause)
	mux.HandleFunc("/cancel_download", s.downloadHandler.HandleCancel)
	mux.HandleFunc("/download_progress", s.downloadHandler.HandleProgress)

	// Debug endpoints
	mux.HandleFunc("/downloads", s.debugHandler.HandleDownloads)
	mux.HandleFunc("/history", s.debugHandler.HandleHistory)

	return LoggingMiddleware(s.logger)(mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	if s.history != nil {
		if err := s.history.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Database connection failed", err.Error())
			return
		}
	}

	response := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}

	if s.fs != nil {
		if usage, err := s.fs.GetDiskUsage(); err == nil {
			response["disk"] = map[string]interface{}{
				"total":    usage.Total,
				"used":     usage.Used,
				"free":     usage.Free,
				"used_pct": usage.UsedPct,
			}
		} else {
			s.logger.Warn("failed to get disk usage", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, response)
}
