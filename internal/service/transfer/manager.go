package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/domain/event"
	"github.com/vertextoedge/sonix-downloader/internal/domain/service"
	"github.com/vertextoedge/sonix-downloader/internal/domain/vo"
	"github.com/vertextoedge/sonix-downloader/internal/port"
	"github.com/vertextoedge/sonix-downloader/internal/util/ratelimiter"
)

// ErrShutdown is returned by Start once Shutdown has been called
var ErrShutdown = errors.New("download manager is shutting down")

// Config contains session engine configuration
type Config struct {
	Policy              Policy
	BufferSize          int
	CancelWait          time.Duration
	ProgressLogInterval time.Duration

	// MinFreeBytes is the free space that must remain after a download; 0 disables the check
	MinFreeBytes uint64
}

// DefaultConfig returns default session engine configuration
func DefaultConfig() *Config {
	return &Config{
		Policy:              PolicyResume,
		BufferSize:          32 * 1024,
		CancelWait:          5 * time.Second,
		ProgressLogInterval: 5 * time.Second,
	}
}

// StartRequest names a remote file and its local target
type StartRequest struct {
	URL      string
	FileName string
}

// Manager runs one session per active download.
// Control operations synchronize with sessions through the transfer store;
// the session table only holds cancel functions.
type Manager struct {
	config     *Config
	store      port.TransferStore
	fs         port.FileSystem
	remote     port.RemoteFetcher
	dispatcher event.EventDispatcher
	space      *service.SpacePolicy
	progress   *ratelimiter.Limiter
	logger     *zap.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewManager creates a new Manager
func NewManager(
	cfg *Config,
	store port.TransferStore,
	fs port.FileSystem,
	remote port.RemoteFetcher,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyResume
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	if cfg.CancelWait <= 0 {
		cfg.CancelWait = 5 * time.Second
	}
	if cfg.ProgressLogInterval <= 0 {
		cfg.ProgressLogInterval = 5 * time.Second
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var space *service.SpacePolicy
	if cfg.MinFreeBytes > 0 {
		space = service.NewSpacePolicy(cfg.MinFreeBytes)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Manager{
		config:     cfg,
		store:      store,
		fs:         fs,
		remote:     remote,
		dispatcher: dispatcher,
		space:      space,
		progress:   ratelimiter.New(cfg.ProgressLogInterval),
		logger:     logger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sessions:   make(map[string]*session),
	}
}

// Start opens a stream for the request and copies it to disk in the background.
// The ranged request is issued before Start returns, so a rejected request is
// reported to the caller. Errors after streaming began are recorded in the store.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*domain.StartResult, error) {
	name, err := vo.NewFileName(req.FileName)
	if err != nil {
		return nil, domain.InvalidRequestf("fileName: %v", err)
	}
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	id := name.String()

	m.mu.Lock()
	prev, found, err := m.acquire(id)
	if err != nil {
		return nil, err
	}

	if m.isComplete(id, prev, found) {
		m.mu.Unlock()
		m.logger.Debug("download already completed", zap.String("file", id))
		return &domain.StartResult{ID: id, AlreadyComplete: true, TotalBytes: domain.UnknownSize}, nil
	}

	sess := newSession(id, req.URL, uuid.NewString())
	sctx, cancel := context.WithCancel(m.baseCtx)
	sess.cancel = cancel
	m.sessions[id] = sess
	m.store.Put(domain.NewDownloadState(id, req.URL, sess.attemptID))
	m.mu.Unlock()

	return m.open(ctx, sctx, sess)
}

// acquire waits out a session that is stopping for id and returns the entry
// a new attempt would replace. It returns with m.mu held on success and
// released on error.
func (m *Manager) acquire(id string) (domain.DownloadState, bool, error) {
	for {
		if m.closed {
			m.mu.Unlock()
			return domain.DownloadState{}, false, ErrShutdown
		}

		prev, err := m.store.Get(id)
		found := err == nil
		if found {
			switch {
			case prev.Status.IsActive():
				m.mu.Unlock()
				return prev, true, domain.ErrAlreadyActive
			case prev.Status == domain.StatusCanceled:
				m.mu.Unlock()
				return prev, true, fmt.Errorf("%w: download is being canceled", domain.ErrAlreadyActive)
			}
		}

		sess, ok := m.sessions[id]
		if !ok {
			return prev, found, nil
		}

		// A paused or finished entry whose session has not exited yet
		m.mu.Unlock()
		select {
		case <-sess.done:
		case <-time.After(m.config.CancelWait):
			return prev, found, fmt.Errorf("%w: previous session did not stop in time", domain.ErrAlreadyActive)
		}
		m.mu.Lock()
	}
}

// isComplete reports whether the final artifact already exists.
// With the direct policy a paused or failed entry owns a partial final file,
// so only a completed entry (or no entry) counts.
func (m *Manager) isComplete(id string, prev domain.DownloadState, hasPrev bool) bool {
	if !m.fs.FileExists(m.fs.FinalPath(id)) {
		return false
	}
	if m.config.Policy == PolicyDirect && hasPrev && prev.Status != domain.StatusCompleted {
		return false
	}
	return true
}

// open issues the ranged request and launches the chunk loop.
// ctx bounds only the request; the stream lives on sctx.
func (m *Manager) open(ctx context.Context, sctx context.Context, sess *session) (*domain.StartResult, error) {
	w, err := openWriter(m.fs, sess.id, m.config.Policy)
	if err != nil {
		return nil, m.failSetup(sess, nil, "open", err)
	}

	offset := w.Offset()
	if offset > 0 {
		m.logger.Info("resuming download",
			zap.String("file", sess.id),
			zap.Int64("from_byte", offset))
	}

	// The request is canceled by either a pause/cancel or the caller giving up
	fetchCtx, stopFetch := context.WithCancel(sctx)
	stopCaller := context.AfterFunc(ctx, stopFetch)
	stream, err := m.remote.Fetch(fetchCtx, sess.url, offset)
	stopCaller()
	if err != nil {
		stopFetch()
		return nil, m.failSetup(sess, w, "fetch", err)
	}
	// The body is bound to fetchCtx; it stays open until the session ends
	sess.stopFetch = stopFetch

	if stream.Offset != offset {
		if stream.Offset != 0 {
			stream.Body.Close()
			return nil, m.failSetup(sess, w, "fetch",
				fmt.Errorf("remote resumed at byte %d, local data ends at %d", stream.Offset, offset))
		}
		m.logger.Warn("remote ignored range request, restarting from zero",
			zap.String("file", sess.id),
			zap.Int64("discarded_bytes", offset))
		if err := w.Restart(); err != nil {
			stream.Body.Close()
			return nil, m.failSetup(sess, w, "truncate", err)
		}
		offset = 0
	}

	if err := m.checkSpace(stream.TotalBytes - offset); err != nil {
		stream.Body.Close()
		return nil, m.failSetup(sess, w, "space", err)
	}

	state, err := m.store.Update(sess.id, func(s *domain.DownloadState) error {
		if s.Status != domain.StatusPending {
			return errNotStreaming
		}
		s.MarkDownloading(offset, stream.TotalBytes)
		service.ApplyRate(s, service.EstimateRate(offset, stream.TotalBytes, 0))
		return nil
	})
	if err != nil {
		stream.Body.Close()
		return nil, m.failSetup(sess, w, "start", err)
	}

	sess.startedAt = state.StartedAt
	sess.total = stream.TotalBytes
	sess.resumedFrom = offset

	m.dispatcher.Dispatch(event.TransferStarted{
		TransferEvent: m.newEvent(sess, offset),
		ResumedFrom:   offset,
	})

	m.logger.Info("download started",
		zap.String("file", sess.id),
		zap.String("url", sess.url),
		zap.String("size", vo.FormatSize(stream.TotalBytes)),
		zap.Int64("resumed_from", offset))

	go m.run(sctx, sess, w, stream.Body)

	return &domain.StartResult{
		ID:          sess.id,
		Resumed:     offset > 0,
		ResumedFrom: offset,
		TotalBytes:  stream.TotalBytes,
	}, nil
}

// checkSpace applies the space policy to the bytes still to be written
func (m *Manager) checkSpace(remaining int64) error {
	if m.space == nil || remaining <= 0 {
		return nil
	}
	usage, err := m.fs.GetDiskUsage()
	if err != nil {
		m.logger.Warn("failed to get disk usage, skipping space check", zap.Error(err))
		return nil
	}
	return m.space.CheckSpace(remaining, usage.Free)
}

// failSetup ends a session that never started streaming.
// If a pause or cancel interrupted it, the entry keeps that status.
func (m *Manager) failSetup(sess *session, w *writer, op string, err error) error {
	defer m.release(sess)
	if w != nil {
		w.Close()
	}

	terr := domain.NewTransferFailedError(sess.id, op, err)
	interrupted := domain.StatusCanceled
	state, uerr := m.store.Update(sess.id, func(s *domain.DownloadState) error {
		if s.Status == domain.StatusPaused || s.Status == domain.StatusCanceled {
			interrupted = s.Status
			return errNotStreaming
		}
		s.MarkFailed(terr)
		return nil
	})
	if uerr != nil {
		return fmt.Errorf("%w: download %s before streaming started", domain.ErrInvalidStateTransition, interrupted)
	}

	m.dispatcher.Dispatch(event.TransferFailed{
		TransferEvent: m.newEvent(sess, state.BytesTransferred),
		Error:         terr.Error(),
	})

	m.logger.Warn("download failed to start",
		zap.String("file", sess.id),
		zap.String("op", op),
		zap.Error(err))

	return terr
}

// Pause stops the stream of an active download. Partial data is kept.
func (m *Manager) Pause(id string) error {
	id = normalizeID(id)
	m.mu.Lock()
	state, err := m.store.Update(id, func(s *domain.DownloadState) error {
		return s.Pause()
	})
	sess := m.sessions[id]
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if sess != nil {
		sess.cancel()
	}

	m.logger.Info("download paused",
		zap.String("file", id),
		zap.Int64("bytes", state.BytesTransferred))
	return nil
}

// Cancel stops the stream, deletes every artifact and forgets the download.
func (m *Manager) Cancel(id string) error {
	id = normalizeID(id)
	m.mu.Lock()
	state, err := m.store.Update(id, func(s *domain.DownloadState) error {
		if s.Status == domain.StatusCanceled {
			return domain.ErrNotFound
		}
		s.Status = domain.StatusCanceled
		s.Speed = 0
		s.UpdatedAt = time.Now()
		return nil
	})
	sess := m.sessions[id]
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if sess != nil {
		sess.cancel()
		select {
		case <-sess.done:
		case <-time.After(m.config.CancelWait):
			m.logger.Warn("session did not stop in time, removing artifacts anyway",
				zap.String("file", id),
				zap.Duration("wait", m.config.CancelWait))
		}
	}

	if err := m.fs.RemoveArtifacts(id); err != nil {
		m.logger.Warn("failed to remove download artifacts",
			zap.String("file", id),
			zap.Error(err))
	}
	m.store.Remove(id)

	m.dispatcher.Dispatch(event.TransferCanceled{
		TransferEvent: event.NewTransferEvent(id, state.AttemptID, state.URL, state.BytesTransferred, state.TotalBytes),
	})

	m.logger.Info("download canceled", zap.String("file", id))
	return nil
}

// Progress returns a snapshot of one download
func (m *Manager) Progress(id string) (domain.DownloadState, error) {
	return m.store.Get(normalizeID(id))
}

// List returns snapshots of all downloads
func (m *Manager) List() []domain.DownloadState {
	return m.store.List()
}

// IsActive reports whether a session is running for id
func (m *Manager) IsActive(id string) bool {
	id = normalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// Shutdown pauses every active download and waits for the sessions to close
// their files. New starts are rejected.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		m.store.Update(id, func(s *domain.DownloadState) error {
			return s.Pause()
		})
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	m.baseCancel()

	for _, sess := range sessions {
		select {
		case <-sess.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown interrupted with sessions still running: %w", ctx.Err())
		}
	}

	m.logger.Info("download manager stopped", zap.Int("paused", len(sessions)))
	return nil
}

// release removes the session from the table and signals waiters
func (m *Manager) release(sess *session) {
	m.mu.Lock()
	if m.sessions[sess.id] == sess {
		delete(m.sessions, sess.id)
	}
	m.mu.Unlock()

	sess.cancel()
	if sess.stopFetch != nil {
		sess.stopFetch()
	}
	m.progress.Forget(sess.id)
	close(sess.done)
}

func (m *Manager) newEvent(sess *session, bytes int64) event.TransferEvent {
	return event.NewTransferEvent(sess.id, sess.attemptID, sess.url, bytes, sess.total)
}

// normalizeID maps a requested file name to the id Start stores it under.
// Invalid names are returned unchanged and simply match no download.
func normalizeID(raw string) string {
	name, err := vo.NewFileName(raw)
	if err != nil {
		return raw
	}
	return name.String()
}

func validateURL(raw string) error {
	if raw == "" {
		return domain.InvalidRequestf("movieUrl is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return domain.InvalidRequestf("movieUrl: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.InvalidRequestf("movieUrl: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return domain.InvalidRequestf("movieUrl: missing host")
	}
	return nil
}
