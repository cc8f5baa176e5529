package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// StalePartMaxAge is how long an untracked partial file is kept
	StalePartMaxAge time.Duration

	// TerminalEntryTTL is how long completed and failed entries stay in the store
	TerminalEntryTTL time.Duration

	// HistoryMaxAge is the maximum age of history rows
	HistoryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:  time.Hour,
		StalePartMaxAge:  7 * 24 * time.Hour,
		TerminalEntryTTL: 24 * time.Hour,
		HistoryMaxAge:    30 * 24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	store   port.TransferStore
	fs      port.FileSystem
	history port.HistoryRepository
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. history may be nil.
func New(cfg *Config, store port.TransferStore, fs port.FileSystem, history port.HistoryRepository, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.StalePartMaxAge == 0 {
		cfg.StalePartMaxAge = 7 * 24 * time.Hour
	}
	if cfg.TerminalEntryTTL == 0 {
		cfg.TerminalEntryTTL = 24 * time.Hour
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 30 * 24 * time.Hour
	}

	return &Service{
		config:  cfg,
		store:   store,
		fs:      fs,
		history: history,
		logger:  logger,
	}
}

// Start runs the maintenance loop until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("stale_part_max_age", s.config.StalePartMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.RunOnce()
		}
	}
}

// RunOnce runs every cleanup task once
func (s *Service) RunOnce() {
	s.cleanupStaleParts()
	s.cleanupTerminalEntries()
	s.cleanupHistory()
}

// cleanupStaleParts removes old partial files no download entry refers to
func (s *Service) cleanupStaleParts() {
	partials, err := s.fs.ListPartials()
	if err != nil {
		s.logger.Error("failed to list partial files", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-s.config.StalePartMaxAge)
	removed := 0
	for name, modTime := range partials {
		if modTime.After(cutoff) {
			continue
		}
		if _, err := s.store.Get(name); err == nil {
			continue
		}
		if err := s.fs.RemovePartial(name); err != nil {
			s.logger.Warn("failed to remove stale partial file",
				zap.String("file", name),
				zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("cleaned up stale partial files", zap.Int("count", removed))
	}
}

// cleanupTerminalEntries removes finished entries from the transfer store
func (s *Service) cleanupTerminalEntries() {
	if n := s.store.RemoveTerminalOlderThan(s.config.TerminalEntryTTL); n > 0 {
		s.logger.Info("cleaned up finished download entries", zap.Int("count", n))
	}
}

// cleanupHistory removes old history rows
func (s *Service) cleanupHistory() {
	if s.history == nil {
		return
	}
	deleted, err := s.history.DeleteOlderThan(s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup history", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("cleaned up old history entries", zap.Int("count", deleted))
	}
}
