package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/sonix-downloader/internal/adapter/filesystem"
	"github.com/vertextoedge/sonix-downloader/internal/adapter/memory"
	"github.com/vertextoedge/sonix-downloader/internal/adapter/remote"
	"github.com/vertextoedge/sonix-downloader/internal/adapter/sqlite"
	"github.com/vertextoedge/sonix-downloader/internal/config"
	"github.com/vertextoedge/sonix-downloader/internal/domain/event"
	"github.com/vertextoedge/sonix-downloader/internal/logger"
	"github.com/vertextoedge/sonix-downloader/internal/port"
	"github.com/vertextoedge/sonix-downloader/internal/service/maintenance"
	"github.com/vertextoedge/sonix-downloader/internal/service/server"
	"github.com/vertextoedge/sonix-downloader/internal/service/transfer"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (defaults and SONIX_* environment when empty)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting sonix-downloader",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Error("application stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	zapLogger.Info("application stopped successfully")
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	// Initialize filesystem manager
	fsManager, err := filesystem.NewManager(cfg.Download.RootDir)
	if err != nil {
		return fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	dispatcher := event.NewInMemoryDispatcher(zapLogger)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger.Named("events")))

	// Open history database
	var history port.HistoryRepository
	if cfg.History.Enabled {
		dbPath := cfg.GetHistoryPath()
		store, err := sqlite.OpenWithOptions(dbPath, sqlite.Options{
			CacheSizeMB:   cfg.History.CacheSizeMB,
			BusyTimeoutMs: cfg.History.BusyTimeoutMs,
		})
		if err != nil {
			return fmt.Errorf("failed to open history database %s: %w", dbPath, err)
		}
		defer store.Close()

		history = store
		dispatcher.Subscribe(sqlite.NewHistoryHandler(store))
		zapLogger.Info("transfer history enabled", zap.String("path", dbPath))
	}

	policy, err := transfer.ParsePolicy(cfg.Download.Policy)
	if err != nil {
		return err
	}

	// Create remote client
	remoteClient := remote.NewClient(&remote.ClientConfig{
		UserAgent:             cfg.Remote.UserAgent,
		ResponseHeaderTimeout: cfg.Remote.GetResponseHeaderTimeout(),
		IdleConnTimeout:       cfg.Remote.GetIdleConnTimeout(),
		BufferSize:            cfg.Download.GetBufferSize(),
	})

	// Create download manager
	transfers := memory.NewTransferStore()
	managerCfg := &transfer.Config{
		Policy:              policy,
		BufferSize:          cfg.Download.GetBufferSize(),
		CancelWait:          cfg.Download.GetCancelWait(),
		ProgressLogInterval: cfg.Download.GetProgressLogInterval(),
		MinFreeBytes:        cfg.Download.GetMinFreeBytes(),
	}
	manager := transfer.NewManager(managerCfg, transfers, fsManager, remoteClient, dispatcher, zapLogger.Named("transfer"))

	// Create maintenance service
	maintenanceCfg := &maintenance.Config{
		CleanupInterval:  cfg.Maintenance.GetCleanupInterval(),
		StalePartMaxAge:  cfg.Maintenance.GetStalePartMaxAge(),
		TerminalEntryTTL: cfg.Maintenance.GetTerminalEntryTTL(),
		HistoryMaxAge:    cfg.Maintenance.GetHistoryMaxAge(),
	}
	maintenanceService := maintenance.New(maintenanceCfg, transfers, fsManager, history, zapLogger.Named("maintenance"))

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, manager, history, fsManager, zapLogger.Named("http"))

	// Cancel on interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start()
	})

	g.Go(func() error {
		if err := maintenanceService.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("maintenance service: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("shutdown signal received, stopping services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		maintenanceService.Stop()

		var errs []error
		if err := httpServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server gracefully: %w", err))
		}
		// Active downloads are paused so their partial files can be resumed
		if err := manager.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("download_dir", fsManager.RootDir()),
		zap.String("policy", string(policy)),
	)

	return g.Wait()
}
