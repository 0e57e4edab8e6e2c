package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/handlers"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/metrics"
	"github.com/ternarybob/pactum/internal/services/dispatch"
	"github.com/ternarybob/pactum/internal/services/events"
	"github.com/ternarybob/pactum/internal/services/reaper"
	"github.com/ternarybob/pactum/internal/storage"
)

// App wires together storage, the dispatch engine, and the HTTP surface.
// Everything the server needs hangs off this struct.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	EventService interfaces.EventService

	// Dispatch facade plus the reaper that expires silent workers
	DispatchService *dispatch.Service
	ReaperService   *reaper.Service

	// Prometheus metrics (nil when disabled)
	Metrics *metrics.Metrics

	APIHandler        *handlers.APIHandler
	JobHandler        *handlers.JobHandler
	CommitmentHandler *handlers.CommitmentHandler
	StatusHandler     *handlers.StatusHandler
	WSHandler         *handlers.WebSocketHandler
}

// New builds the full dependency graph in three stages: storage first,
// then services on top of it, then handlers on top of those.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Bool("reaper_enabled", cfg.Reaper.Enabled).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("Application ready")

	return app, nil
}

// initDatabase opens Badger and, when enabled, the metrics registry the
// storage layer reports transaction retries to.
func (a *App) initDatabase() error {
	if a.Config.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	storageManager, err := storage.NewStorageManager(a.Logger, a.Config, a.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage opened")

	return nil
}

// initServices stands up events, dispatch, and the reaper, in that order.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	// Lifecycle events land in the log even with no WebSocket client attached.
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to subscribe logger to events")
	}

	a.DispatchService = dispatch.NewService(a.StorageManager, a.EventService, a.Metrics, a.Logger)
	a.Logger.Debug().Msg("Dispatch service initialized")

	a.ReaperService = reaper.NewService(a.DispatchService, a.Config, a.Logger)
	if a.Config.Reaper.Enabled {
		if err := a.ReaperService.Start(); err != nil {
			return fmt.Errorf("failed to start reaper: %w", err)
		}
	} else {
		a.Logger.Debug().Msg("Reaper disabled by config")
	}

	return nil
}

// initHandlers constructs the HTTP handlers over the dispatch facade.
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.JobHandler = handlers.NewJobHandler(a.DispatchService, a.Logger)
	a.CommitmentHandler = handlers.NewCommitmentHandler(a.DispatchService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.DispatchService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)

	return nil
}

// Close releases resources in reverse dependency order. Only a storage
// close failure is reported to the caller; the rest is logged and skipped
// so shutdown always reaches Badger.
func (a *App) Close() error {
	if a.ReaperService != nil {
		if err := a.ReaperService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Reaper did not stop cleanly")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service did not close cleanly")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
