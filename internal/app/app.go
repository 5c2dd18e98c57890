package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/handlers"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/services/advisor"
	"github.com/ternarybob/consilium/internal/services/analysts"
	"github.com/ternarybob/consilium/internal/services/events"
	"github.com/ternarybob/consilium/internal/services/judgment"
	"github.com/ternarybob/consilium/internal/services/scheduler"
	"github.com/ternarybob/consilium/internal/services/status"
	"github.com/ternarybob/consilium/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Services
	EventService     interfaces.EventService
	StatusService    *status.Service
	AnalystRegistry  interfaces.AnalystRegistry
	JudgmentService  *judgment.Service
	AdvisorService   interfaces.AdvisorService
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	AdvisoryHandler  *handlers.AdvisoryHandler
	WatchlistHandler *handlers.WatchlistHandler
	StatusHandler    *handlers.StatusHandler
	WSHandler        *handlers.WebSocketHandler
	EventSubscriber  *handlers.EventSubscriber

	wsWriter   *handlers.WebSocketWriter
	logChannel chan []arbormodels.LogEvent
	stopPump   context.CancelFunc
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event bus and WebSocket surface come up first so every later service
	// can publish and be observed from the moment it starts
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.Logger)
	app.EventSubscriber = handlers.NewEventSubscriber(app.WSHandler, app.EventService, app.Logger, &cfg.WebSocket)

	if err := app.initLogStreaming(); err != nil {
		// Log streaming to the UI is a convenience, not a dependency
		app.Logger.Warn().Err(err).Msg("WebSocket log streaming unavailable")
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.SchedulerService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start watchlist scheduler: %w", err)
	}

	app.WSHandler.StartStatusBroadcaster()

	logger.Info().
		Bool("watchlist_enabled", cfg.Watchlist.Enabled).
		Str("llm_provider", string(cfg.LLM.DefaultProvider)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initLogStreaming bridges arbor log output to WebSocket clients. The
// logger pushes event batches onto a channel; a pump goroutine feeds the
// filtering writer, which broadcasts whatever survives its level and
// pattern filters.
func (a *App) initLogStreaming() error {
	wsWriter, err := handlers.NewWebSocketWriter(a.WSHandler, arbormodels.WriterConfiguration{
		TimeFormat: "15:04:05",
	}, &a.Config.WebSocket)
	if err != nil {
		return err
	}
	a.wsWriter = wsWriter

	a.logChannel = make(chan []arbormodels.LogEvent, 100)
	a.Logger.SetChannel("websocket", a.logChannel)

	pumpCtx, cancel := context.WithCancel(context.Background())
	a.stopPump = cancel
	common.SafeGo(a.Logger, "websocket-log-pump", func() {
		for {
			select {
			case <-pumpCtx.Done():
				return
			case batch := <-a.logChannel:
				for i := range batch {
					data, err := json.Marshal(batch[i])
					if err != nil {
						continue
					}
					a.wsWriter.Write(data)
				}
			}
		}
	})

	return nil
}

// initServices wires the advisory pipeline in dependency order
func (a *App) initServices() error {
	a.StatusService = status.NewService(a.EventService, a.Logger)
	a.StatusService.SubscribeToAdvisoryEvents()

	registry, err := analysts.NewRegistryFromConfig(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to build analyst registry: %w", err)
	}
	a.AnalystRegistry = registry

	a.JudgmentService = judgment.NewService(a.Logger)

	a.AdvisorService = advisor.NewService(
		&a.Config.Advisor,
		a.AnalystRegistry,
		a.JudgmentService,
		a.EventService,
		a.StorageManager.AdvisoryStorage(),
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.Config, a.AdvisorService, a.EventService, a.Logger)

	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	return nil
}

// initHandlers creates the HTTP handler set
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.AdvisoryHandler = handlers.NewAdvisoryHandler(a.AdvisorService, a.StorageManager.AdvisoryStorage(), a.Logger)
	a.WatchlistHandler = handlers.NewWatchlistHandler(a.SchedulerService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.AnalystRegistry, a.StorageManager.AdvisoryStorage(), a.SchedulerService, a.Logger)
}

// Close shuts down components in reverse dependency order
func (a *App) Close() {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop watchlist scheduler")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.stopPump != nil {
		a.stopPump()
	}
	if a.wsWriter != nil {
		if err := a.wsWriter.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close WebSocket log writer")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage manager")
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
}
