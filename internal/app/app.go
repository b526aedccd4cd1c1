// -----------------------------------------------------------------------
// App - Service wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/panelops/internal/browser"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/executor"
	"github.com/ternarybob/panelops/internal/handlers"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/login"
	"github.com/ternarybob/panelops/internal/queue"
	"github.com/ternarybob/panelops/internal/services/events"
	badgerstore "github.com/ternarybob/panelops/internal/storage/badger"
)

// App owns every service and handler, wired once at startup
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	DB                *badgerstore.BadgerDB
	JobStorage        interfaces.JobStorage
	SessionStorage    interfaces.SessionStorage
	CredentialStorage interfaces.CredentialStorage
	TargetStorage     interfaces.TargetStorage
	AuditStorage      interfaces.AuditStorage
	CaptchaStorage    interfaces.CaptchaStorage

	// Core services
	EventService   interfaces.EventService
	BrowserCache   *browser.Cache
	CaptchaSolver  interfaces.CaptchaSolver
	LoginMachine   interfaces.LoginService
	Registry       *executor.Registry
	QueueService   *queue.Service
	SessionSweeper *cron.Cron

	// Handlers
	WSHandler     *handlers.WebSocketHandler
	WSWriter      *handlers.WebSocketWriter
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
}

// New wires the application. Gemini captcha solving is enabled only when a
// key is configured; targets without captchas work without one.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initServices(); err != nil {
		cancel()
		a.DB.Close()
		return nil, err
	}
	a.initHandlers()
	a.initMaintenance()

	logger.Info().Msg("Application initialized")
	return a, nil
}

func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.DB = db
	a.JobStorage = badgerstore.NewJobStorage(db, a.Logger)
	a.SessionStorage = badgerstore.NewSessionStorage(db, a.Logger)
	a.CredentialStorage = badgerstore.NewCredentialStorage(db, a.Logger)
	a.TargetStorage = badgerstore.NewTargetStorage(db, a.Logger)
	a.AuditStorage = badgerstore.NewAuditStorage(db, a.Logger)
	a.CaptchaStorage = badgerstore.NewCaptchaStorage(db, a.Logger)
	return nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	a.BrowserCache = browser.NewCache(a.Config.Browser, a.Logger)

	if a.Config.Gemini.APIKey != "" {
		solver, err := login.NewGeminiSolver(a.ctx, &a.Config.Gemini, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize captcha solver: %w", err)
		}
		a.CaptchaSolver = solver
	} else {
		a.Logger.Warn().Msg("No Gemini API key configured - captcha targets will fail to login")
	}

	a.LoginMachine = login.NewMachine(
		&a.Config.Login,
		a.CaptchaSolver,
		a.SessionStorage,
		a.CaptchaStorage,
		a.Logger,
	)

	stepTimeout, err := time.ParseDuration(a.Config.Login.NavigationTimeout)
	if err != nil {
		stepTimeout = 20 * time.Second
	}

	a.Registry = executor.NewRegistry(a.Logger)
	a.Registry.Register(executor.NewLoginExecutor(a.LoginMachine, a.CredentialStorage, a.TargetStorage, a.Logger))
	a.Registry.Register(executor.NewBalanceQueryExecutor(a.TargetStorage, stepTimeout, a.Logger))

	a.QueueService = queue.NewService(
		&a.Config.Queue,
		a.JobStorage,
		a.CredentialStorage,
		a.TargetStorage,
		a.AuditStorage,
		a.EventService,
		a.BrowserCache,
		browser.NewScreenshotter(0),
		a.Registry,
		a.LoginMachine,
		a.Logger,
	)

	return nil
}

func (a *App) initHandlers() {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, &a.Config.WebSocket, a.Logger)
	a.WSHandler.StartHeartbeat(a.ctx, 30*time.Second)

	// Relay service logs to connected viewers through the global writer
	// registry, the same registry the console and file writers live in
	wsWriter, err := handlers.NewWebSocketWriter(a.WSHandler, arbormodels.WriterConfiguration{
		TimeFormat: "15:04:05",
	}, &a.Config.WebSocket)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to initialize websocket log writer")
	} else {
		arbor.RegisterWriter("websocket", wsWriter)
		a.WSWriter = wsWriter
	}

	a.JobHandler = handlers.NewJobHandler(a.QueueService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.QueueService, a.BrowserCache, a.WSHandler, a.Logger)
}

// initMaintenance schedules the session expiry sweep and idle browser eviction
func (a *App) initMaintenance() {
	a.SessionSweeper = cron.New()

	schedule := a.Config.Sessions.SweepSchedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	_, err := a.SessionSweeper.AddFunc(schedule, func() {
		swept, err := a.SessionStorage.SweepExpired(a.ctx, time.Now())
		if err != nil {
			a.Logger.Error().Err(err).Msg("Session expiry sweep failed")
			return
		}
		if swept > 0 {
			a.Logger.Info().Int("swept", swept).Msg("Expired sessions deactivated")
		}
		a.BrowserCache.EvictIdle()
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("schedule", schedule).Msg("Failed to schedule session sweep")
		return
	}

	a.SessionSweeper.Start()
	a.Logger.Info().Str("schedule", schedule).Msg("Session maintenance scheduled")
}

// Close shuts everything down in dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.SessionSweeper != nil {
		a.SessionSweeper.Stop()
	}

	a.cancelCtx()

	if a.QueueService != nil {
		if err := a.QueueService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Queue service stop reported error")
		}
	}

	if a.BrowserCache != nil {
		a.BrowserCache.Shutdown()
	}

	if a.EventService != nil {
		a.EventService.Close()
	}

	if a.WSWriter != nil {
		if err := a.WSWriter.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Websocket log writer close reported error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close reported error")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
