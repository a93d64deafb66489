package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/handlers"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/jobs"
	"github.com/ternarybob/streamtrack/internal/jobs/state"
	"github.com/ternarybob/streamtrack/internal/services/events"
	"github.com/ternarybob/streamtrack/internal/services/retention"
	"github.com/ternarybob/streamtrack/internal/storage"
)

const restoreTimeout = 30 * time.Second

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Durable job store (resilient wrapper around badger or redis)
	Store interfaces.JobStore

	// Event-driven services
	EventService interfaces.EventService
	Broadcaster  *events.Broadcaster

	// Progress aggregation
	Aggregator *jobs.Aggregator

	// Retention of terminal records
	Sweeper *retention.Sweeper

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	JobHandler    *handlers.JobHandler
	StreamHandler *handlers.StreamHandler
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

	if err := app.initServices(); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Bool("retention_enabled", cfg.Retention.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the configured job store
func (a *App) initDatabase() error {
	store, err := storage.NewJobStore(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.Store = store
	return nil
}

// initServices wires the event service, broadcaster, aggregator and sweeper,
// then resumes non-terminal jobs from the store
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe lifecycle logger: %w", err)
	}

	a.Broadcaster = events.NewBroadcaster(a.Config.Progress.ObserverBuffer, a.Logger)

	weights := state.PhaseWeights{
		Transfer:    a.Config.Progress.TransferWeight,
		Encoding:    a.Config.Progress.EncodingWeight,
		CloudUpload: a.Config.Progress.CloudUploadWeight,
	}
	a.Aggregator = jobs.NewAggregator(
		jobs.WithLogger(a.Logger),
		jobs.WithStore(a.Store),
		jobs.WithEventService(a.EventService),
		jobs.WithBroadcaster(a.Broadcaster),
		jobs.WithPhaseWeights(weights),
		jobs.WithPersistInterval(common.Duration(a.Config.Progress.PersistInterval, time.Second)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	restored, err := a.Aggregator.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore active jobs: %w", err)
	}
	a.Logger.Info().Int("restored", restored).Msg("Active jobs restored from store")

	aggregator := a.Aggregator
	common.RegisterCrashDetail("tracked_jobs", func() string { return strconv.Itoa(aggregator.TrackedCount()) })
	common.RegisterCrashDetail("storage", func() string { return a.Config.Storage.Type })

	if a.Config.Retention.Enabled {
		a.Sweeper = retention.NewSweeper(a.Store, common.Duration(a.Config.Retention.MaxAge, 7*24*time.Hour), a.Logger)
		if err := a.Sweeper.Start(a.Config.Retention.Schedule); err != nil {
			a.Sweeper = nil
			return fmt.Errorf("failed to start retention sweeper: %w", err)
		}
	}

	return nil
}

// initHandlers creates the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Aggregator, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Aggregator, a.Logger)
	a.StreamHandler = handlers.NewStreamHandler(a.Aggregator, a.Logger, &a.Config.WebSocket)
}

// Close stops background work, flushes pending job writes and closes the
// store last
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	if a.Aggregator != nil {
		if err := a.Aggregator.Close(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush aggregator")
			errs = append(errs, err)
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
			errs = append(errs, err)
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close job store")
			errs = append(errs, err)
		} else {
			a.Logger.Info().Msg("Job store closed")
		}
	}

	return errors.Join(errs...)
}
