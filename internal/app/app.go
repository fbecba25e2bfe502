package app

import (
	"context"
	"fmt"

	"appusage/internal/database"
	"appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/provider"
	"appusage/internal/repository"
	"appusage/internal/services"
)

// App owns the wired engine: storage, repository, and the services built over
// them. Construction order is logger, database, migrations, repository,
// services; Close tears down in reverse.
type App struct {
	Config      *Config
	Logger      logging.Logger
	DBService   database.Service
	Repository  repository.UsageRepository
	Coordinator *services.SyncCoordinator
	Queries     *services.QueryService
	Maintenance *services.MaintenanceService
}

// New builds and connects the engine against the given providers.
func New(ctx context.Context, config *Config, events provider.EventProvider,
	directory provider.AppDirectoryProvider, logger logging.Logger) (*App, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Route retry-loop messages through the structured logger.
	errors.SetRetryLogger(errors.NewLoggerBridge(logger))

	dbService := database.NewSQLiteService(logger)
	if err := dbService.Connect(ctx, config.Database); err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if config.Database.AutoMigrate {
		if err := dbService.Migrate(ctx); err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	repo := repository.NewSQLiteRepository(dbService, logger)
	aggregator := services.NewHourlyAggregator(repo, logger)
	reconstructor := services.NewSessionReconstructor(config.Sync.MinSessionDuration, logger)

	return &App{
		Config:      config,
		Logger:      logger,
		DBService:   dbService,
		Repository:  repo,
		Coordinator: services.NewSyncCoordinator(events, directory, repo, aggregator, config.Sync, logger),
		Queries:     services.NewQueryService(repo, aggregator, reconstructor, events, logger),
		Maintenance: services.NewMaintenanceService(repo, dbService, config.Retention, logger),
	}, nil
}

// Close releases the engine's resources.
func (a *App) Close() error {
	if a.DBService != nil {
		return a.DBService.Close()
	}
	return nil
}
