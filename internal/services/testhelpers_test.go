package services

import (
	"context"
	"testing"

	"appusage/internal/database"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/repository"
	"appusage/internal/testutils"
)

// testEnv bundles the collaborators most service tests need: an in-memory
// repository and an aggregator over it, plus a capture logger.
type testEnv struct {
	dbService  database.Service
	repo       repository.UsageRepository
	aggregator *HourlyAggregator
	logger     *testutils.CaptureLogger
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testutils.NewCaptureLogger()
	dbService := database.NewSQLiteService(logging.NewDefaultLogger())

	ctx := context.Background()
	if err := dbService.Connect(ctx, database.TestConfig()); err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := dbService.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		dbService.Close()
	})

	repo := repository.NewSQLiteRepository(dbService, logger)
	return &testEnv{
		dbService:  dbService,
		repo:       repo,
		aggregator: NewHourlyAggregator(repo, logger),
		logger:     logger,
	}
}
