package repository

import (
	"context"
	"database/sql"

	"appusage/internal/database"
	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
)

// dbtx is the subset of *sql.DB and *sql.Tx the repository queries run
// against. Methods operate on q so the same code serves both the pooled
// connection and a transaction scope.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// BatchConfig holds configuration for batch operations
type BatchConfig struct {
	DefaultBatchSize int
	MaxBatchSize     int
}

// DefaultBatchConfig returns sensible defaults for batch operations
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		DefaultBatchSize: 100,
		MaxBatchSize:     1000,
	}
}

// SQLiteRepository implements the UsageRepository interface using SQLite
type SQLiteRepository struct {
	db          *sql.DB
	q           dbtx
	dbService   database.Service
	retryConfig *repoerrors.RetryConfig
	batchConfig *BatchConfig
	logger      logging.Logger
	inTx        bool
}

// NewSQLiteRepository creates a new SQLite repository instance
func NewSQLiteRepository(dbService database.Service, logger logging.Logger) *SQLiteRepository {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	db := dbService.DB()
	return &SQLiteRepository{
		db:          db,
		q:           db,
		dbService:   dbService,
		retryConfig: repoerrors.DefaultRetryConfig(),
		batchConfig: DefaultBatchConfig(),
		logger:      logger,
	}
}

// NewSQLiteRepositoryWithConfig creates a new SQLite repository instance with custom configuration
func NewSQLiteRepositoryWithConfig(dbService database.Service, retryConfig *repoerrors.RetryConfig, batchConfig *BatchConfig, logger logging.Logger) *SQLiteRepository {
	if retryConfig == nil {
		retryConfig = repoerrors.DefaultRetryConfig()
	}
	if batchConfig == nil {
		batchConfig = DefaultBatchConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	db := dbService.DB()
	return &SQLiteRepository{
		db:          db,
		q:           db,
		dbService:   dbService,
		retryConfig: retryConfig,
		batchConfig: batchConfig,
		logger:      logger,
	}
}

// classifyError classifies database errors into repository error codes
func (r *SQLiteRepository) classifyError(err error) repoerrors.ErrorCode {
	return repoerrors.ClassifyError(err)
}

// logOpError routes a classified error to the right log level: retryable
// failures stay at debug (the retry wrapper will report if they stick),
// everything else goes through the structured error path.
func (r *SQLiteRepository) logOpError(repoErr *repoerrors.RepositoryError, op string, context map[string]interface{}) {
	if repoErr.IsRetryable() {
		r.logger.Debug("Retryable error in "+op, "error", repoErr.Err)
	} else {
		logging.LogError(r.logger, repoErr, op, context)
	}
}
