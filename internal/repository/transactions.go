package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
)

// WithTransaction executes a function within a database transaction with retry logic
func (r *SQLiteRepository) WithTransaction(ctx context.Context, fn func(repo UsageRepository) error) error {
	if r.inTx {
		// Nested calls reuse the ambient transaction.
		return fn(r)
	}

	start := time.Now()

	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("WithTransaction.Begin", err, r.classifyError(err))
			r.logOpError(repoErr, "WithTransaction.Begin", nil)
			return repoErr
		}

		var originalErr error
		var committed bool
		defer func() {
			if !committed && tx != nil {
				if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
					r.logger.Debug("Failed to rollback transaction in WithTransaction",
						"rollback_error", rollbackErr,
						"original_error", originalErr)
				}
			}
		}()

		// Scope all queries made through fn to the transaction
		txRepo := &SQLiteRepository{
			db:          r.db,
			q:           tx,
			dbService:   r.dbService,
			retryConfig: r.retryConfig,
			batchConfig: r.batchConfig,
			logger:      r.logger,
			inTx:        true,
		}

		if err := fn(txRepo); err != nil {
			// The function should return proper repository errors; don't re-wrap
			originalErr = err
			r.logger.Debug("Transaction function failed", "error", err)
			return err
		}

		if err := tx.Commit(); err != nil {
			originalErr = err
			repoErr := repoerrors.NewRepositoryError("WithTransaction.Commit", err, r.classifyError(err))
			r.logOpError(repoErr, "WithTransaction.Commit", nil)
			return repoErr
		}
		committed = true

		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "WithTransaction", time.Since(start), nil)
	}

	return err
}
