package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
)

// syncStateBootstrapWindow is how far back the first-ever sync reaches when no
// checkpoint row exists yet.
const syncStateBootstrapWindow = 24 * time.Hour

// GetLastSyncTime returns the ingestion checkpoint in unix milliseconds. On
// first read, when no checkpoint has been persisted, it seeds and returns a
// checkpoint 24 hours in the past so the initial cycle backfills recent
// history instead of the device's whole event log.
func (r *SQLiteRepository) GetLastSyncTime(ctx context.Context) (int64, error) {
	start := time.Now()

	var lastSync int64
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		row := r.q.QueryRowContext(ctx, `SELECT last_sync FROM sync_state ORDER BY id DESC LIMIT 1`)
		err := row.Scan(&lastSync)
		if errors.Is(err, sql.ErrNoRows) {
			seed := time.Now().Add(-syncStateBootstrapWindow).UnixMilli()
			if _, insErr := r.q.ExecContext(ctx, `INSERT INTO sync_state (last_sync) VALUES (?)`, seed); insErr != nil {
				repoErr := repoerrors.NewRepositoryError("GetLastSyncTime.Seed", insErr, r.classifyError(insErr))
				r.logOpError(repoErr, "GetLastSyncTime.Seed", nil)
				return repoErr
			}
			lastSync = seed
			r.logger.Info("Seeded initial sync checkpoint", "last_sync", seed)
			return nil
		}
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetLastSyncTime", err, r.classifyError(err))
			r.logOpError(repoErr, "GetLastSyncTime", nil)
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetLastSyncTime", time.Since(start), map[string]interface{}{
			"last_sync": lastSync,
		})
	}

	return lastSync, err
}

// SaveLastSyncTime advances the ingestion checkpoint. The checkpoint only
// moves forward; an attempt to rewind it is rejected with a validation error
// so a stale cycle can never undo a newer one's progress.
func (r *SQLiteRepository) SaveLastSyncTime(ctx context.Context, syncTime int64) error {
	start := time.Now()

	if syncTime <= 0 {
		return repoerrors.HandleValidationError("SaveLastSyncTime", "syncTime",
			fmt.Sprintf("%d", syncTime), "checkpoint must be positive")
	}

	err := r.WithTransaction(ctx, func(repo UsageRepository) error {
		txRepo := repo.(*SQLiteRepository)

		var current int64
		row := txRepo.q.QueryRowContext(ctx, `SELECT last_sync FROM sync_state ORDER BY id DESC LIMIT 1`)
		err := row.Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// No checkpoint yet; accept the first save.
		case err != nil:
			repoErr := repoerrors.NewRepositoryError("SaveLastSyncTime", err, r.classifyError(err))
			r.logOpError(repoErr, "SaveLastSyncTime", nil)
			return repoErr
		case syncTime < current:
			return repoerrors.HandleValidationError("SaveLastSyncTime", "syncTime",
				fmt.Sprintf("%d", syncTime), fmt.Sprintf("would rewind checkpoint from %d", current))
		}

		if _, err := txRepo.q.ExecContext(ctx, `DELETE FROM sync_state`); err != nil {
			repoErr := repoerrors.NewRepositoryError("SaveLastSyncTime", err, r.classifyError(err))
			r.logOpError(repoErr, "SaveLastSyncTime", nil)
			return repoErr
		}
		if _, err := txRepo.q.ExecContext(ctx, `INSERT INTO sync_state (last_sync) VALUES (?)`, syncTime); err != nil {
			repoErr := repoerrors.NewRepositoryError("SaveLastSyncTime", err, r.classifyError(err))
			r.logOpError(repoErr, "SaveLastSyncTime", nil)
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "SaveLastSyncTime", time.Since(start), map[string]interface{}{
			"last_sync": syncTime,
		})
	}

	return err
}
