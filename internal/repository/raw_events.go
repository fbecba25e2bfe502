package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/types"
)

// SaveRawEvents persists a batch of provider events append-only. Events are
// inserted in chunks inside a single transaction; the returned count is the
// number of rows written. An empty slice is a no-op.
func (r *SQLiteRepository) SaveRawEvents(ctx context.Context, events []types.RawEvent) (int, error) {
	start := time.Now()

	if len(events) == 0 {
		return 0, nil
	}

	for i, ev := range events {
		if ev.PackageName == "" {
			return 0, repoerrors.HandleValidationError("SaveRawEvents", "packageName", "", fmt.Sprintf("empty package name at index %d", i))
		}
		if ev.EventType != types.EventResumed && ev.EventType != types.EventPaused {
			return 0, repoerrors.HandleValidationError("SaveRawEvents", "eventType", string(ev.EventType), fmt.Sprintf("unknown event type at index %d", i))
		}
	}

	saved := 0
	err := r.WithTransaction(ctx, func(repo UsageRepository) error {
		txRepo := repo.(*SQLiteRepository)

		saved = 0
		batchSize := r.batchConfig.DefaultBatchSize
		for i := 0; i < len(events); i += batchSize {
			end := min(i+batchSize, len(events))
			if err := txRepo.insertRawEventChunk(ctx, events[i:end]); err != nil {
				return err
			}
			saved += end - i
		}
		return nil
	})
	if err != nil {
		saved = 0
	}

	if err == nil {
		logging.LogOperation(r.logger, "SaveRawEvents", time.Since(start), map[string]interface{}{
			"event_count": saved,
		})
	}

	return saved, err
}

func (r *SQLiteRepository) insertRawEventChunk(ctx context.Context, chunk []types.RawEvent) error {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString("INSERT INTO raw_events (package_name, class_name, timestamp, event_type, date) VALUES ")
	for i, ev := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")

		date := ev.Date
		if date == "" {
			date = types.DateOf(ev.Timestamp)
		}
		args = append(args, ev.PackageName, nullStringFromString(ev.ClassName), ev.Timestamp, string(ev.EventType), date)
	}

	if _, err := r.q.ExecContext(ctx, sb.String(), args...); err != nil {
		repoErr := repoerrors.NewRepositoryErrorWithContext("SaveRawEvents", err, r.classifyError(err), map[string]string{
			"chunk_size": fmt.Sprintf("%d", len(chunk)),
		})
		r.logOpError(repoErr, "SaveRawEvents", map[string]interface{}{
			"chunk_size": len(chunk),
		})
		return repoErr
	}
	return nil
}

// GetRawEventsByDate retrieves all events for a local date key, ordered by
// timestamp ascending.
func (r *SQLiteRepository) GetRawEventsByDate(ctx context.Context, date string) ([]types.RawEvent, error) {
	start := time.Now()

	if date == "" {
		return nil, repoerrors.HandleValidationError("GetRawEventsByDate", "date", date, "empty date")
	}

	var result []types.RawEvent
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT id, package_name, class_name, timestamp, event_type, date
			 FROM raw_events WHERE date = ? ORDER BY timestamp ASC`, date)
		if err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("GetRawEventsByDate", err, r.classifyError(err), map[string]string{
				"date": date,
			})
			r.logOpError(repoErr, "GetRawEventsByDate", map[string]interface{}{"date": date})
			return repoErr
		}
		defer rows.Close()

		result, err = scanRawEvents(rows)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetRawEventsByDate", err, r.classifyError(err))
			r.logOpError(repoErr, "GetRawEventsByDate", map[string]interface{}{"date": date})
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetRawEventsByDate", time.Since(start), map[string]interface{}{
			"date":        date,
			"event_count": len(result),
		})
	}

	return result, err
}

// GetRawEventsByTimeRange retrieves events with startTime <= timestamp < endTime,
// ordered by timestamp ascending.
func (r *SQLiteRepository) GetRawEventsByTimeRange(ctx context.Context, startTime, endTime int64) ([]types.RawEvent, error) {
	start := time.Now()

	if endTime < startTime {
		return nil, repoerrors.HandleValidationError("GetRawEventsByTimeRange", "endTime",
			fmt.Sprintf("%d", endTime), "end time before start time")
	}

	var result []types.RawEvent
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT id, package_name, class_name, timestamp, event_type, date
			 FROM raw_events WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC`,
			startTime, endTime)
		if err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("GetRawEventsByTimeRange", err, r.classifyError(err), map[string]string{
				"start_time": fmt.Sprintf("%d", startTime),
				"end_time":   fmt.Sprintf("%d", endTime),
			})
			r.logOpError(repoErr, "GetRawEventsByTimeRange", nil)
			return repoErr
		}
		defer rows.Close()

		result, err = scanRawEvents(rows)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetRawEventsByTimeRange", err, r.classifyError(err))
			r.logOpError(repoErr, "GetRawEventsByTimeRange", nil)
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetRawEventsByTimeRange", time.Since(start), map[string]interface{}{
			"event_count": len(result),
		})
	}

	return result, err
}

// DeleteRawEventsBefore purges events older than the cutoff timestamp and
// returns the number of rows removed. Used by retention maintenance.
func (r *SQLiteRepository) DeleteRawEventsBefore(ctx context.Context, cutoff int64) (int64, error) {
	start := time.Now()

	var deleted int64
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		res, err := r.q.ExecContext(ctx, `DELETE FROM raw_events WHERE timestamp < ?`, cutoff)
		if err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("DeleteRawEventsBefore", err, r.classifyError(err), map[string]string{
				"cutoff": fmt.Sprintf("%d", cutoff),
			})
			r.logOpError(repoErr, "DeleteRawEventsBefore", nil)
			return repoErr
		}

		deleted, err = res.RowsAffected()
		if err != nil {
			return repoerrors.NewRepositoryError("DeleteRawEventsBefore", err, r.classifyError(err))
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "DeleteRawEventsBefore", time.Since(start), map[string]interface{}{
			"deleted_count": deleted,
		})
	}

	return deleted, err
}

func scanRawEvents(rows *sql.Rows) ([]types.RawEvent, error) {
	var events []types.RawEvent
	for rows.Next() {
		var ev types.RawEvent
		var eventType string
		var className sql.NullString
		if err := rows.Scan(&ev.ID, &ev.PackageName, &className, &ev.Timestamp, &eventType, &ev.Date); err != nil {
			return nil, err
		}
		ev.ClassName = stringFromNullString(className)
		ev.EventType = types.EventType(eventType)
		events = append(events, ev)
	}
	return events, rows.Err()
}
