package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/types"
)

// ReplaceHourlyStats atomically swaps the pre-aggregated buckets for one date:
// every existing row for the date is deleted and the supplied rows inserted in
// a single transaction. Re-running aggregation for a date is therefore
// idempotent. Rows whose Date differs from the date argument are rejected.
func (r *SQLiteRepository) ReplaceHourlyStats(ctx context.Context, date string, stats []types.HourlyStat) error {
	start := time.Now()

	if date == "" {
		return repoerrors.HandleValidationError("ReplaceHourlyStats", "date", date, "empty date")
	}
	for i, st := range stats {
		if st.Date != date {
			return repoerrors.HandleValidationError("ReplaceHourlyStats", "date", st.Date,
				fmt.Sprintf("row %d belongs to a different date than %s", i, date))
		}
		if st.Hour < 0 || st.Hour > 23 {
			return repoerrors.HandleValidationError("ReplaceHourlyStats", "hour",
				fmt.Sprintf("%d", st.Hour), fmt.Sprintf("row %d hour out of range", i))
		}
		if st.TotalDuration < 0 {
			return repoerrors.HandleValidationError("ReplaceHourlyStats", "totalDuration",
				fmt.Sprintf("%d", st.TotalDuration), fmt.Sprintf("row %d negative duration", i))
		}
	}

	err := r.WithTransaction(ctx, func(repo UsageRepository) error {
		txRepo := repo.(*SQLiteRepository)

		if _, err := txRepo.q.ExecContext(ctx, `DELETE FROM hourly_stats WHERE date = ?`, date); err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("ReplaceHourlyStats.Delete", err, r.classifyError(err), map[string]string{
				"date": date,
			})
			r.logOpError(repoErr, "ReplaceHourlyStats.Delete", map[string]interface{}{"date": date})
			return repoErr
		}

		for _, st := range stats {
			_, err := txRepo.q.ExecContext(ctx,
				`INSERT INTO hourly_stats (date, hour, package_name, app_name, total_duration, usage_count, icon)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				st.Date, st.Hour, st.PackageName, st.AppName, st.TotalDuration, st.UsageCount, nullStringFromString(st.Icon))
			if err != nil {
				repoErr := repoerrors.NewRepositoryErrorWithContext("ReplaceHourlyStats.Insert", err, r.classifyError(err), map[string]string{
					"date":         st.Date,
					"hour":         fmt.Sprintf("%d", st.Hour),
					"package_name": st.PackageName,
				})
				r.logOpError(repoErr, "ReplaceHourlyStats.Insert", map[string]interface{}{"date": st.Date})
				return repoErr
			}
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "ReplaceHourlyStats", time.Since(start), map[string]interface{}{
			"date":      date,
			"row_count": len(stats),
		})
	}

	return err
}

// GetHourlyStatsByDate retrieves all bucket rows for one date, ordered by hour
// then descending duration. Missing hours simply have no rows.
func (r *SQLiteRepository) GetHourlyStatsByDate(ctx context.Context, date string) ([]types.HourlyStat, error) {
	start := time.Now()

	if date == "" {
		return nil, repoerrors.HandleValidationError("GetHourlyStatsByDate", "date", date, "empty date")
	}

	var result []types.HourlyStat
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT date, hour, package_name, app_name, total_duration, usage_count, icon
			 FROM hourly_stats WHERE date = ? ORDER BY hour ASC, total_duration DESC`, date)
		if err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("GetHourlyStatsByDate", err, r.classifyError(err), map[string]string{
				"date": date,
			})
			r.logOpError(repoErr, "GetHourlyStatsByDate", map[string]interface{}{"date": date})
			return repoErr
		}
		defer rows.Close()

		result, err = scanHourlyStats(rows)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetHourlyStatsByDate", err, r.classifyError(err))
			r.logOpError(repoErr, "GetHourlyStatsByDate", map[string]interface{}{"date": date})
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetHourlyStatsByDate", time.Since(start), map[string]interface{}{
			"date":      date,
			"row_count": len(result),
		})
	}

	return result, err
}

// GetHourlyStatsByDateRange retrieves bucket rows for startDate <= date <= endDate.
// Date keys sort lexicographically, so string comparison is correct.
func (r *SQLiteRepository) GetHourlyStatsByDateRange(ctx context.Context, startDate, endDate string) ([]types.HourlyStat, error) {
	start := time.Now()

	if startDate == "" || endDate == "" {
		return nil, repoerrors.HandleValidationError("GetHourlyStatsByDateRange", "date", startDate+".."+endDate, "empty date bound")
	}
	if endDate < startDate {
		return nil, repoerrors.HandleValidationError("GetHourlyStatsByDateRange", "endDate", endDate, "end date before start date")
	}

	var result []types.HourlyStat
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx,
			`SELECT date, hour, package_name, app_name, total_duration, usage_count, icon
			 FROM hourly_stats WHERE date >= ? AND date <= ? ORDER BY date ASC, hour ASC`,
			startDate, endDate)
		if err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("GetHourlyStatsByDateRange", err, r.classifyError(err), map[string]string{
				"start_date": startDate,
				"end_date":   endDate,
			})
			r.logOpError(repoErr, "GetHourlyStatsByDateRange", nil)
			return repoErr
		}
		defer rows.Close()

		result, err = scanHourlyStats(rows)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetHourlyStatsByDateRange", err, r.classifyError(err))
			r.logOpError(repoErr, "GetHourlyStatsByDateRange", nil)
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetHourlyStatsByDateRange", time.Since(start), map[string]interface{}{
			"start_date": startDate,
			"end_date":   endDate,
			"row_count":  len(result),
		})
	}

	return result, err
}

// DeleteHourlyStatsBefore purges bucket rows with date < cutoffDate and
// returns the number of rows removed.
func (r *SQLiteRepository) DeleteHourlyStatsBefore(ctx context.Context, cutoffDate string) (int64, error) {
	start := time.Now()

	if cutoffDate == "" {
		return 0, repoerrors.HandleValidationError("DeleteHourlyStatsBefore", "cutoffDate", cutoffDate, "empty date")
	}

	var deleted int64
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		res, err := r.q.ExecContext(ctx, `DELETE FROM hourly_stats WHERE date < ?`, cutoffDate)
		if err != nil {
			repoErr := repoerrors.NewRepositoryErrorWithContext("DeleteHourlyStatsBefore", err, r.classifyError(err), map[string]string{
				"cutoff_date": cutoffDate,
			})
			r.logOpError(repoErr, "DeleteHourlyStatsBefore", nil)
			return repoErr
		}

		deleted, err = res.RowsAffected()
		if err != nil {
			return repoerrors.NewRepositoryError("DeleteHourlyStatsBefore", err, r.classifyError(err))
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "DeleteHourlyStatsBefore", time.Since(start), map[string]interface{}{
			"cutoff_date":   cutoffDate,
			"deleted_count": deleted,
		})
	}

	return deleted, err
}

func scanHourlyStats(rows *sql.Rows) ([]types.HourlyStat, error) {
	var stats []types.HourlyStat
	for rows.Next() {
		var st types.HourlyStat
		var icon sql.NullString
		if err := rows.Scan(&st.Date, &st.Hour, &st.PackageName, &st.AppName, &st.TotalDuration, &st.UsageCount, &icon); err != nil {
			return nil, err
		}
		st.Icon = stringFromNullString(icon)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
