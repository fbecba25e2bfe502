package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/types"
)

// SyncInstalledApps reconciles the persisted directory against the
// provider-reported app list in a single transaction:
//   - packages present in both are updated in place (and resurrected if
//     previously tombstoned),
//   - packages no longer reported are tombstoned, not deleted, so historical
//     rows keep a resolvable reference,
//   - new packages are inserted.
func (r *SQLiteRepository) SyncInstalledApps(ctx context.Context, apps []types.AppInfo) (*types.DirectorySyncResult, error) {
	start := time.Now()

	for _, app := range apps {
		if app.PackageName == "" {
			return nil, repoerrors.HandleValidationError("SyncInstalledApps", "packageName", "", "empty package name in provider list")
		}
	}

	now := time.Now().UnixMilli()
	result := &types.DirectorySyncResult{}

	err := r.WithTransaction(ctx, func(repo UsageRepository) error {
		txRepo := repo.(*SQLiteRepository)
		*result = types.DirectorySyncResult{}

		existing, err := txRepo.loadDirectory(ctx)
		if err != nil {
			return err
		}

		reported := make(map[string]bool, len(apps))
		for _, app := range apps {
			reported[app.PackageName] = true

			prev, known := existing[app.PackageName]
			switch {
			case !known:
				_, err = txRepo.q.ExecContext(ctx,
					`INSERT INTO installed_apps
					 (package_name, app_name, version_name, version_code, first_install_time, last_update_time, is_system_app, icon, is_deleted, last_sync_time)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
					app.PackageName, app.AppName, app.VersionName, app.VersionCode,
					app.FirstInstallTime, app.LastUpdateTime, app.IsSystemApp,
					nullStringFromString(app.Icon), now)
				if err == nil {
					result.Inserted++
				}
			default:
				_, err = txRepo.q.ExecContext(ctx,
					`UPDATE installed_apps SET
					 app_name = ?, version_name = ?, version_code = ?, first_install_time = ?,
					 last_update_time = ?, is_system_app = ?, icon = ?, is_deleted = 0, last_sync_time = ?
					 WHERE package_name = ?`,
					app.AppName, app.VersionName, app.VersionCode, app.FirstInstallTime,
					app.LastUpdateTime, app.IsSystemApp, nullStringFromString(app.Icon), now,
					app.PackageName)
				if err == nil {
					if prev.IsDeleted {
						result.Resurrected++
					} else {
						result.Updated++
					}
				}
			}
			if err != nil {
				repoErr := repoerrors.NewRepositoryErrorWithContext("SyncInstalledApps", err, r.classifyError(err), map[string]string{
					"package_name": app.PackageName,
				})
				r.logOpError(repoErr, "SyncInstalledApps", map[string]interface{}{"package_name": app.PackageName})
				return repoErr
			}
		}

		for pkg, prev := range existing {
			if reported[pkg] || prev.IsDeleted {
				continue
			}
			_, err := txRepo.q.ExecContext(ctx,
				`UPDATE installed_apps SET is_deleted = 1, last_sync_time = ? WHERE package_name = ?`,
				now, pkg)
			if err != nil {
				repoErr := repoerrors.NewRepositoryErrorWithContext("SyncInstalledApps.Tombstone", err, r.classifyError(err), map[string]string{
					"package_name": pkg,
				})
				r.logOpError(repoErr, "SyncInstalledApps.Tombstone", map[string]interface{}{"package_name": pkg})
				return repoErr
			}
			result.Tombstoned++
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logging.LogOperation(r.logger, "SyncInstalledApps", time.Since(start), map[string]interface{}{
		"inserted":    result.Inserted,
		"updated":     result.Updated,
		"resurrected": result.Resurrected,
		"tombstoned":  result.Tombstoned,
	})

	return result, nil
}

// loadDirectory reads the full directory keyed by package name, tombstones
// included. Used by the reconciliation diff.
func (r *SQLiteRepository) loadDirectory(ctx context.Context) (map[string]types.InstalledApp, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, package_name, app_name, version_name, version_code, first_install_time,
		        last_update_time, is_system_app, icon, is_deleted, last_sync_time
		 FROM installed_apps`)
	if err != nil {
		repoErr := repoerrors.NewRepositoryError("SyncInstalledApps.Load", err, r.classifyError(err))
		r.logOpError(repoErr, "SyncInstalledApps.Load", nil)
		return nil, repoErr
	}
	defer rows.Close()

	apps, err := scanInstalledApps(rows)
	if err != nil {
		repoErr := repoerrors.NewRepositoryError("SyncInstalledApps.Load", err, r.classifyError(err))
		r.logOpError(repoErr, "SyncInstalledApps.Load", nil)
		return nil, repoErr
	}

	byPackage := make(map[string]types.InstalledApp, len(apps))
	for _, app := range apps {
		byPackage[app.PackageName] = app
	}
	return byPackage, nil
}

// GetInstalledApps retrieves directory records ordered by app name. Tombstoned
// rows are excluded unless includeDeleted is set.
func (r *SQLiteRepository) GetInstalledApps(ctx context.Context, includeDeleted bool) ([]types.InstalledApp, error) {
	start := time.Now()

	query := `SELECT id, package_name, app_name, version_name, version_code, first_install_time,
	                 last_update_time, is_system_app, icon, is_deleted, last_sync_time
	          FROM installed_apps`
	if !includeDeleted {
		query += ` WHERE is_deleted = 0`
	}
	query += ` ORDER BY app_name COLLATE NOCASE ASC`

	var result []types.InstalledApp
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		rows, err := r.q.QueryContext(ctx, query)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetInstalledApps", err, r.classifyError(err))
			r.logOpError(repoErr, "GetInstalledApps", nil)
			return repoErr
		}
		defer rows.Close()

		result, err = scanInstalledApps(rows)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("GetInstalledApps", err, r.classifyError(err))
			r.logOpError(repoErr, "GetInstalledApps", nil)
			return repoErr
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetInstalledApps", time.Since(start), map[string]interface{}{
			"app_count":       len(result),
			"include_deleted": includeDeleted,
		})
	}

	return result, err
}

// GetAppByPackageName retrieves one directory record, tombstoned or not.
// Returns a NotFound repository error when the package has never been seen.
func (r *SQLiteRepository) GetAppByPackageName(ctx context.Context, packageName string) (*types.InstalledApp, error) {
	start := time.Now()

	if packageName == "" {
		return nil, repoerrors.HandleValidationError("GetAppByPackageName", "packageName", packageName, "empty package name")
	}

	var result *types.InstalledApp
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		row := r.q.QueryRowContext(ctx,
			`SELECT id, package_name, app_name, version_name, version_code, first_install_time,
			        last_update_time, is_system_app, icon, is_deleted, last_sync_time
			 FROM installed_apps WHERE package_name = ?`, packageName)

		app, err := scanInstalledApp(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repoerrors.HandleNotFound("GetAppByPackageName", "installed_app", packageName)
			}
			repoErr := repoerrors.NewRepositoryErrorWithContext("GetAppByPackageName", err, r.classifyError(err), map[string]string{
				"package_name": packageName,
			})
			r.logOpError(repoErr, "GetAppByPackageName", map[string]interface{}{"package_name": packageName})
			return repoErr
		}

		result = app
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "GetAppByPackageName", time.Since(start), map[string]interface{}{
			"package_name": packageName,
		})
	}

	return result, err
}

// DeleteTombstonedAppsBefore removes tombstoned rows whose last sync is older
// than the cutoff. Retention maintenance only; live rows are never touched.
func (r *SQLiteRepository) DeleteTombstonedAppsBefore(ctx context.Context, cutoff int64) (int64, error) {
	start := time.Now()

	var deleted int64
	err := repoerrors.WithRetry(ctx, r.retryConfig, func() error {
		res, err := r.q.ExecContext(ctx,
			`DELETE FROM installed_apps WHERE is_deleted = 1 AND last_sync_time < ?`, cutoff)
		if err != nil {
			repoErr := repoerrors.NewRepositoryError("DeleteTombstonedAppsBefore", err, r.classifyError(err))
			r.logOpError(repoErr, "DeleteTombstonedAppsBefore", nil)
			return repoErr
		}

		deleted, err = res.RowsAffected()
		if err != nil {
			return repoerrors.NewRepositoryError("DeleteTombstonedAppsBefore", err, r.classifyError(err))
		}
		return nil
	})

	if err == nil {
		logging.LogOperation(r.logger, "DeleteTombstonedAppsBefore", time.Since(start), map[string]interface{}{
			"deleted_count": deleted,
		})
	}

	return deleted, err
}

func scanInstalledApps(rows *sql.Rows) ([]types.InstalledApp, error) {
	var apps []types.InstalledApp
	for rows.Next() {
		var app types.InstalledApp
		var icon sql.NullString
		if err := rows.Scan(&app.ID, &app.PackageName, &app.AppName, &app.VersionName, &app.VersionCode,
			&app.FirstInstallTime, &app.LastUpdateTime, &app.IsSystemApp, &icon, &app.IsDeleted, &app.LastSyncTime); err != nil {
			return nil, err
		}
		app.Icon = stringFromNullString(icon)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func scanInstalledApp(row *sql.Row) (*types.InstalledApp, error) {
	var app types.InstalledApp
	var icon sql.NullString
	if err := row.Scan(&app.ID, &app.PackageName, &app.AppName, &app.VersionName, &app.VersionCode,
		&app.FirstInstallTime, &app.LastUpdateTime, &app.IsSystemApp, &icon, &app.IsDeleted, &app.LastSyncTime); err != nil {
		return nil, err
	}
	app.Icon = stringFromNullString(icon)
	return &app, nil
}
