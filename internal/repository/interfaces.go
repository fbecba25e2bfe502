package repository

import (
	"context"

	"appusage/internal/types"
)

// UsageRepository defines the interface for usage data persistence operations
type UsageRepository interface {
	// Raw event operations
	SaveRawEvents(ctx context.Context, events []types.RawEvent) (int, error)
	GetRawEventsByDate(ctx context.Context, date string) ([]types.RawEvent, error)
	GetRawEventsByTimeRange(ctx context.Context, startTime, endTime int64) ([]types.RawEvent, error)
	DeleteRawEventsBefore(ctx context.Context, cutoff int64) (int64, error)

	// Hourly aggregate operations
	ReplaceHourlyStats(ctx context.Context, date string, stats []types.HourlyStat) error
	GetHourlyStatsByDate(ctx context.Context, date string) ([]types.HourlyStat, error)
	GetHourlyStatsByDateRange(ctx context.Context, startDate, endDate string) ([]types.HourlyStat, error)
	DeleteHourlyStatsBefore(ctx context.Context, cutoffDate string) (int64, error)

	// Installed app directory operations
	SyncInstalledApps(ctx context.Context, apps []types.AppInfo) (*types.DirectorySyncResult, error)
	GetInstalledApps(ctx context.Context, includeDeleted bool) ([]types.InstalledApp, error)
	GetAppByPackageName(ctx context.Context, packageName string) (*types.InstalledApp, error)
	DeleteTombstonedAppsBefore(ctx context.Context, cutoff int64) (int64, error)

	// Sync checkpoint operations
	GetLastSyncTime(ctx context.Context) (int64, error)
	SaveLastSyncTime(ctx context.Context, syncTime int64) error

	// Transaction support
	WithTransaction(ctx context.Context, fn func(repo UsageRepository) error) error
}
