package services

import (
	"context"
	"time"

	"appusage/internal/database"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/repository"
	"appusage/internal/types"
)

// RetentionConfig sets how long each store keeps data.
type RetentionConfig struct {
	// RawEventDays keeps raw events this many days back.
	RawEventDays int `json:"rawEventDays" yaml:"raw_event_days"`
	// HourlyStatDays keeps aggregate rows this many days back.
	HourlyStatDays int `json:"hourlyStatDays" yaml:"hourly_stat_days"`
	// TombstoneGraceDays keeps tombstoned directory rows this many days past
	// their last sync before purging.
	TombstoneGraceDays int `json:"tombstoneGraceDays" yaml:"tombstone_grace_days"`
}

// DefaultRetentionConfig returns the standard retention windows: 30 days of
// raw events, 90 days of hourly aggregates, 30 days of tombstone grace.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		RawEventDays:       30,
		HourlyStatDays:     90,
		TombstoneGraceDays: 30,
	}
}

// MaintenanceResult summarizes one retention pass.
type MaintenanceResult struct {
	RawEventsDeleted   int64         `json:"rawEventsDeleted"`
	HourlyStatsDeleted int64         `json:"hourlyStatsDeleted"`
	TombstonesDeleted  int64         `json:"tombstonesDeleted"`
	Optimized          bool          `json:"optimized"`
	Duration           time.Duration `json:"duration"`
}

// MaintenanceService runs the independent retention task: purge expired raw
// events, aggregates, and stale tombstones, then optimize the database. Each
// purge is idempotent; running maintenance twice in a row deletes nothing the
// second time.
type MaintenanceService struct {
	repo      repository.UsageRepository
	dbService database.Service
	config    *RetentionConfig
	logger    logging.Logger
	now       func() time.Time
}

// NewMaintenanceService wires a maintenance service. A nil config gets the
// default retention windows.
func NewMaintenanceService(repo repository.UsageRepository, dbService database.Service,
	config *RetentionConfig, logger logging.Logger) *MaintenanceService {
	if config == nil {
		config = DefaultRetentionConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &MaintenanceService{
		repo:      repo,
		dbService: dbService,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one full retention pass. Purges continue past individual
// failures where safe; the first storage error aborts since later purges
// would likely hit the same fault.
func (m *MaintenanceService) Run(ctx context.Context) (*MaintenanceResult, error) {
	start := m.now()
	result := &MaintenanceResult{}

	rawCutoff := start.AddDate(0, 0, -m.config.RawEventDays).UnixMilli()
	deleted, err := m.repo.DeleteRawEventsBefore(ctx, rawCutoff)
	if err != nil {
		return result, err
	}
	result.RawEventsDeleted = deleted

	statCutoff := start.AddDate(0, 0, -m.config.HourlyStatDays).Format(types.DateFormat)
	deleted, err = m.repo.DeleteHourlyStatsBefore(ctx, statCutoff)
	if err != nil {
		return result, err
	}
	result.HourlyStatsDeleted = deleted

	tombstoneCutoff := start.AddDate(0, 0, -m.config.TombstoneGraceDays).UnixMilli()
	deleted, err = m.repo.DeleteTombstonedAppsBefore(ctx, tombstoneCutoff)
	if err != nil {
		return result, err
	}
	result.TombstonesDeleted = deleted

	// Optimize failures are non-fatal: the purges already succeeded and the
	// next pass will try again.
	if m.dbService != nil {
		if err := m.dbService.Optimize(ctx); err != nil {
			m.logger.Warn("Database optimize failed during maintenance", "error", err)
		} else {
			result.Optimized = true
		}
	}

	result.Duration = m.now().Sub(start)
	logging.LogOperation(m.logger, "Maintenance.Run", result.Duration, map[string]interface{}{
		"raw_events_deleted":   result.RawEventsDeleted,
		"hourly_stats_deleted": result.HourlyStatsDeleted,
		"tombstones_deleted":   result.TombstonesDeleted,
		"optimized":            result.Optimized,
	})
	return result, nil
}
