package services

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"appusage/internal/infrastructure/logging"
	"appusage/internal/provider"
	"appusage/internal/repository"
	"appusage/internal/types"
)

// HoursPerDay is the fixed bucket count every hourly query returns.
const HoursPerDay = 24

// QueryService serves read-side usage statistics from the pre-aggregated
// hourly buckets, falling back to on-demand computation from raw events when
// a date has not been aggregated yet. Queries never write through to the
// aggregate store synchronously; the fallback fires an async aggregation so
// later reads hit the fast path.
type QueryService struct {
	repo          repository.UsageRepository
	aggregator    *HourlyAggregator
	reconstructor *SessionReconstructor
	events        provider.EventProvider
	logger        logging.Logger
	// async runs the background re-aggregation kicked off by the fallback
	// path. Tests swap it to run inline.
	async func(fn func())
	// repairs collapses duplicate background recomputes for one date when
	// several readers hit the fallback path at once.
	repairs singleflight.Group
}

// NewQueryService wires a query service over its collaborators. The event
// provider is only used by live reports and may be nil when callers never ask
// for one.
func NewQueryService(repo repository.UsageRepository, aggregator *HourlyAggregator,
	reconstructor *SessionReconstructor, events provider.EventProvider,
	logger logging.Logger) *QueryService {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &QueryService{
		repo:          repo,
		aggregator:    aggregator,
		reconstructor: reconstructor,
		events:        events,
		logger:        logger,
		async:         func(fn func()) { go fn() },
	}
}

// GetHourlyUsageStats returns exactly 24 buckets for the date, zero-filled
// where no usage exists, apps within each bucket sorted by duration
// descending. When the date has no aggregate rows at all the answer is
// computed from persisted raw events on demand and an async aggregation is
// scheduled for the date. A date with genuinely no usage returns 24 empty
// buckets, never an error.
func (q *QueryService) GetHourlyUsageStats(ctx context.Context, date string) ([]types.HourlyUsageStat, error) {
	rows, err := q.repo.GetHourlyStatsByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		computed, rawErr := q.computeHourlyFromRaw(ctx, date)
		if rawErr != nil {
			return nil, rawErr
		}
		if len(computed) > 0 {
			q.scheduleAggregation(date)
		}
		rows = computed
	}

	return bucketize(rows), nil
}

// computeHourlyFromRaw rebuilds a date's hourly rows in memory from the raw
// event store. Display metadata comes from the persisted directory.
func (q *QueryService) computeHourlyFromRaw(ctx context.Context, date string) ([]types.HourlyStat, error) {
	sessions, err := q.aggregator.SessionsForDate(ctx, date, q.reconstructor)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	directory, err := q.directorySnapshot(ctx)
	if err != nil {
		return nil, err
	}

	return SplitSessionsByHour(date, sessions, directory), nil
}

// scheduleAggregation fires a background recompute so subsequent reads for
// the date hit the pre-aggregated path. Failures are logged and swallowed;
// the caller already has a correct answer.
func (q *QueryService) scheduleAggregation(date string) {
	q.async(func() {
		q.repairs.Do(date, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			directory, err := q.directorySnapshot(ctx)
			if err != nil {
				q.logger.Warn("Background aggregation skipped, directory unavailable", "date", date, "error", err)
				return nil, nil
			}
			if err := q.aggregator.RecomputeDate(ctx, date, q.reconstructor, directory); err != nil {
				q.logger.Warn("Background aggregation failed", "date", date, "error", err)
			}
			return nil, nil
		})
	})
}

// GetDailyTopApps ranks the date's apps by total duration descending and
// returns at most limit entries. A limit of zero or less means no cap.
func (q *QueryService) GetDailyTopApps(ctx context.Context, date string, limit int) ([]types.AppUsageStat, error) {
	rows, err := q.repo.GetHourlyStatsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if rows, err = q.computeHourlyFromRaw(ctx, date); err != nil {
			return nil, err
		}
	}

	apps := rollupByPackage(rows)
	if limit > 0 && len(apps) > limit {
		apps = apps[:limit]
	}
	return apps, nil
}

// GetUsageStats returns the per-app rollup over an inclusive date range,
// sorted by total duration descending.
func (q *QueryService) GetUsageStats(ctx context.Context, startDate, endDate string) ([]types.AppUsageStat, error) {
	rows, err := q.repo.GetHourlyStatsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return rollupByPackage(rows), nil
}

// GetDailyUsageStats returns one rollup per date over an inclusive range,
// dates ascending, apps within each date by duration descending. Dates with
// no rows are omitted.
func (q *QueryService) GetDailyUsageStats(ctx context.Context, startDate, endDate string) ([]types.DailyUsageStat, error) {
	rows, err := q.repo.GetHourlyStatsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]types.HourlyStat)
	for _, row := range rows {
		byDate[row.Date] = append(byDate[row.Date], row)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	result := make([]types.DailyUsageStat, 0, len(dates))
	for _, date := range dates {
		apps := rollupByPackage(byDate[date])
		var total int64
		for _, app := range apps {
			total += app.TotalDuration
		}
		result = append(result, types.DailyUsageStat{
			Date:          date,
			TotalDuration: total,
			Apps:          apps,
		})
	}
	return result, nil
}

// GetUsageReport builds a live report for an arbitrary window straight from
// the event provider, bypassing persisted aggregates. Apps still in the
// foreground are closed at the window end, so in-progress usage counts.
func (q *QueryService) GetUsageReport(ctx context.Context, startTime, endTime int64) (*types.UsageReport, error) {
	events, err := q.events.QueryEvents(ctx, startTime, endTime)
	if err != nil {
		return nil, err
	}

	directory, err := q.directorySnapshot(ctx)
	if err != nil {
		return nil, err
	}

	sessions := q.reconstructor.Reconstruct(events, endTime, CloseAtWindowEnd)

	var total int64
	perApp := make(map[string]*types.AppUsageStat)
	for i := range sessions {
		s := &sessions[i]
		s.AppName, s.Icon = appDisplay(directory, s.PackageName)
		total += s.Duration

		stat, ok := perApp[s.PackageName]
		if !ok {
			stat = &types.AppUsageStat{
				PackageName: s.PackageName,
				AppName:     s.AppName,
				Icon:        s.Icon,
			}
			perApp[s.PackageName] = stat
		}
		stat.TotalDuration += s.Duration
		stat.UsageCount++
	}

	summary := make([]types.AppUsageStat, 0, len(perApp))
	for _, stat := range perApp {
		summary = append(summary, *stat)
	}
	sortAppStats(summary)

	return &types.UsageReport{
		StartTime:      startTime,
		EndTime:        endTime,
		TotalUsageTime: total,
		Sessions:       sessions,
		AppsSummary:    summary,
	}, nil
}

func (q *QueryService) directorySnapshot(ctx context.Context) (map[string]types.InstalledApp, error) {
	apps, err := q.repo.GetInstalledApps(ctx, true)
	if err != nil {
		return nil, err
	}
	byPackage := make(map[string]types.InstalledApp, len(apps))
	for _, app := range apps {
		byPackage[app.PackageName] = app
	}
	return byPackage, nil
}

// bucketize spreads hourly rows into the fixed 24-slot day shape.
func bucketize(rows []types.HourlyStat) []types.HourlyUsageStat {
	buckets := make([]types.HourlyUsageStat, HoursPerDay)
	for i := range buckets {
		buckets[i].Hour = i
		buckets[i].Apps = []types.AppUsageStat{}
	}

	for _, row := range rows {
		if row.Hour < 0 || row.Hour >= HoursPerDay {
			continue
		}
		b := &buckets[row.Hour]
		b.TotalDuration += row.TotalDuration
		b.Apps = append(b.Apps, types.AppUsageStat{
			PackageName:   row.PackageName,
			AppName:       row.AppName,
			TotalDuration: row.TotalDuration,
			UsageCount:    row.UsageCount,
			Icon:          row.Icon,
		})
	}

	for i := range buckets {
		sortAppStats(buckets[i].Apps)
	}
	return buckets
}

// rollupByPackage sums hourly rows into one stat per package, sorted by
// duration descending.
func rollupByPackage(rows []types.HourlyStat) []types.AppUsageStat {
	perApp := make(map[string]*types.AppUsageStat)
	for _, row := range rows {
		stat, ok := perApp[row.PackageName]
		if !ok {
			stat = &types.AppUsageStat{
				PackageName: row.PackageName,
				AppName:     row.AppName,
				Icon:        row.Icon,
			}
			perApp[row.PackageName] = stat
		}
		stat.TotalDuration += row.TotalDuration
		stat.UsageCount += row.UsageCount
	}

	apps := make([]types.AppUsageStat, 0, len(perApp))
	for _, stat := range perApp {
		apps = append(apps, *stat)
	}
	sortAppStats(apps)
	return apps
}

func sortAppStats(apps []types.AppUsageStat) {
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].TotalDuration != apps[j].TotalDuration {
			return apps[i].TotalDuration > apps[j].TotalDuration
		}
		return apps[i].PackageName < apps[j].PackageName
	})
}
