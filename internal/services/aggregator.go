package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"appusage/internal/infrastructure/logging"
	"appusage/internal/repository"
	"appusage/internal/types"
)

// HourlyAggregator folds usage sessions into per-hour per-app buckets and
// persists them through the repository's transactional replace, so
// re-aggregating a date is idempotent. Writes for one date are serialized
// through a per-date lock; the replace transaction is the backstop when two
// processes race anyway (the later writer wins).
type HourlyAggregator struct {
	repo   repository.UsageRepository
	logger logging.Logger
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewHourlyAggregator creates an aggregator over the given repository.
func NewHourlyAggregator(repo repository.UsageRepository, logger logging.Logger) *HourlyAggregator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &HourlyAggregator{
		repo:   repo,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockDate returns the mutex serializing writes for one date. Locks are never
// freed; the set of dates an aggregator touches stays small.
func (a *HourlyAggregator) lockDate(date string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[date]
	if !ok {
		l = &sync.Mutex{}
		a.locks[date] = l
	}
	return l
}

// SplitSessionsByHour distributes session durations across clock-hour buckets
// for one date. The walk advances in boundary-aligned slices: each slice
// [cur, min(end, top of cur's next hour)) lands in the bucket for cur's hour,
// so a full intervening hour contributes exactly MillisPerHour and the sum of
// slices always equals the session duration. Every session adds one usage
// count per hour it touches. All slices are attributed to the given date even
// when the session runs past midnight; the date key records which window the
// usage was observed in.
//
// Display metadata (app name, icon) is resolved from the directory snapshot,
// with a package-derived fallback name for unknown packages.
func SplitSessionsByHour(date string, sessions []types.UsageSession, directory map[string]types.InstalledApp) []types.HourlyStat {
	type bucketKey struct {
		hour int
		pkg  string
	}
	buckets := make(map[bucketKey]*types.HourlyStat)

	for _, s := range sessions {
		if s.Duration <= 0 || s.EndTime <= s.StartTime {
			continue
		}

		cur := s.StartTime
		for cur < s.EndTime {
			hourStart := time.UnixMilli(cur)
			nextBoundary := time.Date(hourStart.Year(), hourStart.Month(), hourStart.Day(),
				hourStart.Hour(), 0, 0, 0, hourStart.Location()).
				Add(time.Hour).UnixMilli()

			sliceEnd := min(s.EndTime, nextBoundary)

			key := bucketKey{hour: types.HourOf(cur), pkg: s.PackageName}
			b, ok := buckets[key]
			if !ok {
				name, icon := appDisplay(directory, s.PackageName)
				b = &types.HourlyStat{
					Date:        date,
					Hour:        key.hour,
					PackageName: s.PackageName,
					AppName:     name,
					Icon:        icon,
				}
				buckets[key] = b
			}
			b.TotalDuration += sliceEnd - cur
			b.UsageCount++

			cur = sliceEnd
		}
	}

	stats := make([]types.HourlyStat, 0, len(buckets))
	for _, b := range buckets {
		stats = append(stats, *b)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Hour != stats[j].Hour {
			return stats[i].Hour < stats[j].Hour
		}
		return stats[i].PackageName < stats[j].PackageName
	})
	return stats
}

// AggregateDate folds the given sessions into hourly buckets for one date and
// replaces that date's persisted rows. Concurrent calls for the same date run
// one at a time.
func (a *HourlyAggregator) AggregateDate(ctx context.Context, date string, sessions []types.UsageSession, directory map[string]types.InstalledApp) error {
	l := a.lockDate(date)
	l.Lock()
	defer l.Unlock()
	return a.replaceDate(ctx, "AggregateDate", date, sessions, directory)
}

// RecomputeDate rebuilds a date's aggregates from the persisted raw event
// store. Used by the sync cycle, the query fallback path, and maintenance
// repairs. The raw read happens under the date's lock, so a recompute queued
// behind another writer always sees every event persisted before its turn.
func (a *HourlyAggregator) RecomputeDate(ctx context.Context, date string, reconstructor *SessionReconstructor, directory map[string]types.InstalledApp) error {
	l := a.lockDate(date)
	l.Lock()
	defer l.Unlock()

	sessions, err := a.SessionsForDate(ctx, date, reconstructor)
	if err != nil {
		return err
	}
	return a.replaceDate(ctx, "RecomputeDate", date, sessions, directory)
}

func (a *HourlyAggregator) replaceDate(ctx context.Context, op, date string, sessions []types.UsageSession, directory map[string]types.InstalledApp) error {
	start := time.Now()

	stats := SplitSessionsByHour(date, sessions, directory)
	if err := a.repo.ReplaceHourlyStats(ctx, date, stats); err != nil {
		logging.LogError(a.logger, err, op, map[string]interface{}{
			"date": date,
		})
		return err
	}

	logging.LogOperation(a.logger, op, time.Since(start), map[string]interface{}{
		"date":          date,
		"session_count": len(sessions),
	})
	return nil
}

// SessionsForDate reconstructs the sessions attributed to one date from the
// raw event store. The fetch window extends a day past the date so a session
// that starts before midnight finds its PAUSED event on the next date;
// sessions starting outside the date are filtered back out, since a session
// belongs to the date it started on.
func (a *HourlyAggregator) SessionsForDate(ctx context.Context, date string, reconstructor *SessionReconstructor) ([]types.UsageSession, error) {
	dayStart, err := time.ParseInLocation(types.DateFormat, date, time.Local)
	if err != nil {
		return nil, err
	}
	fetchStart := dayStart.UnixMilli()
	fetchEnd := dayStart.AddDate(0, 0, 2).UnixMilli()

	events, err := a.repo.GetRawEventsByTimeRange(ctx, fetchStart, fetchEnd)
	if err != nil {
		return nil, err
	}

	all := reconstructor.Reconstruct(events, 0, DropPending)
	var sessions []types.UsageSession
	for _, s := range all {
		if types.DateOf(s.StartTime) == date {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}
