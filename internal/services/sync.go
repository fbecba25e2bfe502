package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	repoerrors "appusage/internal/infrastructure/errors"
	"appusage/internal/infrastructure/logging"
	"appusage/internal/provider"
	"appusage/internal/repository"
	"appusage/internal/types"
)

// SyncConfig tunes the ingestion cycle.
type SyncConfig struct {
	// MinSessionDuration is the session noise floor in milliseconds.
	MinSessionDuration int64 `json:"minSessionDuration" yaml:"min_session_duration"`
	// ProviderRetryAttempts is how many times a failing provider call is
	// retried before the cycle fails as transient.
	ProviderRetryAttempts uint64 `json:"providerRetryAttempts" yaml:"provider_retry_attempts"`
	// ProviderRetryBase is the first retry delay; subsequent delays grow
	// along a fibonacci sequence.
	ProviderRetryBase time.Duration `json:"providerRetryBase" yaml:"provider_retry_base"`
	// SyncIcons requests icons from the app directory provider.
	SyncIcons bool `json:"syncIcons" yaml:"sync_icons"`
}

// DefaultSyncConfig returns the standard cycle tuning.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		MinSessionDuration:    0,
		ProviderRetryAttempts: 3,
		ProviderRetryBase:     500 * time.Millisecond,
		SyncIcons:             true,
	}
}

// SyncResult summarizes one completed ingestion cycle.
type SyncResult struct {
	CycleID         string                     `json:"cycleId"`
	WindowStart     int64                      `json:"windowStart"`
	WindowEnd       int64                      `json:"windowEnd"`
	EventCount      int                        `json:"eventCount"`
	SessionCount    int                        `json:"sessionCount"`
	Sessions        []types.UsageSession       `json:"sessions,omitempty"`
	DatesAggregated []string                   `json:"datesAggregated"`
	Directory       *types.DirectorySyncResult `json:"directory,omitempty"`
	Duration        time.Duration              `json:"duration"`
}

// SyncCoordinator drives the ingestion cycle: permission check, app directory
// reconciliation, event fetch over the checkpoint window, raw persistence,
// session reconstruction, hourly aggregation, checkpoint advance. Exactly one
// cycle runs at a time; the checkpoint moves only after every stage succeeds,
// so a failed cycle's window is re-read wholesale on the next run.
//
// The coordinator has no internal scheduler. Callers trigger cycles: the CLI
// sync command, a permission grant, an app-foreground hook.
type SyncCoordinator struct {
	events      provider.EventProvider
	directory   provider.AppDirectoryProvider
	repo        repository.UsageRepository
	aggregator  *HourlyAggregator
	config      *SyncConfig
	logger      logging.Logger
	now         func() time.Time
	mu          sync.Mutex
	stageMu     sync.RWMutex
	stage       SyncStage
	lastResult  *SyncResult
	lastErr     error
	cycleFinish func() // test hook, may be nil
}

// NewSyncCoordinator wires a coordinator over its collaborators.
func NewSyncCoordinator(events provider.EventProvider, directory provider.AppDirectoryProvider,
	repo repository.UsageRepository, aggregator *HourlyAggregator,
	config *SyncConfig, logger logging.Logger) *SyncCoordinator {
	if config == nil {
		config = DefaultSyncConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SyncCoordinator{
		events:     events,
		directory:  directory,
		repo:       repo,
		aggregator: aggregator,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Stage reports the coordinator's current position in the cycle.
func (c *SyncCoordinator) Stage() SyncStage {
	c.stageMu.RLock()
	defer c.stageMu.RUnlock()
	return c.stage
}

// LastResult returns the most recent completed cycle summary and the most
// recent cycle error, either of which may be nil.
func (c *SyncCoordinator) LastResult() (*SyncResult, error) {
	c.stageMu.RLock()
	defer c.stageMu.RUnlock()
	return c.lastResult, c.lastErr
}

func (c *SyncCoordinator) setStage(s SyncStage) {
	c.stageMu.Lock()
	c.stage = s
	c.stageMu.Unlock()
}

// RunCycle executes one full ingestion cycle. A cycle already in flight makes
// the call fail fast with SyncErrInProgress rather than queue.
func (c *SyncCoordinator) RunCycle(ctx context.Context) (*SyncResult, error) {
	if !c.mu.TryLock() {
		return nil, NewSyncError(StageIdle, SyncErrInProgress, nil)
	}
	defer c.mu.Unlock()

	result, err := c.runCycleLocked(ctx)

	c.stageMu.Lock()
	c.lastResult = result
	c.lastErr = err
	c.stageMu.Unlock()

	if c.cycleFinish != nil {
		c.cycleFinish()
	}
	return result, err
}

func (c *SyncCoordinator) runCycleLocked(ctx context.Context) (*SyncResult, error) {
	started := c.now()
	cycleID := uuid.NewString()
	defer c.setStage(StageIdle)

	log := func(msg string, fields ...interface{}) {
		c.logger.Info(msg, append([]interface{}{"cycle_id", cycleID}, fields...)...)
	}

	// The window end is captured once, up front. Events arriving after this
	// instant belong to the next cycle.
	windowEnd := started.UnixMilli()

	// Stage: permission gate.
	c.setStage(StageCheckingPermission)
	granted, err := c.checkPermission(ctx)
	if err != nil {
		return nil, c.failCycle(cycleID, StageCheckingPermission, SyncErrTransientIO, err)
	}
	if !granted {
		return nil, c.failCycle(cycleID, StageCheckingPermission, SyncErrPermissionDenied,
			fmt.Errorf("usage access permission not granted"))
	}

	// Stage: reconcile the installed-app directory so aggregation sees
	// current display metadata.
	c.setStage(StageSyncingAppDirectory)
	dirResult, err := c.syncDirectory(ctx)
	if err != nil {
		return nil, c.failCycle(cycleID, StageSyncingAppDirectory, SyncErrTransientIO, err)
	}

	// Stage: fetch events for [checkpoint, windowEnd).
	c.setStage(StageFetchingEvents)
	windowStart, err := c.repo.GetLastSyncTime(ctx)
	if err != nil {
		return nil, c.failCycle(cycleID, StageFetchingEvents, SyncErrTransientIO, err)
	}
	if windowStart >= windowEnd {
		log("Sync window is empty, nothing to do", "window_start", windowStart, "window_end", windowEnd)
		return &SyncResult{
			CycleID:     cycleID,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Directory:   dirResult,
			Duration:    c.now().Sub(started),
		}, nil
	}

	events, err := c.fetchEvents(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, c.failCycle(cycleID, StageFetchingEvents, SyncErrTransientIO, err)
	}
	log("Fetched provider events", "window_start", windowStart, "window_end", windowEnd, "event_count", len(events))

	// Stage: persist the raw window append-only.
	c.setStage(StagePersistingRaw)
	if _, err := c.repo.SaveRawEvents(ctx, events); err != nil {
		return nil, c.failCycle(cycleID, StagePersistingRaw, SyncErrTransientIO, err)
	}

	// Stage: pair events into bounded sessions. Open sessions are dropped;
	// their PAUSED event will arrive in a later window.
	c.setStage(StageReconstructingSessions)
	reconstructor := NewSessionReconstructor(c.config.MinSessionDuration, c.logger)
	sessions := reconstructor.Reconstruct(events, windowEnd, DropPending)

	// Stage: resolve display metadata for the reconstructed sessions.
	c.setStage(StagePersistingUsageRecords)
	directory, err := c.directorySnapshot(ctx)
	if err != nil {
		return nil, c.failCycle(cycleID, StagePersistingUsageRecords, SyncErrTransientIO, err)
	}
	enriched := make([]types.UsageSession, 0, len(sessions))
	for _, s := range sessions {
		s.AppName, s.Icon = appDisplay(directory, s.PackageName)
		enriched = append(enriched, s)
	}

	// Stage: recompute every date this window's events can change. Each
	// recompute reads the full raw store, so the replace never erases
	// earlier windows' usage.
	c.setStage(StageAggregatingHourly)
	dates := datesToAggregate(events)
	for _, date := range dates {
		if err := c.aggregator.RecomputeDate(ctx, date, reconstructor, directory); err != nil {
			code := SyncErrTransientIO
			if repoerrors.IsConstraint(err) || repoerrors.IsDuplicate(err) {
				code = SyncErrAggregationConflict
			}
			return nil, c.failCycle(cycleID, StageAggregatingHourly, code, err)
		}
	}

	// Stage: advance the checkpoint. Only now is the window consumed.
	c.setStage(StageAdvancingCheckpoint)
	if err := c.repo.SaveLastSyncTime(ctx, windowEnd); err != nil {
		return nil, c.failCycle(cycleID, StageAdvancingCheckpoint, SyncErrTransientIO, err)
	}

	result := &SyncResult{
		CycleID:         cycleID,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		EventCount:      len(events),
		SessionCount:    len(sessions),
		Sessions:        enriched,
		DatesAggregated: dates,
		Directory:       dirResult,
		Duration:        c.now().Sub(started),
	}
	log("Sync cycle completed",
		"event_count", result.EventCount,
		"session_count", result.SessionCount,
		"dates_aggregated", len(result.DatesAggregated),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// datesToAggregate collects the calendar dates whose aggregates a window of
// events can change. Dates come from the events themselves, not from the
// sessions this window managed to pair: a window holding only the PAUSED
// half of a session reconstructs nothing locally, yet its date must still be
// recomputed from the raw store so the now-complete session is credited. A
// PAUSED event with no earlier RESUMED in the window may close a session
// begun on the previous date, so that date is included as well.
func datesToAggregate(events []types.RawEvent) []string {
	firstResumed := make(map[string]int64)
	for _, ev := range events {
		if ev.EventType != types.EventResumed {
			continue
		}
		if ts, ok := firstResumed[ev.PackageName]; !ok || ev.Timestamp < ts {
			firstResumed[ev.PackageName] = ev.Timestamp
		}
	}

	dateSet := make(map[string]struct{})
	for _, ev := range events {
		dateSet[types.DateOf(ev.Timestamp)] = struct{}{}
		if ev.EventType != types.EventPaused {
			continue
		}
		if ts, ok := firstResumed[ev.PackageName]; ok && ts < ev.Timestamp {
			continue
		}
		prevDay := time.UnixMilli(ev.Timestamp).AddDate(0, 0, -1)
		dateSet[types.DateOf(prevDay.UnixMilli())] = struct{}{}
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// RunCycleRequestingPermission runs a cycle and, when usage access turns out
// not to be granted, asks the event provider for it and runs once more on a
// grant. Used by entry points where prompting the user is appropriate.
func (c *SyncCoordinator) RunCycleRequestingPermission(ctx context.Context) (*SyncResult, error) {
	result, err := c.RunCycle(ctx)
	if !IsPermissionDenied(err) {
		return result, err
	}
	granted, reqErr := c.events.RequestPermission(ctx)
	if reqErr != nil || !granted {
		return nil, err
	}
	return c.RunCycle(ctx)
}

func (c *SyncCoordinator) failCycle(cycleID string, stage SyncStage, code SyncErrorCode, err error) error {
	syncErr := NewSyncError(stage, code, err)
	logging.LogError(c.logger, syncErr, "RunCycle", map[string]interface{}{
		"cycle_id": cycleID,
		"stage":    stage.String(),
		"code":     code.String(),
	})
	return syncErr
}

func (c *SyncCoordinator) providerBackoff() retry.Backoff {
	return retry.WithMaxRetries(c.config.ProviderRetryAttempts, retry.NewFibonacci(c.config.ProviderRetryBase))
}

func (c *SyncCoordinator) checkPermission(ctx context.Context) (bool, error) {
	var granted bool
	err := retry.Do(ctx, c.providerBackoff(), func(ctx context.Context) error {
		var err error
		granted, err = c.events.HasPermission(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return granted, err
}

func (c *SyncCoordinator) syncDirectory(ctx context.Context) (*types.DirectorySyncResult, error) {
	var apps []types.AppInfo
	err := retry.Do(ctx, c.providerBackoff(), func(ctx context.Context) error {
		var err error
		apps, err = c.directory.GetInstalledApps(ctx, c.config.SyncIcons)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.repo.SyncInstalledApps(ctx, apps)
}

func (c *SyncCoordinator) fetchEvents(ctx context.Context, start, end int64) ([]types.RawEvent, error) {
	var events []types.RawEvent
	err := retry.Do(ctx, c.providerBackoff(), func(ctx context.Context) error {
		var err error
		events, err = c.events.QueryEvents(ctx, start, end)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return events, err
}

// directorySnapshot loads the full persisted directory keyed by package name,
// tombstones included so deleted apps keep resolving for historical windows.
func (c *SyncCoordinator) directorySnapshot(ctx context.Context) (map[string]types.InstalledApp, error) {
	apps, err := c.repo.GetInstalledApps(ctx, true)
	if err != nil {
		return nil, err
	}
	byPackage := make(map[string]types.InstalledApp, len(apps))
	for _, app := range apps {
		byPackage[app.PackageName] = app
	}
	return byPackage, nil
}
