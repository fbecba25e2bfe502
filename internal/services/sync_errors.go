package services

import (
	"errors"
	"fmt"
)

// SyncStage identifies where in the ingestion cycle the coordinator is, and
// where a failing cycle stopped.
type SyncStage int

const (
	StageIdle SyncStage = iota
	StageCheckingPermission
	StageSyncingAppDirectory
	StageFetchingEvents
	StagePersistingRaw
	StageReconstructingSessions
	StagePersistingUsageRecords
	StageAggregatingHourly
	StageAdvancingCheckpoint
)

func (s SyncStage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageCheckingPermission:
		return "CheckingPermission"
	case StageSyncingAppDirectory:
		return "SyncingAppDirectory"
	case StageFetchingEvents:
		return "FetchingEvents"
	case StagePersistingRaw:
		return "PersistingRaw"
	case StageReconstructingSessions:
		return "ReconstructingSessions"
	case StagePersistingUsageRecords:
		return "PersistingUsageRecords"
	case StageAggregatingHourly:
		return "AggregatingHourly"
	case StageAdvancingCheckpoint:
		return "AdvancingCheckpoint"
	default:
		return fmt.Sprintf("SyncStage(%d)", int(s))
	}
}

// SyncErrorCode classifies cycle failures for callers deciding whether a
// wholesale retry is worthwhile.
type SyncErrorCode int

const (
	// SyncErrUnknown covers unclassified failures.
	SyncErrUnknown SyncErrorCode = iota
	// SyncErrPermissionDenied means usage access is not granted. Retrying
	// without user action is pointless.
	SyncErrPermissionDenied
	// SyncErrTransientIO covers provider or storage failures that survived
	// per-call retries. The checkpoint is untouched, so rerunning the cycle
	// is safe.
	SyncErrTransientIO
	// SyncErrAggregationConflict means a concurrent recompute interfered with
	// persisting aggregates.
	SyncErrAggregationConflict
	// SyncErrInProgress means another cycle holds the coordinator.
	SyncErrInProgress
)

func (c SyncErrorCode) String() string {
	switch c {
	case SyncErrPermissionDenied:
		return "PERMISSION_DENIED"
	case SyncErrTransientIO:
		return "TRANSIENT_IO"
	case SyncErrAggregationConflict:
		return "AGGREGATION_CONFLICT"
	case SyncErrInProgress:
		return "SYNC_IN_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// SyncError reports a failed ingestion cycle: which stage stopped it and how
// the failure classifies. Writes committed by earlier stages stay; because
// the checkpoint only advances at the end, a rerun re-reads the same window.
type SyncError struct {
	Stage SyncStage
	Code  SyncErrorCode
	Err   error
}

func (e *SyncError) Error() string {
	if e == nil {
		return "sync error"
	}
	if e.Err != nil {
		return fmt.Sprintf("sync failed at stage %s [code=%s]: %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("sync failed at stage %s [code=%s]", e.Stage, e.Code)
}

func (e *SyncError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches SyncErrors by code, so callers can test
// errors.Is(err, &SyncError{Code: SyncErrPermissionDenied}).
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && e.Code == t.Code
}

// NewSyncError builds a classified cycle failure.
func NewSyncError(stage SyncStage, code SyncErrorCode, err error) *SyncError {
	return &SyncError{Stage: stage, Code: code, Err: err}
}

// IsPermissionDenied reports whether err is a permission-denied sync failure.
func IsPermissionDenied(err error) bool {
	var syncErr *SyncError
	return errors.As(err, &syncErr) && syncErr.Code == SyncErrPermissionDenied
}

// IsTransientIO reports whether err is a transient sync failure worth
// rerunning.
func IsTransientIO(err error) bool {
	var syncErr *SyncError
	return errors.As(err, &syncErr) && syncErr.Code == SyncErrTransientIO
}

// IsSyncInProgress reports whether err means another cycle was already
// running.
func IsSyncInProgress(err error) bool {
	var syncErr *SyncError
	return errors.As(err, &syncErr) && syncErr.Code == SyncErrInProgress
}
