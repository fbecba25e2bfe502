package services

import (
	"sort"

	"appusage/internal/infrastructure/logging"
	"appusage/internal/types"
)

// EndOfWindowPolicy controls what happens to an app still pending (resumed,
// never paused) when the event window runs out.
type EndOfWindowPolicy int

const (
	// DropPending discards open sessions; the next cycle's window will see the
	// matching PAUSED event. Used by the ingestion path.
	DropPending EndOfWindowPolicy = iota
	// CloseAtWindowEnd closes open sessions at the window end time. Used by
	// live reporting, where "still in foreground" counts up to now.
	CloseAtWindowEnd
)

// SessionReconstructor pairs RESUMED/PAUSED events into bounded usage
// sessions. It is a pure transformation; malformed input is dropped, never
// an error.
type SessionReconstructor struct {
	// MinSessionDuration drops sessions at or below this length in
	// milliseconds. Zero keeps everything with positive duration.
	MinSessionDuration int64
	logger             logging.Logger
}

// NewSessionReconstructor creates a reconstructor with the given noise floor.
func NewSessionReconstructor(minSessionDuration int64, logger logging.Logger) *SessionReconstructor {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SessionReconstructor{
		MinSessionDuration: minSessionDuration,
		logger:             logger,
	}
}

// Reconstruct builds sessions from raw events. Events are sorted by timestamp
// first, so out-of-order provider batches are handled. Pairing rules:
//
//   - RESUMED records the pending start for its package; a second RESUMED for
//     the same package overwrites the first (the later resume wins, the
//     earlier interval had no matching pause and cannot be bounded).
//   - PAUSED with a pending start emits a session when the duration clears
//     the noise floor, then clears the pending entry.
//   - PAUSED without a pending start is dropped.
//
// windowEnd only matters under CloseAtWindowEnd: pending entries are closed
// at that time. Pending entries whose start is at or past windowEnd are
// dropped either way.
func (sr *SessionReconstructor) Reconstruct(events []types.RawEvent, windowEnd int64, policy EndOfWindowPolicy) []types.UsageSession {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]types.RawEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	pending := make(map[string]int64)
	var sessions []types.UsageSession
	dropped := 0

	for _, ev := range sorted {
		switch ev.EventType {
		case types.EventResumed:
			if _, open := pending[ev.PackageName]; open {
				dropped++
			}
			pending[ev.PackageName] = ev.Timestamp

		case types.EventPaused:
			start, open := pending[ev.PackageName]
			if !open {
				dropped++
				continue
			}
			delete(pending, ev.PackageName)
			sessions = sr.appendSession(sessions, ev.PackageName, start, ev.Timestamp, &dropped)

		default:
			dropped++
		}
	}

	if policy == CloseAtWindowEnd {
		for pkg, start := range pending {
			if start >= windowEnd {
				dropped++
				continue
			}
			sessions = sr.appendSession(sessions, pkg, start, windowEnd, &dropped)
		}
		// Map iteration order is random; keep output deterministic.
		sort.SliceStable(sessions, func(i, j int) bool {
			if sessions[i].StartTime != sessions[j].StartTime {
				return sessions[i].StartTime < sessions[j].StartTime
			}
			return sessions[i].PackageName < sessions[j].PackageName
		})
	}

	if dropped > 0 {
		sr.logger.Debug("Dropped malformed or sub-threshold event data during reconstruction",
			"dropped_count", dropped,
			"session_count", len(sessions),
			"event_count", len(events))
	}

	return sessions
}

func (sr *SessionReconstructor) appendSession(sessions []types.UsageSession, pkg string, start, end int64, dropped *int) []types.UsageSession {
	duration := end - start
	if duration <= 0 || duration <= sr.MinSessionDuration {
		*dropped++
		return sessions
	}
	return append(sessions, types.UsageSession{
		PackageName: pkg,
		StartTime:   start,
		EndTime:     end,
		Duration:    duration,
	})
}
