package types

import "time"

// EventType identifies a foreground transition reported by the OS.
type EventType string

const (
	EventResumed EventType = "RESUMED"
	EventPaused  EventType = "PAUSED"
)

// MillisPerHour is the duration of one clock hour in event-timestamp units.
const MillisPerHour int64 = 60 * 60 * 1000

// DateFormat is the canonical layout for date keys (local time).
const DateFormat = "2006-01-02"

// RawEvent is a single app foreground-enter/exit notification as reported by
// the OS event provider. Raw events are append-only; once ingested they are
// never mutated, only purged by retention.
type RawEvent struct {
	ID          int64     `json:"id"`
	PackageName string    `json:"packageName"`
	ClassName   string    `json:"className,omitempty"`
	Timestamp   int64     `json:"timestamp"` // unix milliseconds
	EventType   EventType `json:"eventType"`
	Date        string    `json:"date"` // YYYY-MM-DD, derived from Timestamp
}

// UsageSession is a reconstructed contiguous foreground interval for one app.
// Sessions are transient pipeline values between the reconstructor and the
// aggregator; they are not persisted as their own table.
type UsageSession struct {
	PackageName string `json:"packageName"`
	AppName     string `json:"appName"`
	StartTime   int64  `json:"startTime"` // unix milliseconds
	EndTime     int64  `json:"endTime"`   // unix milliseconds
	Duration    int64  `json:"duration"`  // EndTime - StartTime, milliseconds
	Icon        string `json:"icon,omitempty"`
}

// HourlyStat is one pre-aggregated (date, hour, package) bucket row.
// AppName and Icon are snapshots taken at aggregation time.
type HourlyStat struct {
	Date          string `json:"date"`
	Hour          int    `json:"hour"` // 0..23
	PackageName   string `json:"packageName"`
	AppName       string `json:"appName"`
	TotalDuration int64  `json:"totalDuration"` // milliseconds
	UsageCount    int64  `json:"usageCount"`
	Icon          string `json:"icon,omitempty"`
}

// AppUsageStat is a per-app rollup served to callers.
type AppUsageStat struct {
	PackageName   string `json:"packageName"`
	AppName       string `json:"appName"`
	TotalDuration int64  `json:"totalDuration"` // milliseconds
	UsageCount    int64  `json:"usageCount"`
	Icon          string `json:"icon,omitempty"`
}

// HourlyUsageStat is one of the 24 buckets returned for a date. A bucket with
// no usage has zero duration and an empty app list; it is still valid output.
type HourlyUsageStat struct {
	Hour          int            `json:"hour"`
	TotalDuration int64          `json:"totalDuration"`
	Apps          []AppUsageStat `json:"apps"`
}

// DailyUsageStat is the per-date rollup used by range queries.
type DailyUsageStat struct {
	Date          string         `json:"date"`
	TotalDuration int64          `json:"totalDuration"`
	Apps          []AppUsageStat `json:"apps"`
}

// UsageReport is a live report over an arbitrary window, built directly from
// provider events without touching persisted aggregates.
type UsageReport struct {
	StartTime      int64          `json:"startTime"`
	EndTime        int64          `json:"endTime"`
	TotalUsageTime int64          `json:"totalUsageTime"`
	Sessions       []UsageSession `json:"sessions"`
	AppsSummary    []AppUsageStat `json:"appsSummary"`
}

// DateOf converts an event timestamp (unix milliseconds) to its local date key.
func DateOf(tsMillis int64) string {
	return time.UnixMilli(tsMillis).Format(DateFormat)
}

// HourOf returns the local clock hour (0..23) an event timestamp falls in.
func HourOf(tsMillis int64) int {
	return time.UnixMilli(tsMillis).Hour()
}
