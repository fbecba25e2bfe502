package provider

import (
	"context"

	"appusage/internal/types"
)

// EventProvider is the OS collaborator that exposes app foreground
// transition events. Implementations wrap a platform event source; the
// pipeline only depends on this contract.
type EventProvider interface {
	// HasPermission reports whether usage-event access has been granted.
	HasPermission(ctx context.Context) (bool, error)

	// RequestPermission asks the platform for usage-event access and
	// reports whether it was granted.
	RequestPermission(ctx context.Context) (bool, error)

	// QueryEvents returns all transition events with timestamps in
	// [startTime, endTime), in provider order (not necessarily sorted).
	QueryEvents(ctx context.Context, startTime, endTime int64) ([]types.RawEvent, error)
}

// AppDirectoryProvider is the OS collaborator that lists installed packages.
type AppDirectoryProvider interface {
	// GetInstalledApps returns the current installed-package list.
	// Icons are expensive to encode, so they are included only on request.
	GetInstalledApps(ctx context.Context, includeIcons bool) ([]types.AppInfo, error)
}
