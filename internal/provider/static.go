package provider

import (
	"context"
	"sync"

	"appusage/internal/types"
)

// StaticEventProvider serves a fixed event slice from memory. It backs tests
// and the CLI demo path; a real deployment supplies a platform-bound
// EventProvider instead.
type StaticEventProvider struct {
	mu         sync.Mutex
	events     []types.RawEvent
	granted    bool
	queryErr   error
	permErr    error
	queryCalls int
}

// NewStaticEventProvider creates a provider pre-loaded with events and
// permission already granted.
func NewStaticEventProvider(events []types.RawEvent) *StaticEventProvider {
	return &StaticEventProvider{
		events:  events,
		granted: true,
	}
}

// SetPermission controls what HasPermission reports.
func (p *StaticEventProvider) SetPermission(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = granted
}

// FailQueries makes QueryEvents return err until called with nil.
func (p *StaticEventProvider) FailQueries(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryErr = err
}

// FailPermissionChecks makes HasPermission return err until called with nil.
func (p *StaticEventProvider) FailPermissionChecks(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permErr = err
}

// AddEvents appends events to the served set.
func (p *StaticEventProvider) AddEvents(events ...types.RawEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

// QueryCalls returns how many times QueryEvents has been invoked.
func (p *StaticEventProvider) QueryCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queryCalls
}

func (p *StaticEventProvider) HasPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permErr != nil {
		return false, p.permErr
	}
	return p.granted, nil
}

func (p *StaticEventProvider) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permErr != nil {
		return false, p.permErr
	}
	p.granted = true
	return true, nil
}

func (p *StaticEventProvider) QueryEvents(ctx context.Context, startTime, endTime int64) ([]types.RawEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queryCalls++
	if p.queryErr != nil {
		return nil, p.queryErr
	}

	var out []types.RawEvent
	for _, ev := range p.events {
		if ev.Timestamp >= startTime && ev.Timestamp < endTime {
			out = append(out, ev)
		}
	}
	return out, nil
}

// StaticAppDirectory serves a fixed installed-app list from memory.
type StaticAppDirectory struct {
	mu      sync.Mutex
	apps    []types.AppInfo
	listErr error
}

// NewStaticAppDirectory creates a directory provider with the given apps.
func NewStaticAppDirectory(apps []types.AppInfo) *StaticAppDirectory {
	return &StaticAppDirectory{apps: apps}
}

// SetApps replaces the served installed-app list.
func (d *StaticAppDirectory) SetApps(apps []types.AppInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apps = apps
}

// FailListings makes GetInstalledApps return err until called with nil.
func (d *StaticAppDirectory) FailListings(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listErr = err
}

func (d *StaticAppDirectory) GetInstalledApps(ctx context.Context, includeIcons bool) ([]types.AppInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listErr != nil {
		return nil, d.listErr
	}

	out := make([]types.AppInfo, len(d.apps))
	copy(out, d.apps)
	if !includeIcons {
		for i := range out {
			out[i].Icon = ""
		}
	}
	return out, nil
}

var (
	_ EventProvider        = (*StaticEventProvider)(nil)
	_ AppDirectoryProvider = (*StaticAppDirectory)(nil)
)
