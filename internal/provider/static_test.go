package provider

import (
	"context"
	"errors"
	"testing"

	"appusage/internal/types"
)

func TestStaticEventProviderWindowFiltering(t *testing.T) {
	t.Parallel()

	p := NewStaticEventProvider([]types.RawEvent{
		{PackageName: "a", Timestamp: 100, EventType: types.EventResumed},
		{PackageName: "a", Timestamp: 200, EventType: types.EventPaused},
		{PackageName: "b", Timestamp: 300, EventType: types.EventResumed},
	})

	// Half-open window: start inclusive, end exclusive
	events, err := p.QueryEvents(context.Background(), 100, 300)
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events in [100, 300), got %d", len(events))
	}

	if calls := p.QueryCalls(); calls != 1 {
		t.Errorf("Expected 1 recorded query call, got %d", calls)
	}
}

func TestStaticEventProviderPermission(t *testing.T) {
	t.Parallel()

	p := NewStaticEventProvider(nil)

	granted, err := p.HasPermission(context.Background())
	if err != nil || !granted {
		t.Errorf("Expected permission granted by default, got %v/%v", granted, err)
	}

	p.SetPermission(false)
	granted, err = p.HasPermission(context.Background())
	if err != nil || granted {
		t.Errorf("Expected permission revoked, got %v/%v", granted, err)
	}

	granted, err = p.RequestPermission(context.Background())
	if err != nil || !granted {
		t.Errorf("Expected permission request to grant, got %v/%v", granted, err)
	}
}

func TestStaticEventProviderErrorInjection(t *testing.T) {
	t.Parallel()

	p := NewStaticEventProvider(nil)
	boom := errors.New("boom")

	p.FailQueries(boom)
	if _, err := p.QueryEvents(context.Background(), 0, 100); !errors.Is(err, boom) {
		t.Errorf("Expected injected query error, got %v", err)
	}

	p.FailQueries(nil)
	if _, err := p.QueryEvents(context.Background(), 0, 100); err != nil {
		t.Errorf("Expected query to recover, got %v", err)
	}

	p.FailPermissionChecks(boom)
	if _, err := p.HasPermission(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected injected permission error, got %v", err)
	}
}

func TestStaticAppDirectoryIcons(t *testing.T) {
	t.Parallel()

	d := NewStaticAppDirectory([]types.AppInfo{
		{PackageName: "a", AppName: "A", Icon: "a.png"},
	})

	withIcons, err := d.GetInstalledApps(context.Background(), true)
	if err != nil {
		t.Fatalf("GetInstalledApps failed: %v", err)
	}
	if withIcons[0].Icon != "a.png" {
		t.Errorf("Expected icon kept, got %q", withIcons[0].Icon)
	}

	withoutIcons, err := d.GetInstalledApps(context.Background(), false)
	if err != nil {
		t.Fatalf("GetInstalledApps failed: %v", err)
	}
	if withoutIcons[0].Icon != "" {
		t.Errorf("Expected icon stripped, got %q", withoutIcons[0].Icon)
	}

	// The caller's slice is a copy; mutating it must not leak back.
	withIcons[0].AppName = "mutated"
	again, _ := d.GetInstalledApps(context.Background(), true)
	if again[0].AppName != "A" {
		t.Errorf("Expected provider state isolated from caller mutation, got %q", again[0].AppName)
	}
}
