package app

import (
	"context"
	"testing"
	"time"

	"appusage/internal/database"
	"appusage/internal/provider"
	"appusage/internal/types"
)

func testEngineConfig() *Config {
	config := DefaultEngineConfig()
	config.Database = database.TestConfig()
	return config
}

func TestNew_WiresEngine(t *testing.T) {
	events := provider.NewStaticEventProvider(nil)
	directory := provider.NewStaticAppDirectory(nil)

	a, err := New(context.Background(), testEngineConfig(), events, directory, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Repository == nil || a.Coordinator == nil || a.Queries == nil || a.Maintenance == nil {
		t.Fatal("Expected all engine services to be wired")
	}

	if err := a.DBService.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy database after New, got: %v", err)
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	// Default config targets a file database; point it at memory via env
	t.Setenv("APPUSAGE_DB_PATH", ":memory:")
	t.Setenv("APPUSAGE_DB_JOURNAL_MODE", "MEMORY")
	t.Setenv("APPUSAGE_DB_FORCE_SINGLE_CONNECTION", "true")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	a, err := New(context.Background(), config, provider.NewStaticEventProvider(nil), provider.NewStaticAppDirectory(nil), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Config.Database.Path != ":memory:" {
		t.Errorf("Expected in-memory database, got %s", a.Config.Database.Path)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	config := testEngineConfig()
	config.Retention.RawEventDays = 0

	_, err := New(context.Background(), config, provider.NewStaticEventProvider(nil), provider.NewStaticAppDirectory(nil), nil)
	if err == nil {
		t.Fatal("Expected error for invalid config, got nil")
	}
}

func TestEngine_EndToEndCycle(t *testing.T) {
	// Keep events inside the bootstrap sync window (last 24h)
	base := time.Now().Add(-3 * time.Hour).Truncate(time.Minute)
	events := provider.NewStaticEventProvider([]types.RawEvent{
		{PackageName: "com.example.mail", Timestamp: base.UnixMilli(), EventType: types.EventResumed},
		{PackageName: "com.example.mail", Timestamp: base.Add(30 * time.Minute).UnixMilli(), EventType: types.EventPaused},
	})
	directory := provider.NewStaticAppDirectory([]types.AppInfo{
		{PackageName: "com.example.mail", AppName: "Mail"},
	})

	a, err := New(context.Background(), testEngineConfig(), events, directory, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	result, err := a.Coordinator.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if result.SessionCount != 1 {
		t.Fatalf("Expected 1 session, got %d", result.SessionCount)
	}

	date := base.Format("2006-01-02")
	stats, err := a.Queries.GetHourlyUsageStats(context.Background(), date)
	if err != nil {
		t.Fatalf("GetHourlyUsageStats failed: %v", err)
	}
	if len(stats) != 24 {
		t.Fatalf("Expected 24 hour buckets, got %d", len(stats))
	}

	var total int64
	for _, row := range stats {
		for _, appStat := range row.Apps {
			total += appStat.TotalDuration
		}
	}
	if want := (30 * time.Minute).Milliseconds(); total != want {
		t.Errorf("Expected %dms of recorded usage, got %d", want, total)
	}
}
