package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"appusage/internal/types"
)

func TestWithTransactionCommit(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	ts := millis(2025, time.April, 1, 9, 0)
	err := repo.WithTransaction(ctx, func(txRepo UsageRepository) error {
		if _, err := txRepo.SaveRawEvents(ctx, []types.RawEvent{
			{PackageName: "a", Timestamp: ts, EventType: types.EventResumed},
		}); err != nil {
			return err
		}
		return txRepo.ReplaceHourlyStats(ctx, "2025-04-01", []types.HourlyStat{
			{Date: "2025-04-01", Hour: 9, PackageName: "a", AppName: "A", TotalDuration: 1000, UsageCount: 1},
		})
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}

	events, err := repo.GetRawEventsByDate(ctx, types.DateOf(ts))
	if err != nil {
		t.Fatalf("GetRawEventsByDate failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected committed event, got %d rows", len(events))
	}

	stats, err := repo.GetHourlyStatsByDate(ctx, "2025-04-01")
	if err != nil {
		t.Fatalf("GetHourlyStatsByDate failed: %v", err)
	}
	if len(stats) != 1 {
		t.Errorf("Expected committed stat row, got %d rows", len(stats))
	}
}

func TestWithTransactionRollback(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	boom := errors.New("boom")
	ts := millis(2025, time.April, 2, 9, 0)
	err := repo.WithTransaction(ctx, func(txRepo UsageRepository) error {
		if _, err := txRepo.SaveRawEvents(ctx, []types.RawEvent{
			{PackageName: "a", Timestamp: ts, EventType: types.EventResumed},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected function error to surface, got %v", err)
	}

	events, err := repo.GetRawEventsByDate(ctx, types.DateOf(ts))
	if err != nil {
		t.Fatalf("GetRawEventsByDate failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected rollback to discard the write, got %d rows", len(events))
	}
}

func TestWithTransactionNested(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	// SaveRawEvents opens its own transaction internally; calling it from
	// inside WithTransaction must reuse the ambient one instead of
	// deadlocking or double-beginning.
	ts := millis(2025, time.April, 3, 9, 0)
	err := repo.WithTransaction(ctx, func(txRepo UsageRepository) error {
		return txRepo.WithTransaction(ctx, func(inner UsageRepository) error {
			_, err := inner.SaveRawEvents(ctx, []types.RawEvent{
				{PackageName: "a", Timestamp: ts, EventType: types.EventResumed},
			})
			return err
		})
	})
	if err != nil {
		t.Fatalf("Nested WithTransaction failed: %v", err)
	}

	events, err := repo.GetRawEventsByDate(ctx, types.DateOf(ts))
	if err != nil {
		t.Fatalf("GetRawEventsByDate failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected nested write to commit, got %d rows", len(events))
	}
}
