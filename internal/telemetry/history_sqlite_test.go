package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/netpulse/internal/infrastructure/database"
	"github.com/nerrad567/netpulse/migrations"
)

func openHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteHistory(db.DB)
}

func TestSQLiteHistory_RecordAndGet(t *testing.T) {
	repo := openHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s := NewSample("alpha", 20+float64(i), 30, base.Add(time.Duration(i)*time.Second))
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := repo.Record(ctx, NewSample("bravo", 50, 50, base)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "alpha", 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].CPU != 24 || entries[2].CPU != 22 {
		t.Errorf("entries not newest-first: %+v", entries)
	}
	if !entries[0].At.Equal(base.Add(4 * time.Second)) {
		t.Errorf("At = %v, want %v", entries[0].At, base.Add(4*time.Second))
	}
	for _, e := range entries {
		if e.DeviceID != "alpha" {
			t.Errorf("unexpected device %q", e.DeviceID)
		}
	}
}

func TestSQLiteHistory_SubSecondOrdering(t *testing.T) {
	repo := openHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s := NewSample("alpha", 20+float64(i), 30, base.Add(time.Duration(i)*100*time.Millisecond))
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "alpha", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 || entries[0].CPU != 22 {
		t.Errorf("entries = %+v, want newest (cpu 22) first", entries)
	}
}

func TestSQLiteHistory_Validation(t *testing.T) {
	repo := openHistory(t)
	ctx := context.Background()

	if err := repo.Record(ctx, Sample{}); !errors.Is(err, ErrInvalidSample) {
		t.Errorf("Record(empty) error = %v, want ErrInvalidSample", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, ErrDeviceRequired) {
		t.Errorf("GetHistory(\"\") error = %v, want ErrDeviceRequired", err)
	}
}

func TestSQLiteHistory_Prune(t *testing.T) {
	repo := openHistory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Record(ctx, NewSample("alpha", 50, 50, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repo.Record(ctx, NewSample("alpha", 60, 60, now)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	n, err := repo.Prune(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}
