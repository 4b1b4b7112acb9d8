package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/modreg/adapters/sqlite"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("applied migrations = %d, want 1", n)
	}
}

func TestReplayIndex_Earliest(t *testing.T) {
	db := setupTestDB(t)
	idx := sqlite.NewReplayIndex(db)
	ctx := context.Background()

	if _, ok, err := idx.Earliest(ctx, "acme-system"); err != nil || ok {
		t.Fatalf("Earliest on empty index = ok %v, err %v", ok, err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []struct {
		module string
		at     time.Time
	}{
		{"acme-system", base.Add(time.Hour)},
		{"acme-system", base},
		{"acme-types", base.Add(-time.Hour)},
	}
	for _, r := range records {
		if err := idx.Record(ctx, r.module, r.at); err != nil {
			t.Fatalf("Record(%s): %v", r.module, err)
		}
	}

	got, ok, err := idx.Earliest(ctx, "acme-system")
	if err != nil {
		t.Fatalf("Earliest: %v", err)
	}
	if !ok {
		t.Fatal("Earliest reported no records")
	}
	if !got.Equal(base) {
		t.Errorf("Earliest = %v, want %v", got, base)
	}
}
