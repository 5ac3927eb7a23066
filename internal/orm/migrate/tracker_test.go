package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"

	_ "github.com/mattn/go-sqlite3"
)

var testDBCounter atomic.Int64

// setupTestDB creates a private in-memory SQLite database for testing
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:migrate%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func setupTracker(t *testing.T) (*Tracker, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	tracker := NewTracker(db, query.SQLite)
	if err := tracker.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	return tracker, db
}

func record(t *testing.T, db *sql.DB, tracker *Tracker, m *Migration) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	if err := tracker.Record(ctx, tx, m); err != nil {
		tx.Rollback()
		t.Fatalf("Record() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func TestTracker_Initialize(t *testing.T) {
	tracker, db := setupTracker(t)

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&name)
	if err != nil {
		t.Fatalf("schema_migrations table was not created: %v", err)
	}

	// Test idempotency - should not error if called again
	if err := tracker.Initialize(context.Background()); err != nil {
		t.Errorf("Initialize() should be idempotent, got error: %v", err)
	}
}

func TestTracker_Record(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	m := &Migration{Version: 1, Name: "create_authors", Down: "DROP TABLE authors"}
	record(t, db, tracker, m)

	applied, err := tracker.IsApplied(ctx, 1)
	if err != nil {
		t.Fatalf("IsApplied() failed: %v", err)
	}
	if !applied {
		t.Error("migration should be marked as applied")
	}

	applied, err = tracker.IsApplied(ctx, 2)
	if err != nil {
		t.Fatalf("IsApplied() failed: %v", err)
	}
	if applied {
		t.Error("unknown version should not be applied")
	}
}

func TestTracker_GetApplied(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	record(t, db, tracker, &Migration{Version: 2, Name: "second"})
	record(t, db, tracker, &Migration{Version: 1, Name: "first", Down: "SELECT 1"})

	applied, err := tracker.GetApplied(ctx)
	if err != nil {
		t.Fatalf("GetApplied() failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", len(applied))
	}
	if applied[0].Version != 1 || applied[1].Version != 2 {
		t.Errorf("migrations not sorted by version: %d, %d", applied[0].Version, applied[1].Version)
	}
	if !applied[0].Applied {
		t.Error("applied migrations should have Applied set")
	}
	if applied[0].Down != "SELECT 1" {
		t.Errorf("expected stored down SQL, got %q", applied[0].Down)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("expected applied_at to be set")
	}
}

func TestTracker_GetLast(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	last, err := tracker.GetLast(ctx)
	if err != nil {
		t.Fatalf("GetLast() failed: %v", err)
	}
	if last != nil {
		t.Errorf("expected nil with no migrations, got %+v", last)
	}

	record(t, db, tracker, &Migration{Version: 1, Name: "first"})
	record(t, db, tracker, &Migration{Version: 3, Name: "third"})
	record(t, db, tracker, &Migration{Version: 2, Name: "second"})

	last, err = tracker.GetLast(ctx)
	if err != nil {
		t.Fatalf("GetLast() failed: %v", err)
	}
	if last == nil || last.Version != 3 {
		t.Errorf("expected version 3, got %+v", last)
	}
}

func TestTracker_Remove(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	record(t, db, tracker, &Migration{Version: 1, Name: "first"})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	if err := tracker.Remove(ctx, tx, 1); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := tracker.Remove(ctx, tx, 1); err == nil {
		t.Error("removing an unknown version should fail")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	count, err := tracker.GetCount(ctx)
	if err != nil {
		t.Fatalf("GetCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 migrations, got %d", count)
	}
}

func TestTracker_GetPending(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	all := []*Migration{
		{Version: 1, Name: "first"},
		{Version: 2, Name: "second"},
		{Version: 3, Name: "third"},
	}
	record(t, db, tracker, all[0])
	record(t, db, tracker, all[2])

	pending, err := tracker.GetPending(ctx, all)
	if err != nil {
		t.Fatalf("GetPending() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("expected only version 2 pending, got %d migrations", len(pending))
	}
}

func TestTracker_GetCount(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		record(t, db, tracker, &Migration{Version: i, Name: fmt.Sprintf("m%d", i)})
	}

	count, err := tracker.GetCount(ctx)
	if err != nil {
		t.Fatalf("GetCount() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3, got %d", count)
	}
}
