package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitializeDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InitializeDatabase(ctx, db); err != nil {
		t.Fatalf("InitializeDatabase: %v", err)
	}
	// Idempotent.
	if err := InitializeDatabase(ctx, db); err != nil {
		t.Fatalf("second InitializeDatabase: %v", err)
	}

	for _, table := range []string{"entries", "entries_fts", "migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	status, err := NewMigrationManager(db).Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}
	if len(status.Applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(status.Applied))
	}
}

func TestMigrationsFromFS(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	source := fstest.MapFS{
		"m/001_first.sql":  {Data: []byte("CREATE TABLE a (x INTEGER);")},
		"m/002_second.sql": {Data: []byte("CREATE TABLE b (y INTEGER);")},
		"m/README.md":      {Data: []byte("ignored")},
		"m/bad.sql":        {Data: []byte("ignored, no version")},
	}
	m := NewMigrationManagerFromFS(db, source, "m")

	available, err := m.Available()
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(available) != 2 || available[0].Name != "first" || available[1].Version != 2 {
		t.Fatalf("unexpected migrations: %+v", available)
	}

	n, err := m.ApplyPending(ctx)
	if err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if n != 2 {
		t.Errorf("applied %d migrations, want 2", n)
	}
	n, err = m.ApplyPending(ctx)
	if err != nil || n != 0 {
		t.Errorf("second ApplyPending = %d, %v", n, err)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	source := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE c (z INTEGER); THIS IS NOT SQL;")},
	}
	m := NewMigrationManagerFromFS(db, source, "m")
	if _, err := m.ApplyPending(ctx); err == nil {
		t.Fatal("expected migration error")
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("broken migration should stay pending, got %d pending", len(pending))
	}
}
