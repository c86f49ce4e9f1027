package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ldi/tasksync/pkg/models"
)

// newTestDB opens a migrated in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

// seedCalendar creates an account with one calendar.
func seedCalendar(t *testing.T, db *DB, accountID, calendarID string) {
	t.Helper()
	ctx := context.Background()
	if a, _ := db.GetAccount(ctx, accountID); a == nil {
		if err := db.CreateAccount(ctx, &models.Account{ID: accountID, Name: accountID, ServerURL: "https://dav.example.com", Username: "alice", Password: "secret"}); err != nil {
			t.Fatalf("Failed to create account: %v", err)
		}
	}
	if err := db.UpsertCalendar(ctx, &models.Calendar{ID: calendarID, AccountID: accountID, DisplayName: "Tasks", Components: []string{"VTODO"}}); err != nil {
		t.Fatalf("Failed to create calendar: %v", err)
	}
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected journal_mode wal, got %s", mode)
	}

	var fk int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("Expected foreign_keys enabled (1), got %d", fk)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Init(ctx); err != nil {
		t.Fatalf("Second init failed: %v", err)
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}

	for _, table := range []string{"accounts", "calendars", "tasks", "pending_deletions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s missing: %v", table, err)
		}
	}
}

func TestOnChangeHook(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	calls := 0
	db.SetOnChange(func(context.Context) { calls++ })

	seedCalendar(t, db, "acct", "https://dav.example.com/cal/")
	if calls != 2 {
		t.Errorf("Expected 2 change notifications, got %d", calls)
	}

	db.DisableOnChange()
	if err := db.CreateTask(ctx, &models.Task{Title: "quiet"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if calls != 2 {
		t.Errorf("Disabled hook fired")
	}

	db.EnableOnChange()
	if err := db.CreateTask(ctx, &models.Task{Title: "loud"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 change notifications, got %d", calls)
	}
}
