package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/pkg/models"
)

const snapshotVersion = 1

type metaRecord struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

type accountRecord struct {
	RecordType string `json:"record_type"`
	*models.Account
}

type calendarRecord struct {
	RecordType string `json:"record_type"`
	*models.Calendar
}

type taskRecord struct {
	RecordType string `json:"record_type"`
	*models.Task
}

type pendingRecord struct {
	RecordType string `json:"record_type"`
	*models.PendingDeletion
}

// ImportResult counts the records applied by ImportSnapshot.
type ImportResult struct {
	Accounts         int `json:"accounts"`
	Calendars        int `json:"calendars"`
	Tasks            int `json:"tasks"`
	PendingDeletions int `json:"pending_deletions"`
}

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation.
func (db *DB) EnableAutoSnapshot(path string, logf func(format string, args ...any)) {
	db.SetOnChange(func(ctx context.Context) {
		// The write already succeeded; a failed export must not undo it.
		if err := db.ExportSnapshot(ctx, path); err != nil && logf != nil {
			logf("auto snapshot to %s failed: %v", path, err)
		}
	})
}

// ExportSnapshot writes accounts (without credentials), calendars, tasks and
// pending deletions as JSON lines to path, atomically via a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	if err := db.WriteSnapshot(ctx, w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// WriteSnapshot streams the snapshot lines to w.
func (db *DB) WriteSnapshot(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)

	if err := enc.Encode(metaRecord{RecordType: "meta", Version: snapshotVersion, ExportedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		redacted := a.Redacted()
		if err := enc.Encode(accountRecord{RecordType: "account", Account: &redacted}); err != nil {
			return fmt.Errorf("failed to write account: %w", err)
		}
	}

	calendars, err := db.ListCalendars(ctx, "")
	if err != nil {
		return err
	}
	for _, c := range calendars {
		if err := enc.Encode(calendarRecord{RecordType: "calendar", Calendar: c}); err != nil {
			return fmt.Errorf("failed to write calendar: %w", err)
		}
	}

	tasks, err := db.ListTasks(ctx, TaskFilter{})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := enc.Encode(taskRecord{RecordType: "task", Task: t}); err != nil {
			return fmt.Errorf("failed to write task: %w", err)
		}
	}

	pending, err := db.ListPendingDeletions(ctx, "")
	if err != nil {
		return err
	}
	for _, pd := range pending {
		if err := enc.Encode(pendingRecord{RecordType: "pending_deletion", PendingDeletion: pd}); err != nil {
			return fmt.Errorf("failed to write pending deletion: %w", err)
		}
	}

	return nil
}

// ImportSnapshot reads a JSONL snapshot and merges it into the database.
func (db *DB) ImportSnapshot(ctx context.Context, path string) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	return db.ReadSnapshot(ctx, file)
}

// ReadSnapshot merges snapshot lines from r in one transaction. Accounts and
// calendars are matched by id, tasks by uid. Existing accounts keep their
// credentials, and tasks unknown locally get a fresh local id. Tasks whose
// calendar is not present become local-only.
func (db *DB) ReadSnapshot(ctx context.Context, r io.Reader) (*ImportResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res := &ImportResult{}
	calendars := make(map[string]bool)
	err = func() error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM calendars`)
		if err != nil {
			return fmt.Errorf("failed to query calendars: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			calendars[id] = true
		}
		return rows.Err()
	}()
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(line, &base); err != nil {
			return nil, fmt.Errorf("failed to unmarshal base record: %w", err)
		}

		switch base.RecordType {
		case "meta":
			// Skip meta
		case "account":
			rec := accountRecord{Account: &models.Account{}}
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal account: %w", err)
			}
			a := rec.Account
			_, err = tx.ExecContext(ctx, `
				INSERT INTO accounts (`+accountColumns+`)
				VALUES (?, ?, ?, ?, '', '', ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, server_url = excluded.server_url,
					username = excluded.username, server_type = excluded.server_type,
					updated_at = excluded.updated_at`,
				a.ID, a.Name, a.ServerURL, a.Username, a.ServerType, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
			if err != nil {
				return nil, fmt.Errorf("failed to import account %s: %w", a.ID, err)
			}
			res.Accounts++

		case "calendar":
			rec := calendarRecord{Calendar: &models.Calendar{}}
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal calendar: %w", err)
			}
			if err := db.upsertCalendar(ctx, tx, rec.Calendar); err != nil {
				return nil, fmt.Errorf("failed to import calendar %s: %w", rec.Calendar.ID, err)
			}
			calendars[rec.Calendar.ID] = true
			res.Calendars++

		case "task":
			rec := taskRecord{Task: &models.Task{}}
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal task: %w", err)
			}
			t := rec.Task
			if t.UID == "" {
				return nil, fmt.Errorf("task %q has no uid", t.Title)
			}
			if t.CalendarID != "" && !calendars[t.CalendarID] {
				t.CalendarID, t.AccountID = "", ""
				t.Href, t.ETag = "", ""
				t.LocalOnly, t.Synced = true, false
			}

			existing, err := db.getTask(ctx, tx, `uid = ?`, t.UID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				t.ID = existing.ID
				err = db.updateTask(ctx, tx, t)
			} else {
				t.ID = uuid.New().String()
				err = db.createTask(ctx, tx, t)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to import task %s: %w", t.UID, err)
			}
			res.Tasks++

		case "pending_deletion":
			rec := pendingRecord{PendingDeletion: &models.PendingDeletion{}}
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal pending deletion: %w", err)
			}
			if err := addPendingDeletion(ctx, tx, rec.PendingDeletion); err != nil {
				return nil, err
			}
			res.PendingDeletions++
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	db.triggerChange(ctx)
	return res, nil
}
