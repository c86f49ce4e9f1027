package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/pkg/models"
)

const taskColumns = `id, uid, href, etag, title, description, completed, completed_at, priority,
	start_at, start_all_day, due_at, due_all_day, url, reminders, tags, subtasks,
	parent_uid, sort_order, is_collapsed, calendar_id, account_id, synced, local_only,
	created_at, modified_at`

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	CalendarID string
	AccountID  string
	LocalOnly  bool
	Completed  *bool
}

// CreateTask inserts a new task into the database.
// If t.ID is empty, a new UUID is generated; if t.UID is empty, one is generated too.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if err := db.createTask(ctx, db.DB, t); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createTask(ctx context.Context, exec executor, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.UID == "" {
		t.UID = uuid.New().String()
	}
	if t.Priority == "" {
		t.Priority = models.PriorityNone
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.ModifiedAt.IsZero() {
		t.ModifiedAt = t.CreatedAt
	}

	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{t.ID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by its ID.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return db.getTask(ctx, db.DB, `id = ?`, id)
}

// GetTaskByUID retrieves a task by its iCalendar UID.
func (db *DB) GetTaskByUID(ctx context.Context, uid string) (*models.Task, error) {
	return db.getTask(ctx, db.DB, `uid = ?`, uid)
}

func (db *DB) getTask(ctx context.Context, exec executor, where string, arg any) (*models.Task, error) {
	row := exec.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+where, arg)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter in sort order.
func (db *DB) ListTasks(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}

	if f.CalendarID != "" {
		query += ` AND calendar_id = ?`
		args = append(args, f.CalendarID)
	}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.LocalOnly {
		query += ` AND local_only = 1`
	}
	if f.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, boolInt(*f.Completed))
	}

	query += ` ORDER BY sort_order ASC, created_at ASC, uid ASC`

	return db.queryTasks(ctx, query, args...)
}

// ListTasksByCalendar returns every task of a calendar.
func (db *DB) ListTasksByCalendar(ctx context.Context, calendarID string) ([]*models.Task, error) {
	return db.ListTasks(ctx, TaskFilter{CalendarID: calendarID})
}

// queryTasks is a helper to execute a query that returns a list of tasks.
func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// UpdateTask replaces every stored field of an existing task.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	if err := db.updateTask(ctx, db.DB, t); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// UpdateTasks writes several tasks and queues pending deletions in one
// transaction.
func (db *DB) UpdateTasks(ctx context.Context, tasks []*models.Task, pending []*models.PendingDeletion) error {
	if len(tasks) == 0 && len(pending) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pd := range pending {
		if err := addPendingDeletion(ctx, tx, pd); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		if err := db.updateTask(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) updateTask(ctx context.Context, exec executor, t *models.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	res, err := exec.ExecContext(ctx, `
		UPDATE tasks SET
			uid = ?, href = ?, etag = ?, title = ?, description = ?, completed = ?, completed_at = ?, priority = ?,
			start_at = ?, start_all_day = ?, due_at = ?, due_all_day = ?, url = ?, reminders = ?, tags = ?, subtasks = ?,
			parent_uid = ?, sort_order = ?, is_collapsed = ?, calendar_id = ?, account_id = ?, synced = ?, local_only = ?,
			created_at = ?, modified_at = ?
		WHERE id = ?`,
		append(args, t.ID)...,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

// SetSyncState records the server location and version of a task after a
// push. The synced flag is only set when modified_at still matches, so an
// edit made while the request was in flight keeps the task dirty.
func (db *DB) SetSyncState(ctx context.Context, id, href, etag string, synced bool, modifiedAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE tasks
		SET href = ?, etag = ?, synced = CASE WHEN modified_at = ? THEN ? ELSE 0 END
		WHERE id = ?`,
		href, etag, formatTime(modifiedAt), boolInt(synced), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteTask deletes a task by its ID.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteTasks removes tasks and queues pending deletions in one transaction.
func (db *DB) DeleteTasks(ctx context.Context, ids []string, pending []*models.PendingDeletion) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pd := range pending {
		if err := addPendingDeletion(ctx, tx, pd); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// taskArgs returns the column values of t in taskColumns order, without id.
func taskArgs(t *models.Task) ([]any, error) {
	reminders := make([]string, len(t.Reminders))
	for i, r := range t.Reminders {
		reminders[i] = formatTime(r)
	}
	remindersJSON, err := json.Marshal(reminders)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reminders: %w", err)
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	subtasks := t.Subtasks
	if subtasks == nil {
		subtasks = []models.Subtask{}
	}
	subtasksJSON, err := json.Marshal(subtasks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode subtasks: %w", err)
	}

	return []any{
		t.UID, t.Href, t.ETag, t.Title, t.Description, boolInt(t.Completed), formatTimePtr(t.CompletedAt), string(t.Priority),
		formatTimePtr(t.Start), boolInt(t.StartAllDay), formatTimePtr(t.Due), boolInt(t.DueAllDay), t.URL,
		string(remindersJSON), string(tagsJSON), string(subtasksJSON),
		t.ParentUID, t.SortOrder, boolInt(t.IsCollapsed), nullString(t.CalendarID), t.AccountID, boolInt(t.Synced), boolInt(t.LocalOnly),
		formatTime(t.CreatedAt), formatTime(t.ModifiedAt),
	}, nil
}

func scanTask(s scanner) (*models.Task, error) {
	t := &models.Task{}
	var (
		completedAt, startAt, dueAt, calendarID sql.NullString
		reminders, tags, subtasks               string
		created, modified                       string
		completed, startAllDay, dueAllDay       int
		collapsed, synced, localOnly            int
	)
	err := s.Scan(
		&t.ID, &t.UID, &t.Href, &t.ETag, &t.Title, &t.Description, &completed, &completedAt, &t.Priority,
		&startAt, &startAllDay, &dueAt, &dueAllDay, &t.URL, &reminders, &tags, &subtasks,
		&t.ParentUID, &t.SortOrder, &collapsed, &calendarID, &t.AccountID, &synced, &localOnly,
		&created, &modified,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed == 1
	t.StartAllDay = startAllDay == 1
	t.DueAllDay = dueAllDay == 1
	t.IsCollapsed = collapsed == 1
	t.Synced = synced == 1
	t.LocalOnly = localOnly == 1
	t.CalendarID = calendarID.String

	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if t.Start, err = parseTimePtr(startAt); err != nil {
		return nil, err
	}
	if t.Due, err = parseTimePtr(dueAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.ModifiedAt, err = parseTime(modified); err != nil {
		return nil, err
	}

	var stamps []string
	if err := json.Unmarshal([]byte(reminders), &stamps); err != nil {
		return nil, fmt.Errorf("invalid reminders: %w", err)
	}
	for _, stamp := range stamps {
		r, err := parseTime(stamp)
		if err != nil {
			return nil, err
		}
		t.Reminders = append(t.Reminders, r)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags: %w", err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
		return nil, fmt.Errorf("invalid subtasks: %w", err)
	}
	if len(t.Subtasks) == 0 {
		t.Subtasks = nil
	}
	return t, nil
}
