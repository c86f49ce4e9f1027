package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ldi/tasksync/pkg/models"
)

// AddPendingDeletion queues a server-side deletion. Queuing the same uid twice
// replaces the earlier entry.
func (db *DB) AddPendingDeletion(ctx context.Context, pd *models.PendingDeletion) error {
	if err := addPendingDeletion(ctx, db.DB, pd); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func addPendingDeletion(ctx context.Context, exec executor, pd *models.PendingDeletion) error {
	if pd.CreatedAt.IsZero() {
		pd.CreatedAt = time.Now().UTC()
	}
	_, err := exec.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_deletions (uid, href, etag, account_id, calendar_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pd.UID, pd.Href, pd.ETag, pd.AccountID, pd.CalendarID, formatTime(pd.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add pending deletion: %w", err)
	}
	return nil
}

// ListPendingDeletions returns the queued deletions of a calendar, or of all
// calendars when calendarID is empty, oldest first.
func (db *DB) ListPendingDeletions(ctx context.Context, calendarID string) ([]*models.PendingDeletion, error) {
	query := `SELECT uid, href, etag, account_id, calendar_id, created_at FROM pending_deletions`
	var args []any
	if calendarID != "" {
		query += ` WHERE calendar_id = ?`
		args = append(args, calendarID)
	}
	query += ` ORDER BY created_at, uid`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletions: %w", err)
	}
	defer rows.Close()

	var out []*models.PendingDeletion
	for rows.Next() {
		pd := &models.PendingDeletion{}
		var created string
		if err := rows.Scan(&pd.UID, &pd.Href, &pd.ETag, &pd.AccountID, &pd.CalendarID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan pending deletion: %w", err)
		}
		if pd.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("failed to parse pending deletion time: %w", err)
		}
		out = append(out, pd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// DeletePendingDeletion removes a confirmed deletion from the queue.
func (db *DB) DeletePendingDeletion(ctx context.Context, uid string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM pending_deletions WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("failed to delete pending deletion: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}
