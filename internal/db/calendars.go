package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ldi/tasksync/pkg/models"
)

const calendarColumns = `id, account_id, display_name, color, icon, ctag, sync_token, components, created_at, updated_at`

// UpsertCalendar stores a calendar as reported by the server. The local-only
// icon of an existing row is kept.
func (db *DB) UpsertCalendar(ctx context.Context, c *models.Calendar) error {
	if err := db.upsertCalendar(ctx, db.DB, c); err != nil {
		return err
	}
	db.triggerChange(ctx)
	return nil
}

func (db *DB) upsertCalendar(ctx context.Context, exec executor, c *models.Calendar) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := exec.ExecContext(ctx, `
		INSERT INTO calendars (`+calendarColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			display_name = excluded.display_name,
			color = excluded.color,
			icon = CASE WHEN excluded.icon != '' THEN excluded.icon ELSE calendars.icon END,
			ctag = excluded.ctag,
			sync_token = excluded.sync_token,
			components = excluded.components,
			updated_at = excluded.updated_at`,
		c.ID, c.AccountID, c.DisplayName, c.Color, c.Icon, c.CTag, c.SyncToken,
		strings.Join(c.Components, ","), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar: %w", err)
	}
	return nil
}

// GetCalendar retrieves a calendar by its URL.
func (db *DB) GetCalendar(ctx context.Context, id string) (*models.Calendar, error) {
	row := db.QueryRowContext(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id)
	c, err := scanCalendar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar: %w", err)
	}
	return c, nil
}

// ListCalendars returns the calendars of one account, or of all accounts when
// accountID is empty.
func (db *DB) ListCalendars(ctx context.Context, accountID string) ([]*models.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY display_name, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer rows.Close()

	var calendars []*models.Calendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		calendars = append(calendars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return calendars, nil
}

// UpdateCalendarFields sets the display name, color and icon of a calendar.
func (db *DB) UpdateCalendarFields(ctx context.Context, c *models.Calendar) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE calendars SET display_name = ?, color = ?, icon = ?, updated_at = ?
		WHERE id = ?`,
		c.DisplayName, c.Color, c.Icon, formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update calendar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("calendar not found: %s", c.ID)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteCalendar removes a calendar, its tasks and its pending deletions.
func (db *DB) DeleteCalendar(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteCalendar(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func deleteCalendar(ctx context.Context, exec executor, id string) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM pending_deletions WHERE calendar_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending deletions: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM calendars WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}
	return nil
}

// ReplaceCalendars makes the stored calendars of an account match the given
// set: new ones are inserted, existing ones refreshed and missing ones deleted
// along with their tasks.
func (db *DB) ReplaceCalendars(ctx context.Context, accountID string, calendars []*models.Calendar) (removed []string, err error) {
	existing, err := db.ListCalendars(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(calendars))
	for _, c := range calendars {
		c.AccountID = accountID
		keep[c.ID] = true
		if err := db.upsertCalendar(ctx, tx, c); err != nil {
			return nil, err
		}
	}
	for _, c := range existing {
		if keep[c.ID] {
			continue
		}
		if err := deleteCalendar(ctx, tx, c.ID); err != nil {
			return nil, err
		}
		removed = append(removed, c.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return removed, nil
}

func scanCalendar(s scanner) (*models.Calendar, error) {
	c := &models.Calendar{}
	var components, created, updated string
	if err := s.Scan(&c.ID, &c.AccountID, &c.DisplayName, &c.Color, &c.Icon, &c.CTag, &c.SyncToken, &components, &created, &updated); err != nil {
		return nil, err
	}
	if components != "" {
		c.Components = strings.Split(components, ",")
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return c, nil
}
