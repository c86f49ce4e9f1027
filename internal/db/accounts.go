package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/pkg/models"
)

const accountColumns = `id, name, server_url, username, password, token, server_type, created_at, updated_at`

// CreateAccount inserts a new account. If a.ID is empty, a new UUID is generated.
func (db *DB) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.ServerType == "" {
		a.ServerType = models.ServerTypeGeneric
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.ServerURL, a.Username, a.Password, a.Token, a.ServerType,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// GetAccount retrieves an account by ID.
func (db *DB) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by name.
func (db *DB) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return accounts, nil
}

// UpdateAccount updates the connection settings of an account.
func (db *DB) UpdateAccount(ctx context.Context, a *models.Account) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, server_url = ?, username = ?, password = ?, token = ?, server_type = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.ServerURL, a.Username, a.Password, a.Token, a.ServerType, formatTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account not found: %s", a.ID)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteAccount removes an account together with its calendars, tasks and
// pending deletions.
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_deletions WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending deletions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	a := &models.Account{}
	var created, updated string
	if err := s.Scan(&a.ID, &a.Name, &a.ServerURL, &a.Username, &a.Password, &a.Token, &a.ServerType, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return a, nil
}
