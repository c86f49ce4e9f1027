package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/pkg/models"
)

// AddAccount connects to the server first and stores the account only when
// discovery succeeds. The account's calendars are fetched right away.
func (s *Service) AddAccount(ctx context.Context, a *models.Account) (*models.Account, []*models.Calendar, error) {
	a.ServerURL = strings.TrimSpace(a.ServerURL)
	if a.ServerURL == "" {
		return nil, nil, fmt.Errorf("server url is required")
	}
	if a.ServerType == "" {
		a.ServerType = models.ServerTypeGeneric
	}
	if a.Name == "" {
		a.Name = a.Username
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	if _, err := s.registry.Connect(ctx, a); err != nil {
		return nil, nil, err
	}
	if err := s.db.CreateAccount(ctx, a); err != nil {
		s.registry.Invalidate(a.ID)
		return nil, nil, err
	}

	cals, err := s.RefreshCalendars(ctx, a.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("account added but calendar refresh failed: %w", err)
	}
	redacted := a.Redacted()
	return &redacted, cals, nil
}

// ListAccounts returns every account without credentials.
func (s *Service) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.db.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Account, len(accounts))
	for i, a := range accounts {
		redacted := a.Redacted()
		out[i] = &redacted
	}
	return out, nil
}

// RemoveAccount forgets the connection and deletes the account with all its
// calendars, tasks and pending deletions. Nothing is deleted on the server.
func (s *Service) RemoveAccount(ctx context.Context, id string) error {
	acct, err := s.db.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return notFound("account", id)
	}
	s.registry.Invalidate(id)
	return s.db.DeleteAccount(ctx, id)
}

// Reconnect re-runs discovery for an account, replacing its cached client.
func (s *Service) Reconnect(ctx context.Context, id string) error {
	acct, err := s.db.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return notFound("account", id)
	}
	_, err = s.registry.Reconnect(ctx, acct)
	return err
}
