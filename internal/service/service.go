// Package service exposes the operations the outer surfaces (CLI, MCP, HTTP)
// call. It owns the account registry and serializes syncs per calendar.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/reconcile"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrInvalidMove    = errors.New("invalid move")
	ErrInvalidTask    = errors.New("invalid task")
)

type Service struct {
	db       *db.DB
	registry *caldav.Registry
	engine   *reconcile.Engine
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// New wires a service over an initialized database. A nil logger discards.
func New(database *db.DB, registry *caldav.Registry, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if registry == nil {
		registry = caldav.NewRegistry(nil, logger)
	}
	return &Service{
		db:       database,
		registry: registry,
		engine:   reconcile.NewEngine(database, logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]bool),
	}
}

// client returns the cached connection for an account, connecting on first use.
func (s *Service) client(ctx context.Context, accountID string) (*caldav.Client, error) {
	c, err := s.registry.Client(accountID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, caldav.ErrNotConnected) {
		return nil, err
	}

	acct, err := s.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return s.registry.Connect(ctx, acct)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
