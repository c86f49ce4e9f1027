package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/internal/reconcile"
)

// SyncCalendar reconciles one calendar with its server. A second call for the
// same calendar while one is running fails with ErrSyncInProgress.
func (s *Service) SyncCalendar(ctx context.Context, calendarID string) (*reconcile.Result, error) {
	if !s.begin(calendarID) {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, ErrSyncInProgress)
	}
	defer s.end(calendarID)

	cal, err := s.db.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, notFound("calendar", calendarID)
	}

	c, err := s.client(ctx, cal.AccountID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Sync(ctx, c, cal)
	if errors.Is(err, caldav.ErrAuthenticationFailed) {
		// Force discovery on the next attempt.
		s.registry.Invalidate(cal.AccountID)
	}
	return res, err
}

// SyncAll syncs every stored calendar in turn. Failures are collected per
// calendar and do not stop the others.
func (s *Service) SyncAll(ctx context.Context) ([]*reconcile.Result, error) {
	cals, err := s.db.ListCalendars(ctx, "")
	if err != nil {
		return nil, err
	}

	var (
		results []*reconcile.Result
		errs    []error
	)
	for _, cal := range cals {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.SyncCalendar(ctx, cal.ID)
		if err != nil {
			s.logger.Printf("sync %s failed: %v", cal.ID, err)
			errs = append(errs, fmt.Errorf("calendar %s: %w", cal.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (s *Service) begin(calendarID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[calendarID] {
		return false
	}
	s.inflight[calendarID] = true
	return true
}

func (s *Service) end(calendarID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, calendarID)
}
