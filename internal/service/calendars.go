package service

import (
	"context"
	"fmt"

	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/pkg/models"
)

// RefreshCalendars replaces the stored calendars of an account with the
// server's current set. Calendars gone from the server lose their tasks.
func (s *Service) RefreshCalendars(ctx context.Context, accountID string) ([]*models.Calendar, error) {
	c, err := s.client(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cals, err := c.FetchCalendars(ctx)
	if err != nil {
		return nil, err
	}
	removed, err := s.db.ReplaceCalendars(ctx, accountID, cals)
	if err != nil {
		return nil, err
	}
	for _, id := range removed {
		s.logger.Printf("calendar %s disappeared from the server, removed locally", id)
	}
	return s.db.ListCalendars(ctx, accountID)
}

// ListCalendars returns the stored calendars of one account, or all of them.
func (s *Service) ListCalendars(ctx context.Context, accountID string) ([]*models.Calendar, error) {
	return s.db.ListCalendars(ctx, accountID)
}

// CreateCalendar creates a task calendar on the server and stores it.
func (s *Service) CreateCalendar(ctx context.Context, accountID, displayName, color string) (*models.Calendar, error) {
	if displayName == "" {
		return nil, fmt.Errorf("display name is required")
	}
	c, err := s.client(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cal, err := c.CreateCalendar(ctx, displayName, color)
	if err != nil {
		return nil, err
	}
	if err := s.db.UpsertCalendar(ctx, cal); err != nil {
		return nil, err
	}
	return cal, nil
}

// CalendarUpdate lists the fields to change. Icon is local only.
type CalendarUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

// UpdateCalendar pushes name and color to the server and stores only what the
// server accepted. The rejected property names are returned.
func (s *Service) UpdateCalendar(ctx context.Context, id string, u CalendarUpdate) (*models.Calendar, []string, error) {
	cal, err := s.db.GetCalendar(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if cal == nil {
		return nil, nil, notFound("calendar", id)
	}

	var failed []string
	if u.DisplayName != nil || u.Color != nil {
		c, err := s.client(ctx, cal.AccountID)
		if err != nil {
			return nil, nil, err
		}
		failed, err = c.UpdateCalendar(ctx, id, caldav.CalendarChanges{DisplayName: u.DisplayName, Color: u.Color})
		if err != nil {
			return nil, nil, err
		}
	}

	rejected := make(map[string]bool, len(failed))
	for _, name := range failed {
		rejected[name] = true
	}
	if u.DisplayName != nil && !rejected["displayname"] {
		cal.DisplayName = *u.DisplayName
	}
	if u.Color != nil && !rejected["calendar-color"] {
		if normalized, ok := caldav.NormalizeColor(*u.Color); ok {
			cal.Color = normalized
		}
	}
	if u.Icon != nil {
		cal.Icon = *u.Icon
	}

	if err := s.db.UpdateCalendarFields(ctx, cal); err != nil {
		return nil, nil, err
	}
	return cal, failed, nil
}

// DeleteCalendar deletes the collection on the server, then locally. A
// calendar already gone from the server is still removed locally.
func (s *Service) DeleteCalendar(ctx context.Context, id string) error {
	cal, err := s.db.GetCalendar(ctx, id)
	if err != nil {
		return err
	}
	if cal == nil {
		return notFound("calendar", id)
	}
	c, err := s.client(ctx, cal.AccountID)
	if err != nil {
		return err
	}
	if err := c.DeleteCalendar(ctx, id); err != nil && !caldav.IsNotFound(err) {
		return err
	}
	return s.db.DeleteCalendar(ctx, id)
}
