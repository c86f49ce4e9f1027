package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/ical"
	"github.com/ldi/tasksync/internal/ordering"
	"github.com/ldi/tasksync/pkg/models"
)

// ListTasks returns stored tasks matching the filter.
func (s *Service) ListTasks(ctx context.Context, f db.TaskFilter) ([]*models.Task, error) {
	return s.db.ListTasks(ctx, f)
}

func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := s.db.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFound("task", id)
	}
	return t, nil
}

// CreateTask stores a new unsynced task. A task with a parent joins the
// parent's calendar; a task without a calendar is local only.
func (s *Service) CreateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.Priority == "" {
		t.Priority = models.PriorityNone
	}
	if !t.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}

	if t.ParentUID != "" {
		parent, err := s.db.GetTaskByUID(ctx, t.ParentUID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, notFound("parent task", t.ParentUID)
		}
		t.CalendarID = parent.CalendarID
	}
	if err := s.assignCalendar(ctx, t, t.CalendarID); err != nil {
		return nil, err
	}

	now := s.now()
	t.ID = ""
	if t.UID == "" {
		t.UID = uuid.New().String()
	}
	t.Href, t.ETag, t.Synced = "", "", false
	t.CreatedAt, t.ModifiedAt = now, now
	if t.SortOrder == 0 {
		t.SortOrder = ical.AppleSeconds(now)
	}
	if t.Completed && t.CompletedAt == nil {
		t.CompletedAt = &now
	}

	if err := s.db.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask applies the editable fields of t to the stored task with the same
// id and marks it dirty. Sync state and position are not taken from t; use
// MoveTask to reposition. Changing the calendar carries the subtree along; a
// task whose parent stays behind becomes a root of the new calendar.
func (s *Service) UpdateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	existing, err := s.GetTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if t.Priority == "" {
		t.Priority = existing.Priority
	}
	if !t.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}

	now := s.now()
	updated := existing.Clone()
	updated.Title = title
	updated.Description = t.Description
	updated.Priority = t.Priority
	updated.Start, updated.StartAllDay = t.Start, t.StartAllDay
	updated.Due, updated.DueAllDay = t.Due, t.DueAllDay
	updated.URL = t.URL
	updated.Reminders = t.Reminders
	updated.Tags = t.Tags
	updated.Subtasks = t.Subtasks
	updated.IsCollapsed = t.IsCollapsed
	updated.Completed = t.Completed
	switch {
	case !t.Completed:
		updated.CompletedAt = nil
	case t.CompletedAt != nil:
		updated.CompletedAt = t.CompletedAt
	case existing.CompletedAt == nil:
		updated.CompletedAt = &now
	}
	updated.MarkDirty(now)

	changed := []*models.Task{updated}
	var pending []*models.PendingDeletion
	if t.CalendarID != existing.CalendarID {
		all, err := s.db.ListTasks(ctx, db.TaskFilter{})
		if err != nil {
			return nil, err
		}
		forest := ordering.New(all)
		for _, d := range forest.Descendants(existing.ID) {
			changed = append(changed, d)
		}
		// A parent left behind in the old calendar cannot keep the task; it
		// becomes the last root of the new one.
		if p := forest.Parent(existing.ID); p != nil && p.CalendarID != t.CalendarID {
			updated.ParentUID = ""
			updated.SortOrder = appendRootOrder(forest.Children(""), t.CalendarID, existing.ID)
		}
		for _, c := range changed {
			if pd := detach(c); pd != nil {
				pending = append(pending, pd)
			}
			if err := s.assignCalendar(ctx, c, t.CalendarID); err != nil {
				return nil, err
			}
			c.MarkDirty(now)
		}
	}

	if err := s.db.UpdateTasks(ctx, changed, pending); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task and its descendants. Tasks known to the server are
// queued for deletion there; the rest are gone immediately. It returns the
// number of tasks removed.
func (s *Service) DeleteTask(ctx context.Context, id string) (int, error) {
	if _, err := s.GetTask(ctx, id); err != nil {
		return 0, err
	}
	all, err := s.db.ListTasks(ctx, db.TaskFilter{})
	if err != nil {
		return 0, err
	}
	forest := ordering.New(all)
	doomed := append([]*models.Task{forest.Task(id)}, forest.Descendants(id)...)

	ids := make([]string, 0, len(doomed))
	var pending []*models.PendingDeletion
	for _, t := range doomed {
		ids = append(ids, t.ID)
		if pd := detach(t); pd != nil {
			pending = append(pending, pd)
		}
	}
	if err := s.db.DeleteTasks(ctx, ids, pending); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MoveTask drops movedID at targetID's row with the given indent and stores
// every task whose position, parent or calendar changed. A rejected move
// (onto its own descendant, or involving a hidden task) changes nothing and
// returns ErrInvalidMove.
func (s *Service) MoveTask(ctx context.Context, movedID, targetID string, indent int) ([]*models.Task, error) {
	if _, err := s.GetTask(ctx, movedID); err != nil {
		return nil, err
	}
	if _, err := s.GetTask(ctx, targetID); err != nil {
		return nil, err
	}
	all, err := s.db.ListTasks(ctx, db.TaskFilter{})
	if err != nil {
		return nil, err
	}

	before := make(map[string]models.Task, len(all))
	for _, t := range all {
		before[t.ID] = *t
	}

	forest := ordering.New(all)
	changed, ok := forest.Move(movedID, targetID, indent)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be placed at %s", ErrInvalidMove, movedID, targetID)
	}

	now := s.now()
	var pending []*models.PendingDeletion
	for _, t := range changed {
		old := before[t.ID]
		if t.CalendarID != old.CalendarID {
			moved := *t
			moved.CalendarID, moved.AccountID = old.CalendarID, old.AccountID
			if pd := detach(&moved); pd != nil {
				pending = append(pending, pd)
			}
			t.Href, t.ETag = "", ""
			t.LocalOnly = t.CalendarID == ""
		}
		t.MarkDirty(now)
	}

	if err := s.db.UpdateTasks(ctx, changed, pending); err != nil {
		return nil, err
	}
	return changed, nil
}

// ToggleCollapsed flips whether a task's children are shown. The flag is
// synced, so the task becomes dirty.
func (s *Service) ToggleCollapsed(ctx context.Context, id string) (*models.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t.IsCollapsed = !t.IsCollapsed
	t.MarkDirty(s.now())
	if err := s.db.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FlattenCalendar returns the outline of a calendar, or of every task when
// calendarID is empty. Collapsed subtrees are hidden unless all is set.
func (s *Service) FlattenCalendar(ctx context.Context, calendarID string, all bool) ([]ordering.Item, error) {
	tasks, err := s.db.ListTasks(ctx, db.TaskFilter{CalendarID: calendarID})
	if err != nil {
		return nil, err
	}
	forest := ordering.New(tasks)
	if all {
		return forest.FlattenAll(), nil
	}
	return forest.Flatten(), nil
}

// appendRootOrder returns a sort order placing a task after every root of
// calendarID other than skipID.
func appendRootOrder(roots []*models.Task, calendarID, skipID string) int64 {
	var n, last int64
	for _, r := range roots {
		if r.CalendarID != calendarID || r.ID == skipID {
			continue
		}
		n++
		if r.SortOrder > last {
			last = r.SortOrder
		}
	}
	order := (n + 1) * ordering.SortStep
	if order <= last {
		order = last + ordering.SortStep
	}
	return order
}

// assignCalendar points t at calendarID, or makes it local only when empty.
func (s *Service) assignCalendar(ctx context.Context, t *models.Task, calendarID string) error {
	if calendarID == "" {
		t.CalendarID, t.AccountID, t.LocalOnly = "", "", true
		return nil
	}
	cal, err := s.db.GetCalendar(ctx, calendarID)
	if err != nil {
		return err
	}
	if cal == nil {
		return notFound("calendar", calendarID)
	}
	t.CalendarID, t.AccountID, t.LocalOnly = cal.ID, cal.AccountID, false
	return nil
}

// detach clears t's server location and returns the deletion to queue for it,
// or nil when the server never had it.
func detach(t *models.Task) *models.PendingDeletion {
	if t.Href == "" || t.CalendarID == "" {
		t.Href, t.ETag = "", ""
		return nil
	}
	pd := &models.PendingDeletion{
		UID:        t.UID,
		Href:       t.Href,
		ETag:       t.ETag,
		AccountID:  t.AccountID,
		CalendarID: t.CalendarID,
	}
	t.Href, t.ETag = "", ""
	return pd
}

// ParseDate accepts RFC 3339 timestamps and bare dates. A bare date is all
// day. An empty string clears the value.
func ParseDate(s string) (*time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false, fmt.Errorf("%w: invalid date %q, use YYYY-MM-DD or RFC 3339", ErrInvalidTask, s)
	}
	t = t.UTC()
	return &t, false, nil
}
