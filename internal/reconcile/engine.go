package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/pkg/models"
)

// Remote is the server side of a sync. *caldav.Client implements it.
type Remote interface {
	FetchTasks(ctx context.Context, calendarURL string) ([]*models.Task, error)
	CreateTask(ctx context.Context, calendarURL string, t *models.Task) error
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, href, etag string) error
	FetchETag(ctx context.Context, href string) (string, error)
}

// Store is the local side of a sync.
type Store interface {
	ListTasksByCalendar(ctx context.Context, calendarID string) ([]*models.Task, error)
	CreateTask(ctx context.Context, t *models.Task) error
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	// SetSyncState records the outcome of a push. synced only sticks when the
	// row's modified_at still equals modifiedAt.
	SetSyncState(ctx context.Context, id, href, etag string, synced bool, modifiedAt time.Time) error
	ListPendingDeletions(ctx context.Context, calendarID string) ([]*models.PendingDeletion, error)
	DeletePendingDeletion(ctx context.Context, uid string) error
}

// Result counts what a sync did.
type Result struct {
	CalendarID         string `json:"calendar_id"`
	Created            int    `json:"created"`
	Updated            int    `json:"updated"`
	Deleted            int    `json:"deleted"`
	Pushed             int    `json:"pushed"`
	Conflicts          int    `json:"conflicts"`
	Failed             int    `json:"failed"`
	DeletionsConfirmed int    `json:"deletions_confirmed"`
	DeletionsPending   int    `json:"deletions_pending"`
}

// Engine runs syncs. It does not serialize them; callers must not sync the
// same calendar concurrently.
type Engine struct {
	store  Store
	logger *log.Logger
}

func NewEngine(store Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{store: store, logger: logger}
}

// Sync reconciles one calendar: pending deletions first, then fetch and merge,
// then push local changes.
func (e *Engine) Sync(ctx context.Context, remote Remote, cal *models.Calendar) (*Result, error) {
	res := &Result{CalendarID: cal.ID}

	pending, err := e.processDeletions(ctx, remote, cal, res)
	if err != nil {
		return res, err
	}

	remoteTasks, err := remote.FetchTasks(ctx, cal.ID)
	if err != nil {
		return res, fmt.Errorf("failed to fetch tasks for %s: %w", cal.ID, err)
	}
	remoteUIDs := make(map[string]bool, len(remoteTasks))
	filtered := remoteTasks[:0]
	for _, t := range remoteTasks {
		remoteUIDs[t.UID] = true
		if pending[t.UID] {
			continue
		}
		filtered = append(filtered, t)
	}

	local, err := e.store.ListTasksByCalendar(ctx, cal.ID)
	if err != nil {
		return res, fmt.Errorf("failed to list local tasks: %w", err)
	}

	plan := Partition(local, filtered)

	for _, t := range plan.Created {
		t.ID = uuid.New().String()
		t.CalendarID = cal.ID
		t.AccountID = cal.AccountID
		if err := e.store.CreateTask(ctx, t); err != nil {
			e.logger.Printf("sync %s: failed to store new task %s: %v", cal.ID, t.UID, err)
			res.Failed++
			continue
		}
		res.Created++
	}

	for _, ch := range plan.Updated {
		r := ch.Remote
		r.ID = ch.Local.ID
		r.CalendarID = cal.ID
		r.AccountID = cal.AccountID
		if !ch.Local.Synced {
			e.logger.Printf("sync %s: server copy of %s changed, discarding local edits", cal.ID, r.UID)
		}
		if err := e.store.UpdateTask(ctx, r); err != nil {
			e.logger.Printf("sync %s: failed to update task %s: %v", cal.ID, r.UID, err)
			res.Failed++
			continue
		}
		res.Updated++
	}

	for _, t := range plan.Deleted {
		if err := e.store.DeleteTask(ctx, t.ID); err != nil {
			e.logger.Printf("sync %s: failed to delete task %s: %v", cal.ID, t.UID, err)
			res.Failed++
			continue
		}
		res.Deleted++
	}

	for _, t := range plan.Push {
		if err := e.push(ctx, remote, cal, t, remoteUIDs[t.UID], res); err != nil {
			return res, err
		}
	}

	e.logger.Printf("sync %s: created=%d updated=%d deleted=%d pushed=%d conflicts=%d failed=%d",
		cal.ID, res.Created, res.Updated, res.Deleted, res.Pushed, res.Conflicts, res.Failed)
	return res, nil
}

// processDeletions retries every queued deletion of the calendar and returns
// the uids that are still pending. 404 and 410 confirm a deletion; a 412 is
// retried once without If-Match because the local delete is the later write.
func (e *Engine) processDeletions(ctx context.Context, remote Remote, cal *models.Calendar, res *Result) (map[string]bool, error) {
	queue, err := e.store.ListPendingDeletions(ctx, cal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletions: %w", err)
	}

	pending := make(map[string]bool)
	for _, pd := range queue {
		err := remote.DeleteTask(ctx, pd.Href, pd.ETag)
		if caldav.IsPreconditionFailed(err) {
			e.logger.Printf("sync %s: %s changed on server, deleting unconditionally", cal.ID, pd.UID)
			err = remote.DeleteTask(ctx, pd.Href, "")
		}
		switch {
		case err == nil, caldav.IsNotFound(err), errors.Is(err, caldav.ErrNotSynced):
			if err := e.store.DeletePendingDeletion(ctx, pd.UID); err != nil {
				return nil, fmt.Errorf("failed to clear pending deletion %s: %w", pd.UID, err)
			}
			res.DeletionsConfirmed++
		case errors.Is(err, caldav.ErrAuthenticationFailed):
			return nil, err
		default:
			e.logger.Printf("sync %s: deletion of %s not confirmed: %v", cal.ID, pd.UID, err)
			pending[pd.UID] = true
		}
	}
	res.DeletionsPending = len(pending)
	return pending, nil
}

// push writes one local task. Failures other than authentication leave the
// task unsynced for the next cycle.
func (e *Engine) push(ctx context.Context, remote Remote, cal *models.Calendar, t *models.Task, onServer bool, res *Result) error {
	modifiedAt := t.ModifiedAt

	var err error
	if t.Href == "" || !onServer {
		// Never written, or removed on the server while edited locally.
		t.Href, t.ETag = "", ""
		err = remote.CreateTask(ctx, cal.ID, t)
	} else {
		err = remote.UpdateTask(ctx, t)
	}

	switch {
	case err == nil:
	case errors.Is(err, caldav.ErrAuthenticationFailed):
		return err
	case caldav.IsPreconditionFailed(err):
		e.logger.Printf("sync %s: %s was modified on the server, will refetch", cal.ID, t.UID)
		res.Conflicts++
		return nil
	default:
		e.logger.Printf("sync %s: failed to push %s: %v", cal.ID, t.UID, err)
		res.Failed++
		return nil
	}

	if t.ETag == "" && t.Href != "" {
		etag, err := remote.FetchETag(ctx, t.Href)
		if err != nil {
			e.logger.Printf("sync %s: no etag for %s: %v", cal.ID, t.UID, err)
		}
		t.ETag = etag
	}
	t.Synced = t.ETag != "" && t.Href != ""

	if err := e.store.SetSyncState(ctx, t.ID, t.Href, t.ETag, t.Synced, modifiedAt); err != nil {
		return fmt.Errorf("failed to record sync state of %s: %w", t.UID, err)
	}
	if !t.Synced {
		res.Failed++
		return nil
	}
	res.Pushed++
	return nil
}
