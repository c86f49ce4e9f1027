package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ldi/tasksync/internal/reconcile"
	"github.com/ldi/tasksync/internal/service"
	"github.com/ldi/tasksync/pkg/models"
)

// Syncer is the part of the service the scheduler drives.
type Syncer interface {
	ListCalendars(ctx context.Context, accountID string) ([]*models.Calendar, error)
	SyncCalendar(ctx context.Context, calendarID string) (*reconcile.Result, error)
}

type failureInfo struct {
	calendarID string
	failedAt   time.Time
	failCount  int
	lastErr    string
}

// CalendarStatus is the last known sync outcome of one calendar.
type CalendarStatus struct {
	CalendarID string            `json:"calendar_id"`
	Running    bool              `json:"running"`
	LastSync   time.Time         `json:"last_sync,omitempty"`
	LastResult *reconcile.Result `json:"last_result,omitempty"`
	FailCount  int               `json:"fail_count"`
	LastError  string            `json:"last_error,omitempty"`
}

// Scheduler syncs every calendar periodically, at most maxWorkers at a time
// and never the same calendar twice at once. A failed calendar is simply
// tried again on the next tick.
type Scheduler struct {
	syncer     Syncer
	maxWorkers int
	logger     *log.Logger

	// Interval between passes. Zero runs a single pass.
	Interval time.Duration

	running   map[string]bool
	results   map[string]*reconcile.Result
	lastSync  map[string]time.Time
	runningMu sync.RWMutex

	failures   map[string]*failureInfo
	failuresMu sync.RWMutex

	passes   int
	passesMu sync.Mutex

	msgChan chan Event
}

// Event reports the progress of a pass to an optional listener.
type Event struct {
	CalendarID string
	Result     *reconcile.Result
	Err        error
}

func New(syncer Syncer, maxWorkers int, logger *log.Logger) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{
		syncer:     syncer,
		maxWorkers: maxWorkers,
		logger:     logger,
		running:    make(map[string]bool),
		results:    make(map[string]*reconcile.Result),
		lastSync:   make(map[string]time.Time),
		failures:   make(map[string]*failureInfo),
		msgChan:    make(chan Event, 100),
	}
}

// Start runs a pass immediately and then one per Interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.msgChan)

	s.RunOnce(ctx)
	if s.Interval == 0 {
		return nil
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Events delivers one event per calendar sync. Events are dropped when
// nobody reads them.
func (s *Scheduler) Events() <-chan Event {
	return s.msgChan
}

// RunOnce syncs every calendar once and waits for all of them.
func (s *Scheduler) RunOnce(ctx context.Context) {
	cals, err := s.syncer.ListCalendars(ctx, "")
	if err != nil {
		s.logger.Printf("scheduler: failed to list calendars: %v", err)
		return
	}

	sem := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup
	for _, cal := range cals {
		if !s.claim(cal.ID) {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			s.release(cal.ID, nil)
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runCalendar(ctx, id)
		}(cal.ID)
	}
	wg.Wait()

	s.passesMu.Lock()
	s.passes++
	s.passesMu.Unlock()
}

func (s *Scheduler) runCalendar(ctx context.Context, calendarID string) {
	res, err := s.syncer.SyncCalendar(ctx, calendarID)
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		// Someone else is syncing it right now.
		s.release(calendarID, nil)
		return
	case err != nil:
		s.logger.Printf("scheduler: sync %s failed: %v", calendarID, err)
		s.recordFailure(calendarID, err)
	default:
		s.clearFailure(calendarID)
	}
	s.release(calendarID, res)
	s.sendMsg(Event{CalendarID: calendarID, Result: res, Err: err})
}

func (s *Scheduler) claim(calendarID string) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running[calendarID] {
		return false
	}
	s.running[calendarID] = true
	return true
}

func (s *Scheduler) release(calendarID string, res *reconcile.Result) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	delete(s.running, calendarID)
	if res != nil {
		s.results[calendarID] = res
		s.lastSync[calendarID] = time.Now()
	}
}

func (s *Scheduler) recordFailure(calendarID string, err error) {
	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()

	info, exists := s.failures[calendarID]
	if exists {
		info.failCount++
		info.failedAt = time.Now()
		info.lastErr = err.Error()
	} else {
		s.failures[calendarID] = &failureInfo{
			calendarID: calendarID,
			failedAt:   time.Now(),
			failCount:  1,
			lastErr:    err.Error(),
		}
	}
}

func (s *Scheduler) clearFailure(calendarID string) {
	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()
	delete(s.failures, calendarID)
}

// Status returns the last outcome of every calendar seen so far.
func (s *Scheduler) Status() []CalendarStatus {
	s.runningMu.RLock()
	byID := make(map[string]*CalendarStatus)
	get := func(id string) *CalendarStatus {
		st, ok := byID[id]
		if !ok {
			st = &CalendarStatus{CalendarID: id}
			byID[id] = st
		}
		return st
	}
	for id := range s.running {
		get(id).Running = true
	}
	for id, res := range s.results {
		st := get(id)
		st.LastResult = res
		st.LastSync = s.lastSync[id]
	}
	s.runningMu.RUnlock()

	s.failuresMu.RLock()
	for id, info := range s.failures {
		st := get(id)
		st.FailCount = info.failCount
		st.LastError = info.lastErr
	}
	s.failuresMu.RUnlock()

	out := make([]CalendarStatus, 0, len(byID))
	for _, st := range byID {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalendarID < out[j].CalendarID })
	return out
}

// Passes reports how many complete passes have run.
func (s *Scheduler) Passes() int {
	s.passesMu.Lock()
	defer s.passesMu.Unlock()
	return s.passes
}

func (s *Scheduler) sendMsg(ev Event) {
	select {
	case s.msgChan <- ev:
	default:
	}
}
