package models

import "time"

type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Subtask is the legacy checklist item embedded in a task. New hierarchies use
// child tasks linked through ParentUID instead.
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type Task struct {
	ID   string `json:"id"`
	UID  string `json:"uid"`
	Href string `json:"href,omitempty"`
	ETag string `json:"etag,omitempty"`

	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Priority    Priority    `json:"priority"`
	Start       *time.Time  `json:"start,omitempty"`
	StartAllDay bool        `json:"start_all_day,omitempty"`
	Due         *time.Time  `json:"due,omitempty"`
	DueAllDay   bool        `json:"due_all_day,omitempty"`
	URL         string      `json:"url,omitempty"`
	Reminders   []time.Time `json:"reminders,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Subtasks    []Subtask   `json:"subtasks,omitempty"`

	ParentUID   string `json:"parent_uid,omitempty"`
	SortOrder   int64  `json:"sort_order"`
	IsCollapsed bool   `json:"is_collapsed,omitempty"`

	CalendarID string `json:"calendar_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	Synced     bool   `json:"synced"`
	LocalOnly  bool   `json:"local_only,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Start != nil {
		v := *t.Start
		c.Start = &v
	}
	if t.Due != nil {
		v := *t.Due
		c.Due = &v
	}
	c.Reminders = append([]time.Time(nil), t.Reminders...)
	c.Tags = append([]string(nil), t.Tags...)
	c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	return &c
}

// MarkDirty records a local mutation so the next sync pushes the task.
func (t *Task) MarkDirty(now time.Time) {
	t.Synced = false
	t.ModifiedAt = now
}
