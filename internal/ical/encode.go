package ical

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ldi/tasksync/pkg/models"
)

const prodID = "-//tasksync//tasksync//EN"

// Priority values written on encode. Decoding uses wider buckets, see decodePriority.
var priorityValues = map[models.Priority]int{
	models.PriorityHigh:   1,
	models.PriorityMedium: 5,
	models.PriorityLow:    9,
	models.PriorityNone:   0,
}

// Encode renders the task as a VCALENDAR holding a single VTODO.
func Encode(t *models.Task) string {
	return EncodeAt(t, time.Now())
}

// EncodeAt is Encode with an explicit DTSTAMP.
func EncodeAt(t *models.Task, now time.Time) string {
	w := &lineWriter{}

	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	modified := t.ModifiedAt
	if modified.IsZero() {
		modified = now
	}
	status := "NEEDS-ACTION"
	if t.Completed {
		status = "COMPLETED"
	}

	w.line("BEGIN:VCALENDAR")
	w.line("VERSION:2.0")
	w.line("PRODID:" + prodID)
	w.line("BEGIN:VTODO")
	w.line("UID:" + t.UID)
	w.line("DTSTAMP:" + formatUTC(now))
	w.line("CREATED:" + formatUTC(created))
	w.line("LAST-MODIFIED:" + formatUTC(modified))
	w.line("SUMMARY:" + EscapeText(t.Title))
	w.line("STATUS:" + status)
	w.line("PRIORITY:" + strconv.Itoa(priorityValues[t.Priority]))
	w.line("X-APPLE-SORT-ORDER:" + strconv.FormatInt(t.SortOrder, 10))

	if t.Description != "" {
		w.line("DESCRIPTION:" + EscapeText(t.Description))
	}
	if t.Start != nil {
		w.line(dateProperty("DTSTART", *t.Start, t.StartAllDay))
	}
	if t.Due != nil {
		w.line(dateProperty("DUE", *t.Due, t.DueAllDay))
	}
	if t.CompletedAt != nil {
		w.line("COMPLETED:" + formatUTC(*t.CompletedAt))
	}
	if len(t.Tags) > 0 {
		escaped := make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			escaped[i] = EscapeText(tag)
		}
		w.line("CATEGORIES:" + strings.Join(escaped, ","))
	}
	if t.ParentUID != "" {
		w.line("RELATED-TO;RELTYPE=PARENT:" + t.ParentUID)
	}
	if t.IsCollapsed {
		w.line("X-APPLE-COLLAPSED:1")
	}
	if len(t.Subtasks) > 0 {
		if data, err := json.Marshal(t.Subtasks); err == nil {
			w.line("X-CALDAV-TASKS-SUBTASKS:" + EscapeText(string(data)))
		}
	}
	if t.URL != "" {
		w.line("URL:" + t.URL)
	}
	for _, r := range t.Reminders {
		w.line("BEGIN:VALARM")
		w.line("ACTION:DISPLAY")
		w.line("DESCRIPTION:Reminder")
		w.line("TRIGGER;VALUE=DATE-TIME:" + formatUTC(r))
		w.line("END:VALARM")
	}

	w.line("END:VTODO")
	w.line("END:VCALENDAR")
	return w.String()
}

func dateProperty(name string, t time.Time, allDay bool) string {
	if allDay {
		return name + ";VALUE=DATE:" + t.Format(dateLayout)
	}
	return name + ":" + formatUTC(t)
}

type lineWriter struct {
	b strings.Builder
}

func (w *lineWriter) line(s string) {
	w.b.WriteString(Fold(s))
	w.b.WriteString("\r\n")
}

func (w *lineWriter) String() string {
	return w.b.String()
}
