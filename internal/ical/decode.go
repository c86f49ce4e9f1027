package ical

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tasksync/pkg/models"
)

// ErrNoTodo is returned when the input holds no VTODO component.
var ErrNoTodo = errors.New("no VTODO component found")

const untitledTask = "Untitled Task"

// Descriptions some mobile clients insert into every new task.
var placeholderDescriptions = map[string]bool{
	"Default Tasks.org description": true,
	"Created with OpenTasks":        true,
}

type alarm struct {
	trigger property
}

// Decode parses the first VTODO of a VCALENDAR into a task. Only fields that
// Encode writes are recovered; everything else is ignored.
func Decode(data string) (*models.Task, error) {
	props, alarms, ok := extractTodo(Unfold(data))
	if !ok {
		return nil, ErrNoTodo
	}

	t := &models.Task{Priority: models.PriorityNone}
	var (
		sortOrder    int64
		hasSortOrder bool
		hasStatus    bool
		stamp        time.Time
	)

	for _, p := range props {
		switch p.Name {
		case "UID":
			t.UID = strings.TrimSpace(p.Value)
		case "SUMMARY":
			t.Title = UnescapeText(p.Value)
		case "DESCRIPTION":
			desc := UnescapeText(p.Value)
			if placeholderDescriptions[strings.TrimSpace(desc)] {
				desc = ""
			}
			t.Description = desc
		case "STATUS":
			hasStatus = true
			if strings.EqualFold(strings.TrimSpace(p.Value), "COMPLETED") {
				t.Completed = true
			}
		case "COMPLETED":
			if v, _, err := parseDateTime(p); err == nil {
				t.CompletedAt = &v
			}
		case "PRIORITY":
			if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
				t.Priority = decodePriority(n)
			}
		case "DTSTART":
			if v, allDay, err := parseDateTime(p); err == nil {
				t.Start, t.StartAllDay = &v, allDay
			}
		case "DUE":
			if v, allDay, err := parseDateTime(p); err == nil {
				t.Due, t.DueAllDay = &v, allDay
			}
		case "CREATED":
			if v, _, err := parseDateTime(p); err == nil {
				t.CreatedAt = v
			}
		case "LAST-MODIFIED":
			if v, _, err := parseDateTime(p); err == nil {
				t.ModifiedAt = v
			}
		case "DTSTAMP":
			if v, _, err := parseDateTime(p); err == nil {
				stamp = v
			}
		case "CATEGORIES":
			for _, tag := range splitEscaped(p.Value, ',') {
				if tag = strings.TrimSpace(tag); tag != "" {
					t.Tags = append(t.Tags, tag)
				}
			}
		case "RELATED-TO":
			reltype := strings.ToUpper(p.param("RELTYPE"))
			if reltype == "" || reltype == "PARENT" {
				t.ParentUID = strings.TrimSpace(p.Value)
			}
		case "X-APPLE-SORT-ORDER":
			if n, err := parseNumber(p.Value); err == nil {
				sortOrder, hasSortOrder = n, true
			}
		case "X-APPLE-COLLAPSED":
			v := strings.TrimSpace(p.Value)
			t.IsCollapsed = v == "1" || strings.EqualFold(v, "TRUE")
		case "X-CALDAV-TASKS-SUBTASKS":
			var subtasks []models.Subtask
			if err := json.Unmarshal([]byte(UnescapeText(p.Value)), &subtasks); err == nil && len(subtasks) > 0 {
				t.Subtasks = subtasks
			}
		case "URL":
			t.URL = strings.TrimSpace(p.Value)
		}
	}

	if !hasStatus && t.CompletedAt != nil {
		t.Completed = true
	}
	if t.UID == "" {
		t.UID = uuid.New().String()
	}
	if strings.TrimSpace(t.Title) == "" {
		t.Title = untitledTask
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = stamp
	}
	if t.ModifiedAt.IsZero() {
		t.ModifiedAt = t.CreatedAt
	}
	switch {
	case hasSortOrder:
		t.SortOrder = sortOrder
	case !t.CreatedAt.IsZero():
		t.SortOrder = AppleSeconds(t.CreatedAt)
	}

	for _, a := range alarms {
		if r, ok := resolveTrigger(a.trigger, t); ok {
			t.Reminders = append(t.Reminders, r)
		}
	}

	return t, nil
}

// decodePriority maps the RFC 5545 0-9 scale onto the four local buckets.
// Values like 3 or 7 written by other clients land in the nearest bucket.
func decodePriority(n int) models.Priority {
	switch {
	case n >= 1 && n <= 4:
		return models.PriorityHigh
	case n == 5:
		return models.PriorityMedium
	case n >= 6 && n <= 9:
		return models.PriorityLow
	default:
		return models.PriorityNone
	}
}

func parseNumber(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// extractTodo returns the properties of the first VTODO and the TRIGGER of
// each of its VALARMs. Other nested components are skipped.
func extractTodo(text string) ([]property, []alarm, bool) {
	var (
		props  []property
		alarms []alarm
		inTodo bool
		found  bool
		stack  []string
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")
		if line == "" {
			continue
		}
		p, ok := parseProperty(line)
		if !ok {
			continue
		}

		switch p.Name {
		case "BEGIN":
			comp := strings.ToUpper(strings.TrimSpace(p.Value))
			if !inTodo {
				if comp == "VTODO" {
					inTodo, found = true, true
				}
				continue
			}
			stack = append(stack, comp)
			if comp == "VALARM" && len(stack) == 1 {
				alarms = append(alarms, alarm{})
			}
			continue
		case "END":
			if !inTodo {
				continue
			}
			if len(stack) == 0 {
				return props, alarms, found
			}
			stack = stack[:len(stack)-1]
			continue
		}

		if !inTodo {
			continue
		}
		switch {
		case len(stack) == 0:
			props = append(props, p)
		case len(stack) == 1 && stack[0] == "VALARM" && p.Name == "TRIGGER":
			alarms[len(alarms)-1] = alarm{trigger: p}
		}
	}

	return props, alarms, found
}

// resolveTrigger turns a VALARM trigger into an absolute reminder time.
// Relative triggers are anchored on DTSTART (RELATED=START, the default) or
// DUE (RELATED=END), falling back to whichever of the two exists.
func resolveTrigger(a property, t *models.Task) (time.Time, bool) {
	if a.Name == "" {
		return time.Time{}, false
	}
	if strings.EqualFold(a.param("VALUE"), "DATE-TIME") || strings.HasSuffix(strings.TrimSpace(a.Value), "Z") {
		v, _, err := parseDateTime(a)
		return v, err == nil
	}

	offset, err := parseDuration(a.Value)
	if err != nil {
		return time.Time{}, false
	}
	first, second := t.Start, t.Due
	if strings.EqualFold(a.param("RELATED"), "END") {
		first, second = t.Due, t.Start
	}
	switch {
	case first != nil:
		return first.Add(offset), true
	case second != nil:
		return second.Add(offset), true
	}
	return time.Time{}, false
}
