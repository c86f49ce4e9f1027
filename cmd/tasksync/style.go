package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ldi/tasksync/internal/reconcile"
	"github.com/ldi/tasksync/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	}
)

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}

func printFailure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, failedStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func checkbox(t *models.Task) string {
	if t.Completed {
		return "[x]"
	}
	return "[ ]"
}

func priorityLabel(p models.Priority) string {
	if p == models.PriorityNone || p == "" {
		return ""
	}
	if style, ok := priorityStyles[p]; ok {
		return style.Render(string(p))
	}
	return string(p)
}

func syncLabel(t *models.Task) string {
	switch {
	case t.LocalOnly:
		return mutedStyle.Render("local")
	case t.Synced:
		return "synced"
	default:
		return "pending"
	}
}

func formatDate(t *models.Task) string {
	if t.Due == nil {
		return ""
	}
	if t.DueAllDay {
		return t.Due.Format("2006-01-02")
	}
	return t.Due.Local().Format("2006-01-02 15:04")
}

func summarizeResult(res *reconcile.Result) string {
	parts := []string{
		fmt.Sprintf("%d created", res.Created),
		fmt.Sprintf("%d updated", res.Updated),
		fmt.Sprintf("%d deleted", res.Deleted),
		fmt.Sprintf("%d pushed", res.Pushed),
	}
	if res.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicts", res.Conflicts))
	}
	if res.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", res.Failed))
	}
	if res.DeletionsPending > 0 {
		parts = append(parts, fmt.Sprintf("%d deletions pending", res.DeletionsPending))
	}
	return strings.Join(parts, ", ")
}
