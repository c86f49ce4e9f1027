package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/service"
	"github.com/ldi/tasksync/pkg/models"
)

// resolveTask accepts a full task id or a unique prefix of one.
func resolveTask(ctx context.Context, svc *service.Service, ref string) (*models.Task, error) {
	if t, err := svc.GetTask(ctx, ref); err == nil {
		return t, nil
	}
	tasks, err := svc.ListTasks(ctx, db.TaskFilter{})
	if err != nil {
		return nil, err
	}
	var match *models.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("task id %q is ambiguous", ref)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task %s: %w", ref, service.ErrNotFound)
	}
	return match, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Manage tasks",
	}
	cmd.AddCommand(
		newTaskListCmd(a),
		newTaskAddCmd(a),
		newTaskEditCmd(a),
		newTaskDoneCmd(a),
		newTaskRemoveCmd(a),
		newTaskMoveCmd(a),
		newTaskCollapseCmd(a),
		newTaskOutlineCmd(a),
	)
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var f db.TaskFilter
	var open bool
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if open {
				completed := false
				f.Completed = &completed
			}
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				tasks, err := svc.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(tasks))
				for _, t := range tasks {
					rows = append(rows, []string{
						shortID(t.ID),
						checkbox(t) + " " + t.Title,
						priorityLabel(t.Priority),
						formatDate(t),
						syncLabel(t),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "TITLE", "PRIORITY", "DUE", "STATE"}, rows)
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&f.CalendarID, "calendar", "", "Only tasks of this calendar")
	listCmd.Flags().StringVar(&f.AccountID, "account", "", "Only tasks of this account")
	listCmd.Flags().BoolVar(&f.LocalOnly, "local", false, "Only local tasks")
	listCmd.Flags().BoolVar(&open, "open", false, "Hide completed tasks")
	return listCmd
}

func newTaskAddCmd(a *app) *cobra.Command {
	var t models.Task
	var priority, due, start, tags string
	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t.Title = strings.Join(args, " ")
			t.Priority = models.Priority(priority)
			t.Tags = splitTags(tags)

			var err error
			if t.Due, t.DueAllDay, err = service.ParseDate(due); err != nil {
				return err
			}
			if t.Start, t.StartAllDay, err = service.ParseDate(start); err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				if t.ParentUID != "" {
					// Accept a task id for the parent as well as a uid.
					if parent, err := resolveTask(ctx, svc, t.ParentUID); err == nil {
						t.ParentUID = parent.UID
					}
				}
				created, err := svc.CreateTask(ctx, &t)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Created task %s %s", shortID(created.ID), created.Title)
				return nil
			})
		},
	}
	addCmd.Flags().StringVarP(&t.CalendarID, "calendar", "c", "", "Calendar URL (local only when omitted)")
	addCmd.Flags().StringVar(&t.ParentUID, "parent", "", "Parent task id or uid")
	addCmd.Flags().StringVarP(&t.Description, "notes", "n", "", "Notes")
	addCmd.Flags().StringVarP(&priority, "priority", "p", string(models.PriorityNone), "none, low, medium or high")
	addCmd.Flags().StringVarP(&due, "due", "d", "", "Due date (YYYY-MM-DD or RFC 3339)")
	addCmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD or RFC 3339)")
	addCmd.Flags().StringVar(&t.URL, "url", "", "Link")
	addCmd.Flags().StringVar(&tags, "tags", "", "Comma separated tags")
	return addCmd
}

func newTaskEditCmd(a *app) *cobra.Command {
	var title, notes, priority, due, start, url, tags, calendar string
	editCmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				t, err := resolveTask(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if flags.Changed("title") {
					t.Title = title
				}
				if flags.Changed("notes") {
					t.Description = notes
				}
				if flags.Changed("priority") {
					t.Priority = models.Priority(priority)
				}
				if flags.Changed("due") {
					if t.Due, t.DueAllDay, err = service.ParseDate(due); err != nil {
						return err
					}
				}
				if flags.Changed("start") {
					if t.Start, t.StartAllDay, err = service.ParseDate(start); err != nil {
						return err
					}
				}
				if flags.Changed("url") {
					t.URL = url
				}
				if flags.Changed("tags") {
					t.Tags = splitTags(tags)
				}
				if flags.Changed("calendar") {
					t.CalendarID = calendar
				}

				updated, err := svc.UpdateTask(ctx, t)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Updated task %s %s", shortID(updated.ID), updated.Title)
				return nil
			})
		},
	}
	editCmd.Flags().StringVar(&title, "title", "", "New title")
	editCmd.Flags().StringVarP(&notes, "notes", "n", "", "New notes")
	editCmd.Flags().StringVarP(&priority, "priority", "p", "", "none, low, medium or high")
	editCmd.Flags().StringVarP(&due, "due", "d", "", "Due date, empty to clear")
	editCmd.Flags().StringVar(&start, "start", "", "Start date, empty to clear")
	editCmd.Flags().StringVar(&url, "url", "", "Link, empty to clear")
	editCmd.Flags().StringVar(&tags, "tags", "", "Comma separated tags, empty to clear")
	editCmd.Flags().StringVarP(&calendar, "calendar", "c", "", "Move to this calendar, empty for local only")
	return editCmd
}

func newTaskDoneCmd(a *app) *cobra.Command {
	var undo bool
	doneCmd := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				t, err := resolveTask(ctx, svc, args[0])
				if err != nil {
					return err
				}
				t.Completed = !undo
				t.CompletedAt = nil
				if _, err := svc.UpdateTask(ctx, t); err != nil {
					return err
				}
				if undo {
					printSuccess(cmd.OutOrStdout(), "Reopened %s", t.Title)
				} else {
					printSuccess(cmd.OutOrStdout(), "Completed %s", t.Title)
				}
				return nil
			})
		},
	}
	doneCmd.Flags().BoolVar(&undo, "undo", false, "Reopen the task instead")
	return doneCmd
}

func newTaskRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <task-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task and its subtasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				t, err := resolveTask(ctx, svc, args[0])
				if err != nil {
					return err
				}
				n, err := svc.DeleteTask(ctx, t.ID)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Deleted %d task(s)", n)
				return nil
			})
		},
	}
}

func newTaskMoveCmd(a *app) *cobra.Command {
	var indent int
	moveCmd := &cobra.Command{
		Use:   "move <task-id> <target-id>",
		Short: "Move a task to the target's place in the outline",
		Long: `Moves the task (with its subtasks) to the row of the target. --indent sets the
depth of the moved task; it is capped at one level below the row above it, so
--indent with a value greater than the target's depth nests it under the target.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				moved, err := resolveTask(ctx, svc, args[0])
				if err != nil {
					return err
				}
				target, err := resolveTask(ctx, svc, args[1])
				if err != nil {
					return err
				}
				changed, err := svc.MoveTask(ctx, moved.ID, target.ID, indent)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Moved %s (%d task(s) changed)", moved.Title, len(changed))
				return nil
			})
		},
	}
	moveCmd.Flags().IntVar(&indent, "indent", 0, "Depth of the moved task")
	return moveCmd
}

func newTaskCollapseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "collapse <task-id>",
		Short: "Collapse or expand a task's subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				t, err := resolveTask(ctx, svc, args[0])
				if err != nil {
					return err
				}
				t, err = svc.ToggleCollapsed(ctx, t.ID)
				if err != nil {
					return err
				}
				state := "Expanded"
				if t.IsCollapsed {
					state = "Collapsed"
				}
				printSuccess(cmd.OutOrStdout(), "%s %s", state, t.Title)
				return nil
			})
		},
	}
}

func newTaskOutlineCmd(a *app) *cobra.Command {
	var calendarID string
	var all bool
	outlineCmd := &cobra.Command{
		Use:   "outline",
		Short: "Show tasks as an indented tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				items, err := svc.FlattenCalendar(ctx, calendarID, all)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, item := range items {
					marker := " "
					if item.HasChildren {
						marker = "▾"
						if item.Task.IsCollapsed && !all {
							marker = "▸"
						}
					}
					line := fmt.Sprintf("%s%s %s %s", strings.Repeat("  ", item.Depth), marker, checkbox(item.Task), item.Task.Title)
					if p := priorityLabel(item.Task.Priority); p != "" {
						line += " " + p
					}
					fmt.Fprintf(out, "%s  %s\n", line, mutedStyle.Render(shortID(item.Task.ID)))
				}
				return nil
			})
		},
	}
	outlineCmd.Flags().StringVarP(&calendarID, "calendar", "c", "", "Calendar URL (all tasks when omitted)")
	outlineCmd.Flags().BoolVar(&all, "all", false, "Show children of collapsed tasks")
	return outlineCmd
}
