package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/service"
	"github.com/ldi/tasksync/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server.
func NewServer(svc *service.Service) *server.MCPServer {
	s := server.NewMCPServer("tasksync", "0.1.0")

	// Accounts
	s.AddTool(mcp.NewTool("list_accounts",
		mcp.WithDescription("List configured CalDAV accounts (credentials are never returned)."),
	), listAccountsHandler(svc))

	s.AddTool(mcp.NewTool("add_account",
		mcp.WithDescription("Connect to a CalDAV server and store the account if discovery succeeds."),
		mcp.WithString("server_url", mcp.Description("Base URL of the server"), mcp.Required()),
		mcp.WithString("username", mcp.Description("Username"), mcp.Required()),
		mcp.WithString("password", mcp.Description("Password or app password")),
		mcp.WithString("token", mcp.Description("Bearer token, used instead of the password")),
		mcp.WithString("server_type", mcp.Description("rustical|radicale|baikal|nextcloud|generic (default generic)")),
		mcp.WithString("name", mcp.Description("Display name (defaults to username)")),
	), addAccountHandler(svc))

	s.AddTool(mcp.NewTool("remove_account",
		mcp.WithDescription("Remove an account with its calendars and tasks. Nothing is deleted on the server."),
		mcp.WithString("account_id", mcp.Description("Account ID"), mcp.Required()),
	), removeAccountHandler(svc))

	// Calendars
	s.AddTool(mcp.NewTool("list_calendars",
		mcp.WithDescription("List known calendars."),
		mcp.WithString("account_id", mcp.Description("Only calendars of this account")),
	), listCalendarsHandler(svc))

	s.AddTool(mcp.NewTool("refresh_calendars",
		mcp.WithDescription("Re-read the account's calendar list from the server."),
		mcp.WithString("account_id", mcp.Description("Account ID"), mcp.Required()),
	), refreshCalendarsHandler(svc))

	s.AddTool(mcp.NewTool("create_calendar",
		mcp.WithDescription("Create a task calendar on the server."),
		mcp.WithString("account_id", mcp.Description("Account ID"), mcp.Required()),
		mcp.WithString("display_name", mcp.Description("Calendar name"), mcp.Required()),
		mcp.WithString("color", mcp.Description("Color as #RRGGBB")),
	), createCalendarHandler(svc))

	s.AddTool(mcp.NewTool("update_calendar",
		mcp.WithDescription("Rename or recolor a calendar. Properties the server rejects are reported and not stored."),
		mcp.WithString("calendar_id", mcp.Description("Calendar ID (its URL)"), mcp.Required()),
		mcp.WithString("display_name", mcp.Description("New name")),
		mcp.WithString("color", mcp.Description("New color as #RRGGBB")),
		mcp.WithString("icon", mcp.Description("Local icon name")),
	), updateCalendarHandler(svc))

	s.AddTool(mcp.NewTool("delete_calendar",
		mcp.WithDescription("Delete a calendar on the server and locally."),
		mcp.WithString("calendar_id", mcp.Description("Calendar ID (its URL)"), mcp.Required()),
	), deleteCalendarHandler(svc))

	// Tasks
	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters."),
		mcp.WithString("calendar_id", mcp.Description("Filter by calendar")),
		mcp.WithString("account_id", mcp.Description("Filter by account")),
		mcp.WithBoolean("local_only", mcp.Description("Only tasks that are not synced to any calendar")),
		mcp.WithBoolean("include_completed", mcp.Description("Include completed tasks (default true)")),
	), listTasksHandler(svc))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by ID."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), getTaskHandler(svc))

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. Without a calendar it stays local only."),
		mcp.WithString("title", mcp.Description("Title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Notes")),
		mcp.WithString("calendar_id", mcp.Description("Calendar ID")),
		mcp.WithString("parent_uid", mcp.Description("UID of the parent task")),
		mcp.WithString("priority", mcp.Description("none|low|medium|high")),
		mcp.WithString("due", mcp.Description("Due date (RFC 3339 or YYYY-MM-DD for all day)")),
		mcp.WithString("start", mcp.Description("Start date (RFC 3339 or YYYY-MM-DD for all day)")),
		mcp.WithString("url", mcp.Description("Link")),
		mcp.WithString("tags", mcp.Description("Comma separated tags")),
	), createTaskHandler(svc))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields of a task. Omitted fields are left unchanged."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New notes")),
		mcp.WithBoolean("completed", mcp.Description("Completion state")),
		mcp.WithString("priority", mcp.Description("none|low|medium|high")),
		mcp.WithString("due", mcp.Description("Due date, empty to clear")),
		mcp.WithString("start", mcp.Description("Start date, empty to clear")),
		mcp.WithString("url", mcp.Description("Link, empty to clear")),
		mcp.WithString("tags", mcp.Description("Comma separated tags, empty to clear")),
		mcp.WithString("calendar_id", mcp.Description("Move the task and its subtasks to this calendar")),
	), updateTaskHandler(svc))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task and its subtasks. Server copies are removed on the next sync."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(svc))

	s.AddTool(mcp.NewTool("move_task",
		mcp.WithDescription("Place a task after the target in the outline. indent 1 nests it under the target, -1 outdents."),
		mcp.WithString("id", mcp.Description("ID of the task to move"), mcp.Required()),
		mcp.WithString("target_id", mcp.Description("ID of the task to drop after"), mcp.Required()),
		mcp.WithNumber("indent", mcp.Description("-1, 0 or 1")),
	), moveTaskHandler(svc))

	s.AddTool(mcp.NewTool("toggle_collapsed",
		mcp.WithDescription("Collapse or expand a task's subtasks in the outline."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), toggleCollapsedHandler(svc))

	s.AddTool(mcp.NewTool("get_outline",
		mcp.WithDescription("Get tasks as an indented outline."),
		mcp.WithString("calendar_id", mcp.Description("Calendar ID (all tasks when omitted)")),
		mcp.WithBoolean("all", mcp.Description("Include children of collapsed tasks")),
	), getOutlineHandler(svc))

	// Sync
	s.AddTool(mcp.NewTool("sync",
		mcp.WithDescription("Synchronize one calendar, or every calendar when none is given."),
		mcp.WithString("calendar_id", mcp.Description("Calendar ID")),
	), syncHandler(svc))

	// Snapshots
	s.AddTool(mcp.NewTool("export_snapshot",
		mcp.WithDescription("Write all accounts, calendars and tasks to a JSON lines file (without credentials)."),
		mcp.WithString("path", mcp.Description("Destination file"), mcp.Required()),
	), exportSnapshotHandler(svc))

	s.AddTool(mcp.NewTool("import_snapshot",
		mcp.WithDescription("Load a snapshot file into the database."),
		mcp.WithString("path", mcp.Description("Snapshot file"), mcp.Required()),
	), importSnapshotHandler(svc))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func listAccountsHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accounts, err := svc.ListAccounts(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"accounts": accounts})
	}
}

func addAccountHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a := &models.Account{
			ServerURL:  mcp.ParseString(request, "server_url", ""),
			Username:   mcp.ParseString(request, "username", ""),
			Password:   mcp.ParseString(request, "password", ""),
			Token:      mcp.ParseString(request, "token", ""),
			ServerType: models.ServerType(mcp.ParseString(request, "server_type", "")),
			Name:       mcp.ParseString(request, "name", ""),
		}

		account, cals, err := svc.AddAccount(ctx, a)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"account": account, "calendars": cals})
	}
}

func removeAccountHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "account_id", "")
		if err := svc.RemoveAccount(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Account removed successfully"), nil
	}
}

func listCalendarsHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cals, err := svc.ListCalendars(ctx, mcp.ParseString(request, "account_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"calendars": cals})
	}
}

func refreshCalendarsHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cals, err := svc.RefreshCalendars(ctx, mcp.ParseString(request, "account_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"calendars": cals})
	}
}

func createCalendarHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cal, err := svc.CreateCalendar(ctx,
			mcp.ParseString(request, "account_id", ""),
			mcp.ParseString(request, "display_name", ""),
			mcp.ParseString(request, "color", ""),
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(cal)
	}
}

func updateCalendarHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "calendar_id", "")

		var u service.CalendarUpdate
		args, _ := request.Params.Arguments.(map[string]any)
		if name, ok := args["display_name"].(string); ok {
			u.DisplayName = &name
		}
		if color, ok := args["color"].(string); ok {
			u.Color = &color
		}
		if icon, ok := args["icon"].(string); ok {
			u.Icon = &icon
		}

		cal, rejected, err := svc.UpdateCalendar(ctx, id, u)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"calendar": cal, "rejected": rejected})
	}
}

func deleteCalendarHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := svc.DeleteCalendar(ctx, mcp.ParseString(request, "calendar_id", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Calendar deleted successfully"), nil
	}
}

func listTasksHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := db.TaskFilter{
			CalendarID: mcp.ParseString(request, "calendar_id", ""),
			AccountID:  mcp.ParseString(request, "account_id", ""),
			LocalOnly:  mcp.ParseBoolean(request, "local_only", false),
		}
		if !mcp.ParseBoolean(request, "include_completed", true) {
			open := false
			f.Completed = &open
		}

		tasks, err := svc.ListTasks(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func getTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := svc.GetTask(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func createTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t := &models.Task{
			Title:       mcp.ParseString(request, "title", ""),
			Description: mcp.ParseString(request, "description", ""),
			CalendarID:  mcp.ParseString(request, "calendar_id", ""),
			ParentUID:   mcp.ParseString(request, "parent_uid", ""),
			Priority:    models.Priority(mcp.ParseString(request, "priority", string(models.PriorityNone))),
			URL:         mcp.ParseString(request, "url", ""),
			Tags:        splitTags(mcp.ParseString(request, "tags", "")),
		}

		var err error
		if t.Due, t.DueAllDay, err = service.ParseDate(mcp.ParseString(request, "due", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t.Start, t.StartAllDay, err = service.ParseDate(mcp.ParseString(request, "start", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		created, err := svc.CreateTask(ctx, t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(created)
	}
}

func updateTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := svc.GetTask(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			t.Title = title
		}
		if description, ok := args["description"].(string); ok {
			t.Description = description
		}
		if completed, ok := args["completed"].(bool); ok {
			t.Completed = completed
		}
		if priority, ok := args["priority"].(string); ok {
			t.Priority = models.Priority(priority)
		}
		if due, ok := args["due"].(string); ok {
			if t.Due, t.DueAllDay, err = service.ParseDate(due); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		if start, ok := args["start"].(string); ok {
			if t.Start, t.StartAllDay, err = service.ParseDate(start); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		if url, ok := args["url"].(string); ok {
			t.URL = url
		}
		if tags, ok := args["tags"].(string); ok {
			t.Tags = splitTags(tags)
		}
		if calendarID, ok := args["calendar_id"].(string); ok {
			t.CalendarID = calendarID
		}

		updated, err := svc.UpdateTask(ctx, t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(updated)
	}
}

func deleteTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := svc.DeleteTask(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted %d task(s)", n)), nil
	}
}

func moveTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		indent := mcp.ParseInt(request, "indent", 0)
		if indent < -1 || indent > 1 {
			return mcp.NewToolResultError("indent must be -1, 0 or 1"), nil
		}

		changed, err := svc.MoveTask(ctx,
			mcp.ParseString(request, "id", ""),
			mcp.ParseString(request, "target_id", ""),
			indent,
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"changed": changed})
	}
}

func toggleCollapsedHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := svc.ToggleCollapsed(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func getOutlineHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := svc.FlattenCalendar(ctx,
			mcp.ParseString(request, "calendar_id", ""),
			mcp.ParseBoolean(request, "all", false),
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"items": items})
	}
}

func syncHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if id := mcp.ParseString(request, "calendar_id", ""); id != "" {
			res, err := svc.SyncCalendar(ctx, id)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(res)
		}

		results, err := svc.SyncAll(ctx)
		out := map[string]any{"results": results}
		if err != nil {
			out["error"] = err.Error()
		}
		return jsonResult(out)
	}
}

func exportSnapshotHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := mcp.ParseString(request, "path", "")
		if err := svc.Export(ctx, path); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Snapshot written to %s", path)), nil
	}
}

func importSnapshotHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := svc.Import(ctx, mcp.ParseString(request, "path", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
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
