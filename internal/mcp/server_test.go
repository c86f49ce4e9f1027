package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/service"
	"github.com/ldi/tasksync/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func newTestServer(t *testing.T) (*server.MCPServer, *db.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	return NewServer(service.New(database, nil, nil)), database
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("Tool %s not found", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Handler %s failed: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Empty tool result")
	}
	return result.Content[0].(mcp.TextContent).Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, v interface{}) {
	t.Helper()
	if result.IsError {
		t.Fatalf("Tool returned error: %s", resultText(t, result))
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), v); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
}

func TestServerInitialization(t *testing.T) {
	s, _ := newTestServer(t)
	stdio := server.NewStdioServer(s)

	r, w := io.Pipe()
	stdout := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- stdio.Listen(ctx, r, stdout)
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}

	rawReq := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  initReq.Params,
	}

	data, err := json.Marshal(rawReq)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	w.Write(data)
	w.Write([]byte("\n"))

	// Give it a moment to process
	time.Sleep(200 * time.Millisecond)

	if stdout.Len() == 0 {
		t.Fatal("Expected response from server, got none")
	}

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v\nOutput: %s", err, stdout.String())
	}
	if resp.ID != 1 {
		t.Errorf("Expected id 1, got %v", resp.ID)
	}
	if resp.Result.ServerInfo.Name != "tasksync" {
		t.Errorf("Expected server name tasksync, got %v", resp.Result.ServerInfo.Name)
	}
}

func TestTaskTools(t *testing.T) {
	s, database := newTestServer(t)
	ctx := context.Background()

	var parent, child, other models.Task

	t.Run("create_task", func(t *testing.T) {
		decodeResult(t, callTool(t, s, "create_task", map[string]interface{}{
			"title":    "  Write report ",
			"priority": "high",
			"due":      "2024-07-01",
			"tags":     "work, urgent,",
		}), &parent)

		if parent.Title != "Write report" {
			t.Errorf("Expected trimmed title, got %q", parent.Title)
		}
		if !parent.LocalOnly {
			t.Error("Expected task without calendar to be local only")
		}
		if parent.Due == nil || !parent.DueAllDay {
			t.Errorf("Expected all-day due date, got %v (all day %v)", parent.Due, parent.DueAllDay)
		}
		if strings.Join(parent.Tags, ",") != "work,urgent" {
			t.Errorf("Unexpected tags %v", parent.Tags)
		}

		decodeResult(t, callTool(t, s, "create_task", map[string]interface{}{
			"title":      "Collect numbers",
			"parent_uid": parent.UID,
		}), &child)
		decodeResult(t, callTool(t, s, "create_task", map[string]interface{}{
			"title": "Call bank",
		}), &other)
	})

	t.Run("create_task_validation", func(t *testing.T) {
		result := callTool(t, s, "create_task", map[string]interface{}{"title": "   "})
		if !result.IsError {
			t.Error("Expected error for blank title")
		}

		result = callTool(t, s, "create_task", map[string]interface{}{"title": "x", "due": "next week"})
		if !result.IsError {
			t.Error("Expected error for unparseable due date")
		}
	})

	t.Run("update_task", func(t *testing.T) {
		var updated models.Task
		decodeResult(t, callTool(t, s, "update_task", map[string]interface{}{
			"id":        other.ID,
			"completed": true,
			"due":       "",
		}), &updated)

		if !updated.Completed || updated.CompletedAt == nil {
			t.Errorf("Expected completed task with timestamp, got %+v", updated)
		}
		if updated.Title != "Call bank" {
			t.Errorf("Omitted title should be unchanged, got %q", updated.Title)
		}

		stored, err := database.GetTask(ctx, other.ID)
		if err != nil || stored == nil {
			t.Fatalf("Failed to read task back: %v", err)
		}
		if !stored.Completed {
			t.Error("Completion not persisted")
		}
	})

	t.Run("list_tasks", func(t *testing.T) {
		var resp struct {
			Tasks []models.Task `json:"tasks"`
		}
		decodeResult(t, callTool(t, s, "list_tasks", map[string]interface{}{}), &resp)
		if len(resp.Tasks) != 3 {
			t.Errorf("Expected 3 tasks, got %d", len(resp.Tasks))
		}

		decodeResult(t, callTool(t, s, "list_tasks", map[string]interface{}{"include_completed": false}), &resp)
		if len(resp.Tasks) != 2 {
			t.Errorf("Expected 2 open tasks, got %d", len(resp.Tasks))
		}
	})

	t.Run("move_task", func(t *testing.T) {
		var resp struct {
			Changed []models.Task `json:"changed"`
		}
		decodeResult(t, callTool(t, s, "move_task", map[string]interface{}{
			"id":        other.ID,
			"target_id": parent.ID,
			"indent":    1.0,
		}), &resp)
		if len(resp.Changed) == 0 {
			t.Fatal("Expected changed tasks")
		}

		moved, _ := database.GetTask(ctx, other.ID)
		if moved.ParentUID != parent.UID {
			t.Errorf("Expected parent %s, got %q", parent.UID, moved.ParentUID)
		}

		// Into its own subtree.
		result := callTool(t, s, "move_task", map[string]interface{}{
			"id":        parent.ID,
			"target_id": child.ID,
			"indent":    1.0,
		})
		if !result.IsError {
			t.Error("Expected rejected move to report an error")
		}

		result = callTool(t, s, "move_task", map[string]interface{}{
			"id":        parent.ID,
			"target_id": child.ID,
			"indent":    2.0,
		})
		if !result.IsError {
			t.Error("Expected error for out of range indent")
		}
	})

	t.Run("outline", func(t *testing.T) {
		var resp struct {
			Items []struct {
				Task  models.Task `json:"task"`
				Depth int         `json:"depth"`
			} `json:"items"`
		}
		decodeResult(t, callTool(t, s, "get_outline", map[string]interface{}{}), &resp)
		if len(resp.Items) != 3 {
			t.Fatalf("Expected 3 outline rows, got %d", len(resp.Items))
		}
		if resp.Items[0].Task.ID != parent.ID || resp.Items[0].Depth != 0 {
			t.Errorf("Expected parent first at depth 0, got %+v", resp.Items[0])
		}
		for _, item := range resp.Items[1:] {
			if item.Depth != 1 {
				t.Errorf("Expected %s at depth 1, got %d", item.Task.Title, item.Depth)
			}
		}

		var collapsed models.Task
		decodeResult(t, callTool(t, s, "toggle_collapsed", map[string]interface{}{"id": parent.ID}), &collapsed)
		if !collapsed.IsCollapsed {
			t.Error("Expected task to be collapsed")
		}

		decodeResult(t, callTool(t, s, "get_outline", map[string]interface{}{}), &resp)
		if len(resp.Items) != 1 {
			t.Errorf("Expected children hidden, got %d rows", len(resp.Items))
		}
		decodeResult(t, callTool(t, s, "get_outline", map[string]interface{}{"all": true}), &resp)
		if len(resp.Items) != 3 {
			t.Errorf("Expected all rows with all=true, got %d", len(resp.Items))
		}
	})

	t.Run("delete_task", func(t *testing.T) {
		result := callTool(t, s, "delete_task", map[string]interface{}{"id": parent.ID})
		if result.IsError {
			t.Fatalf("Tool returned error: %s", resultText(t, result))
		}
		if got := resultText(t, result); got != "Deleted 3 task(s)" {
			t.Errorf("Unexpected result %q", got)
		}

		result = callTool(t, s, "get_task", map[string]interface{}{"id": parent.ID})
		if !result.IsError {
			t.Error("Expected error for deleted task")
		}
	})
}

func TestAccountAndCalendarToolsWithoutServer(t *testing.T) {
	s, _ := newTestServer(t)

	var resp struct {
		Accounts []models.Account `json:"accounts"`
	}
	decodeResult(t, callTool(t, s, "list_accounts", map[string]interface{}{}), &resp)
	if len(resp.Accounts) != 0 {
		t.Errorf("Expected no accounts, got %d", len(resp.Accounts))
	}

	result := callTool(t, s, "add_account", map[string]interface{}{"server_url": "", "username": "alice"})
	if !result.IsError {
		t.Error("Expected error for missing server url")
	}

	result = callTool(t, s, "remove_account", map[string]interface{}{"account_id": "missing"})
	if !result.IsError {
		t.Error("Expected error for unknown account")
	}

	result = callTool(t, s, "sync", map[string]interface{}{"calendar_id": "https://dav.example.com/nope/"})
	if !result.IsError {
		t.Error("Expected error for unknown calendar")
	}
}

func TestSnapshotTools(t *testing.T) {
	s, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")

	var created models.Task
	decodeResult(t, callTool(t, s, "create_task", map[string]interface{}{"title": "Keep me"}), &created)

	result := callTool(t, s, "export_snapshot", map[string]interface{}{"path": path})
	if result.IsError {
		t.Fatalf("Export failed: %s", resultText(t, result))
	}

	other, _ := newTestServer(t)
	var res db.ImportResult
	decodeResult(t, callTool(t, other, "import_snapshot", map[string]interface{}{"path": path}), &res)
	if res.Tasks != 1 {
		t.Errorf("Expected 1 imported task, got %d", res.Tasks)
	}
}
