package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/scheduler"
	"github.com/ldi/tasksync/internal/service"
	"github.com/ldi/tasksync/pkg/models"
)

type moveRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Indent   int    `json:"indent"`
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidMove), errors.Is(err, service.ErrInvalidTask):
		status = http.StatusBadRequest
	case errors.Is(err, caldav.ErrAuthenticationFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.svc.ListAccounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) handleListCalendars(c *gin.Context) {
	cals, err := s.svc.ListCalendars(c.Request.Context(), c.Query("account_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calendars": cals})
}

// Calendar IDs are URLs, so they travel in the query string.
func (s *Server) handleUpdateCalendar(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	var u service.CalendarUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cal, rejected, err := s.svc.UpdateCalendar(c.Request.Context(), id, u)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calendar": cal, "rejected": rejected})
}

func (s *Server) handleListTasks(c *gin.Context) {
	f := db.TaskFilter{
		CalendarID: c.Query("calendar_id"),
		AccountID:  c.Query("account_id"),
		LocalOnly:  c.Query("local_only") == "true",
	}
	if v := c.Query("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "completed must be true or false"})
			return
		}
		f.Completed = &completed
	}

	tasks, err := s.svc.ListTasks(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var t models.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.svc.CreateTask(c.Request.Context(), &t)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// handleUpdateTask decodes the body over the stored task, so keys left out
// keep their value. Sync state and position in the body are ignored.
func (s *Server) handleUpdateTask(c *gin.Context) {
	t, err := s.svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := c.ShouldBindJSON(t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.ID = c.Param("id")

	updated, err := s.svc.UpdateTask(c.Request.Context(), t)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	n, err := s.svc.DeleteTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) handleMoveTask(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changed, err := s.svc.MoveTask(c.Request.Context(), c.Param("id"), req.TargetID, req.Indent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (s *Server) handleToggleCollapsed(c *gin.Context) {
	t, err := s.svc.ToggleCollapsed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleOutline(c *gin.Context) {
	items, err := s.svc.FlattenCalendar(c.Request.Context(), c.Query("calendar_id"), c.Query("all") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleSync(c *gin.Context) {
	ctx := c.Request.Context()
	if id := c.Query("calendar_id"); id != "" {
		res, err := s.svc.SyncCalendar(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	results, err := s.svc.SyncAll(ctx)
	body := gin.H{"results": results}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	status := []scheduler.CalendarStatus{}
	if s.scheduler != nil {
		status = s.scheduler.Status()
	}
	c.JSON(http.StatusOK, gin.H{"calendars": status})
}
