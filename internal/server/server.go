// Package server exposes the task service as a JSON API.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ldi/tasksync/internal/scheduler"
	"github.com/ldi/tasksync/internal/service"
)

type Server struct {
	svc       *service.Service
	scheduler *scheduler.Scheduler
	logger    *log.Logger
	router    *gin.Engine
	server    *http.Server
}

// NewServer builds the router. sched may be nil when no background sync runs.
func NewServer(svc *service.Service, sched *scheduler.Scheduler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	s := &Server{
		svc:       svc,
		scheduler: sched,
		logger:    logger,
		router:    router,
		server:    &http.Server{Handler: router},
	}

	api := router.Group("/api")
	{
		api.GET("/accounts", s.handleListAccounts)

		api.GET("/calendars", s.handleListCalendars)
		api.PATCH("/calendars", s.handleUpdateCalendar)

		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/move", s.handleMoveTask)
		api.POST("/tasks/:id/collapse", s.handleToggleCollapsed)

		api.GET("/outline", s.handleOutline)

		api.POST("/sync", s.handleSync)
		api.GET("/sync/status", s.handleSyncStatus)
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Printf("listening on %s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
