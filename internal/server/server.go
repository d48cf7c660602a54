package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskboard/internal/board"
	"taskboard/internal/metrics"
	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/realtime"
	"taskboard/internal/service"
	"taskboard/internal/storage/sqlite"
	"taskboard/internal/workflow"
)

// Deps groups the collaborators of the HTTP server.
type Deps struct {
	Store     *sqlite.Store
	Tasks     *service.Tasks
	Hub       *realtime.Hub
	Publisher realtime.Publisher
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	StaticDir string

	// BoardIdleTimeout closes board sessions nobody used for that long.
	BoardIdleTimeout time.Duration
}

// Server provides HTTP handlers for the task board backend.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	tasks     *service.Tasks
	hub       *realtime.Hub
	publisher realtime.Publisher
	sessions  *sessions
	metrics   *metrics.Metrics
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := deps.Hub
	if hub == nil {
		hub = realtime.NewHub(logger)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = hub
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(m.Middleware())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	srv := &Server{
		engine:    router,
		store:     deps.Store,
		tasks:     deps.Tasks,
		hub:       hub,
		publisher: publisher,
		sessions:  newSessions(deps.Tasks, hub, deps.Notifier, m, deps.BoardIdleTimeout, logger),
		metrics:   m,
		logger:    logger,
		staticDir: deps.StaticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Close stops every open board session.
func (s *Server) Close() {
	s.sessions.closeAll()
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		projects := api.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET(":id", s.handleGetProject)
			projects.PUT(":id", s.handleUpdateProject)
			projects.DELETE(":id", s.handleDeleteProject)
			projects.POST(":id/members", s.handleAddMember)
			projects.POST(":id/recalculate", s.handleRecalculate)
			projects.GET(":id/tasks", s.handleListTasks)
			projects.POST(":id/tasks", s.handleCreateTask)
			projects.GET(":id/board", s.handleGetBoard)
			projects.GET(":id/board/targets", s.handleDropTargets)
			projects.POST(":id/board/moves", s.handleMove)
			projects.GET(":id/events", s.handleEvents)
		}

		api.GET("/tasks/:id", s.handleGetTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.PATCH("/tasks/:id/status", s.handleChangeStatus)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.PUT("/users/:id", s.handleUpsertUser)
	}
	s.engine.GET("/metrics", s.metrics.Handler())

	s.mountStatic()
}

// handleHealth reports readiness including the database.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sqlite.ErrNotFound), errors.Is(err, board.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, board.ErrPending):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidStatus), errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, sqlite.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
