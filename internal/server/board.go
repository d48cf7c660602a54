package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"taskboard/internal/board"
	"taskboard/internal/metrics"
	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/realtime"
	"taskboard/internal/service"
)

const (
	resyncTimeout           = 5 * time.Second
	defaultBoardIdleTimeout = 10 * time.Minute
)

type moveRequest struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// session is the open board of one project. Its controller is re-seeded from
// the store whenever a task of the project changes.
type session struct {
	projectID string
	ctrl      *board.Controller
	stop      func()
	done      chan struct{}

	// guarded by sessions.mu
	lastUsed time.Time
}

type sessions struct {
	tasks       *service.Tasks
	hub         *realtime.Hub
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu        sync.Mutex
	byProject map[string]*session

	quit        chan struct{}
	quitOnce    sync.Once
	janitorDone chan struct{}
}

func newSessions(tasks *service.Tasks, hub *realtime.Hub, notifier notify.Notifier, m *metrics.Metrics, idleTimeout time.Duration, logger *slog.Logger) *sessions {
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}
	if idleTimeout <= 0 {
		idleTimeout = defaultBoardIdleTimeout
	}
	s := &sessions{
		tasks:       tasks,
		hub:         hub,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		idleTimeout: idleTimeout,
		now:         time.Now,
		byProject:   make(map[string]*session),
		quit:        make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *sessions) get(ctx context.Context, projectID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byProject[projectID]; ok {
		sess.lastUsed = s.now()
		return sess, nil
	}

	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", projectID, err)
	}
	ctrl := board.NewController(s.tasks, s.tasks, s.notifier, s.logger)
	ctrl.Sync(tasks)
	ctrl.OnChange(func(visible []models.Task) {
		s.hub.Deliver(realtime.Event{
			Type:      realtime.BoardChanged,
			ProjectID: projectID,
			Tasks:     visible,
			Pending:   ctrl.PendingIDs(),
			At:        time.Now().UTC(),
		})
	})

	events, stop := s.hub.Listen(projectID)
	sess := &session{projectID: projectID, ctrl: ctrl, stop: stop, done: make(chan struct{}), lastUsed: s.now()}
	go s.follow(sess, events)

	s.byProject[projectID] = sess
	s.metrics.SessionOpened()
	s.logger.Debug("board session opened", slog.String("project", projectID), slog.Int("tasks", len(tasks)))
	return sess, nil
}

// resync replaces the session's visible tasks with the store's. Pending
// changes keep their requested status.
func (s *sessions) resync(ctx context.Context, sess *session) error {
	tasks, err := s.tasks.ListByProject(ctx, sess.projectID)
	if err != nil {
		return fmt.Errorf("resync board %s: %w", sess.projectID, err)
	}
	sess.ctrl.Sync(tasks)
	return nil
}

func (s *sessions) follow(sess *session, events <-chan realtime.Event) {
	defer close(sess.done)
	for ev := range events {
		switch ev.Type {
		case realtime.TaskCreated, realtime.TaskUpdated, realtime.TaskDeleted:
			ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
			if err := s.resync(ctx, sess); err != nil {
				s.logger.Error("board resync failed", slog.String("project", sess.projectID), slog.String("error", err.Error()))
			}
			cancel()
		case realtime.ProjectDeleted:
			// shutdown waits for this loop to end, so it cannot run inline.
			if s.detach(sess) {
				go s.shutdown(sess)
			}
		}
	}
}

// detach removes sess from the registry if it is still the project's session.
func (s *sessions) detach(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byProject[sess.projectID] != sess {
		return false
	}
	delete(s.byProject, sess.projectID)
	return true
}

func (s *sessions) shutdown(sess *session) {
	sess.stop()
	<-sess.done
	s.metrics.SessionClosed()
	s.logger.Debug("board session closed", slog.String("project", sess.projectID))
}

func (s *sessions) drop(projectID string) {
	s.mu.Lock()
	sess, ok := s.byProject[projectID]
	delete(s.byProject, projectID)
	s.mu.Unlock()
	if ok {
		s.shutdown(sess)
	}
}

// evictIdle closes sessions unused since now minus the idle timeout. Sessions
// with a change in flight are kept.
func (s *sessions) evictIdle(now time.Time) int {
	s.mu.Lock()
	var idle []*session
	for id, sess := range s.byProject {
		if now.Sub(sess.lastUsed) < s.idleTimeout || len(sess.ctrl.PendingIDs()) > 0 {
			continue
		}
		delete(s.byProject, id)
		idle = append(idle, sess)
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.shutdown(sess)
	}
	return len(idle)
}

func (s *sessions) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case now := <-ticker.C:
			if n := s.evictIdle(now); n > 0 {
				s.logger.Debug("idle board sessions closed", slog.Int("count", n))
			}
		}
	}
}

func (s *sessions) closeAll() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.janitorDone

	s.mu.Lock()
	ids := make([]string, 0, len(s.byProject))
	for id := range s.byProject {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.drop(id)
	}
}

func (s *Server) boardSession(c *gin.Context) (*session, bool) {
	projectID := c.Param("id")
	if _, err := s.store.GetProject(c.Request.Context(), projectID); err != nil {
		s.respondError(c, statusFor(err), err)
		return nil, false
	}
	return s.openSession(c, projectID)
}

func (s *Server) openSession(c *gin.Context, projectID string) (*session, bool) {
	sess, err := s.sessions.get(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return sess, true
}

// move drops a task on a column of an open board and maps the outcome to an
// HTTP status. A task missing from the visible copy triggers one resync.
func (s *Server) move(c *gin.Context, sess *session, taskID string, to models.Status) (board.Result, int, error) {
	if _, ok := sess.ctrl.Task(taskID); !ok {
		if err := s.sessions.resync(c.Request.Context(), sess); err != nil {
			return board.ResultNoop, http.StatusInternalServerError, err
		}
	}
	drag, err := sess.ctrl.BeginDrag(taskID)
	if err != nil {
		return board.ResultNoop, statusFor(err), err
	}

	// The store write is never abandoned once issued, even if the client goes away.
	result, err := drag.Drop(context.WithoutCancel(c.Request.Context()), to)
	s.metrics.ObserveMove(result.String())
	if err == nil {
		return result, http.StatusOK, nil
	}

	code := statusFor(err)
	if result == board.ResultRolledBack {
		code = http.StatusBadGateway
		s.logger.Warn("task move rolled back", slog.String("task", taskID), slog.String("error", err.Error()))
	}
	return result, code, err
}

// handleGetBoard returns the optimistic board of a project.
func (s *Server) handleGetBoard(c *gin.Context) {
	sess, ok := s.boardSession(c)
	if !ok {
		return
	}
	b := sess.ctrl.Board()
	respondSuccess(c, http.StatusOK, gin.H{
		"board":   b,
		"counts":  b.Counts(),
		"pending": sess.ctrl.PendingIDs(),
	})
}

// handleDropTargets lists the columns a dragged task may be dropped on.
func (s *Server) handleDropTargets(c *gin.Context) {
	sess, ok := s.boardSession(c)
	if !ok {
		return
	}
	drag, err := sess.ctrl.BeginDrag(c.Query("task"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	defer drag.Cancel()

	accepts := make(map[models.Status]bool, len(models.Statuses))
	for _, column := range models.Statuses {
		accepts[column] = drag.Over(column)
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": drag.TaskID(), "targets": drag.Targets(), "accepts": accepts})
}

// handleMove drops a task on a column through the board controller.
func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	sess, ok := s.boardSession(c)
	if !ok {
		return
	}

	result, code, err := s.move(c, sess, req.TaskID, status)
	if err != nil {
		c.JSON(code, gin.H{"error": err.Error(), "result": result.String(), "board": sess.ctrl.Board()})
		return
	}
	respondSuccess(c, code, gin.H{"result": result.String(), "board": sess.ctrl.Board()})
}
