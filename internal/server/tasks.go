package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/board"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"dueDate"`
	AssigneeID  *string `json:"assigneeId"`
	ProjectID   *string `json:"projectId"`
	CreatedBy   string  `json:"createdBy"`
}

type statusRequest struct {
	Status string `json:"status"`
}

var listOrders = map[string]board.Less{
	"":         nil,
	"position": nil,
	"created":  board.ByCreatedDesc,
	"due":      board.ByDueDate,
	"priority": board.ByPriority,
}

// handleListTasks returns the project's visible tasks as list view rows.
// Rows of tasks with a change in flight are marked pending.
func (s *Server) handleListTasks(c *gin.Context) {
	less, ok := listOrders[c.Query("sort")]
	if !ok {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("unknown sort %q", c.Query("sort")))
		return
	}
	sess, ok := s.boardSession(c)
	if !ok {
		return
	}
	if err := s.sessions.resync(c.Request.Context(), sess); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": sess.ctrl.Tasks(), "rows": sess.ctrl.Rows(less)})
}

// handleCreateTask inserts a new task into a project column.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || *req.Title == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}

	in := sqlite.NewTask{
		ProjectID:   c.Param("id"),
		Title:       *req.Title,
		Description: getString(req.Description),
		DueDate:     getString(req.DueDate),
		AssigneeID:  getString(req.AssigneeID),
		CreatedBy:   req.CreatedBy,
	}
	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		in.Status = status
	}
	if req.Priority != nil {
		priority, err := models.ParsePriority(*req.Priority)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		in.Priority = priority
	}

	task, err := s.tasks.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleGetTask returns one task.
func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTask updates task fields such as status or description.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	changes := sqlite.TaskChanges{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		AssigneeID:  req.AssigneeID,
		ProjectID:   req.ProjectID,
	}
	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		changes.Status = &status
	}
	if req.Priority != nil {
		priority, err := models.ParsePriority(*req.Priority)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		changes.Priority = &priority
	}

	task, err := s.tasks.Update(c.Request.Context(), c.Param("id"), changes)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleChangeStatus moves a task to an adjacent column from the list view
// or a task menu, through the project's board controller.
func (s *Server) handleChangeStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	id := c.Param("id")
	task, err := s.tasks.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	sess, ok := s.openSession(c, task.ProjectID)
	if !ok {
		return
	}

	result, code, err := s.move(c, sess, id, status)
	if visible, ok := sess.ctrl.Task(id); ok {
		task = visible
	}
	if err != nil {
		c.JSON(code, gin.H{"error": err.Error(), "result": result.String(), "task": task})
		return
	}
	respondSuccess(c, code, gin.H{"result": result.String(), "task": task})
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleUpsertUser stores the profile used to render assignees.
func (s *Server) handleUpsertUser(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	user.ID = c.Param("id")
	saved, err := s.store.UpsertUser(c.Request.Context(), user)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": saved})
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
