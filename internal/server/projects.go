package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/realtime"
	"taskboard/internal/storage/sqlite"
)

type projectRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Color       *string  `json:"color"`
	NextDueDate *string  `json:"nextDueDate"`
	Members     []string `json:"members"`
	CreatedBy   string   `json:"createdBy"`
}

type memberRequest struct {
	UserID string `json:"userId"`
}

// handleListProjects returns projects, optionally only those of one member.
func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context(), c.Query("member"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleCreateProject creates a new project entity.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Name == nil {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}

	project, err := s.store.CreateProject(c.Request.Context(), sqlite.NewProject{
		Name:        *req.Name,
		Description: getString(req.Description),
		Color:       getString(req.Color),
		NextDueDate: getString(req.NextDueDate),
		Members:     req.Members,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": project})
}

// handleGetProject returns one project with its progress.
func (s *Server) handleGetProject(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project, "progress": project.TasksCount.Progress()})
}

// handleUpdateProject renames, describes or recolors an existing project.
func (s *Server) handleUpdateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	project, err := s.store.UpdateProject(c.Request.Context(), c.Param("id"), sqlite.ProjectChanges{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		NextDueDate: req.NextDueDate,
	})
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleDeleteProject removes a project and all related tasks.
func (s *Server) handleDeleteProject(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.DeleteProject(c.Request.Context(), id); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	s.sessions.drop(id)
	s.announce(c.Request.Context(), realtime.Event{Type: realtime.ProjectDeleted, ProjectID: id})
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleAddMember adds a user to the project.
func (s *Server) handleAddMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	id := c.Param("id")
	if err := s.store.AddMember(c.Request.Context(), id, req.UserID); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	project, err := s.store.GetProject(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleRecalculate restores the project's task counters from its tasks.
func (s *Server) handleRecalculate(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.GetProject(c.Request.Context(), id); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	counts, err := s.tasks.Recalculate(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasksCount": counts, "progress": counts.Progress()})
}

func (s *Server) announce(ctx context.Context, ev realtime.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("change event not published", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
	}
}
