package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 25 * time.Second

// handleEvents streams a project's change events as server-sent events.
func (s *Server) handleEvents(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := s.store.GetProject(c.Request.Context(), projectID); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}

	events, stop := s.hub.Listen(projectID)
	defer stop()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	s.logger.Debug("event stream opened", slog.String("project", projectID))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
	s.logger.Debug("event stream closed", slog.String("project", projectID))
}
