package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/realtime"
)

type publishFunc func(ctx context.Context, ev realtime.Event) error

func (f publishFunc) Publish(ctx context.Context, ev realtime.Event) error { return f(ctx, ev) }

func TestObserveMoveAndSessions(t *testing.T) {
	m := New()
	m.ObserveMove("committed")
	m.ObserveMove("committed")
	m.ObserveMove("rolled_back")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.moves.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.moves.WithLabelValues("rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}

func TestPublisherCountsOutcome(t *testing.T) {
	m := New()
	fail := true
	pub := m.Publisher(publishFunc(func(ctx context.Context, ev realtime.Event) error {
		if fail {
			return errors.New("redis down")
		}
		return nil
	}))

	require.Error(t, pub.Publish(context.Background(), realtime.Event{Type: realtime.TaskUpdated}))
	fail = false
	require.NoError(t, pub.Publish(context.Background(), realtime.Event{Type: realtime.TaskUpdated}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("task.updated", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("task.updated", "ok")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/ping", "204")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskboard_http_requests_total")
}
