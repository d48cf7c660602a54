// Package metrics exposes Prometheus instruments for the board server.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskboard/internal/realtime"
)

const namespace = "taskboard"

// Metrics holds the server's instruments and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	moves     *prometheus.CounterVec
	sessions  prometheus.Gauge
	published *prometheus.CounterVec
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "board_moves_total",
			Help:      "Board status change requests by outcome.",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "board_sessions",
			Help:      "Open board sessions.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Change events published by type and outcome.",
		}, []string{"type", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(m.moves, m.sessions, m.published, m.requests, m.latency)
	return m
}

// Registry returns the registry backing these instruments.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveMove counts one board move outcome.
func (m *Metrics) ObserveMove(result string) {
	m.moves.WithLabelValues(result).Inc()
}

// SessionOpened and SessionClosed track the number of open board sessions.
func (m *Metrics) SessionOpened() { m.sessions.Inc() }

func (m *Metrics) SessionClosed() { m.sessions.Dec() }

// Publisher counts every event handed to next.
func (m *Metrics) Publisher(next realtime.Publisher) realtime.Publisher {
	return &countingPublisher{next: next, published: m.published}
}

type countingPublisher struct {
	next      realtime.Publisher
	published *prometheus.CounterVec
}

func (p *countingPublisher) Publish(ctx context.Context, ev realtime.Event) error {
	err := p.next.Publish(ctx, ev)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.published.WithLabelValues(string(ev.Type), outcome).Inc()
	return err
}
