package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const listenerBuffer = 32

type listener struct {
	projectID string
	ch        chan Event
}

// Hub fans events out to in-process listeners of a project. A listener that
// falls behind loses events rather than blocking the publisher.
type Hub struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[*listener]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, listeners: make(map[*listener]struct{})}
}

// Listen registers for events of a project; an empty projectID receives all
// events. The returned func unregisters and closes the channel.
func (h *Hub) Listen(projectID string) (<-chan Event, func()) {
	l := &listener{projectID: projectID, ch: make(chan Event, listenerBuffer)}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return l.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, l)
			h.mu.Unlock()
			close(l.ch)
		})
	}
}

// Deliver hands an event to matching listeners.
func (h *Hub) Deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.listeners {
		if l.projectID != "" && l.projectID != ev.ProjectID {
			continue
		}
		select {
		case l.ch <- ev:
		default:
			h.logger.Warn("dropping change event for slow listener",
				slog.String("project", ev.ProjectID), slog.String("type", string(ev.Type)))
		}
	}
}

// Publish makes the hub usable as an in-process Publisher when redis is off.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.Deliver(ev)
	return nil
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
