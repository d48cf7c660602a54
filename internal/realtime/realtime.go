// Package realtime distributes task and project change events.
//
// Events published through redis reach every server instance; each instance
// relays them into a local Hub that board sessions and SSE streams listen on.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard/internal/models"
	"taskboard/internal/notify"
)

// EventType names a change.
type EventType string

const (
	TaskCreated     EventType = "task.created"
	TaskUpdated     EventType = "task.updated"
	TaskDeleted     EventType = "task.deleted"
	ProjectCounters EventType = "project.counters"
	ProjectDeleted  EventType = "project.deleted"
	Toast           EventType = "toast"

	// BoardChanged carries an instance's optimistic board and is only
	// delivered to local listeners.
	BoardChanged EventType = "board.changed"
)

// Event is one change notification.
type Event struct {
	Type      EventType            `json:"type"`
	ProjectID string               `json:"projectId"`
	TaskID    string               `json:"taskId,omitempty"`
	Status    models.Status        `json:"status,omitempty"`
	Counts    *models.TaskCounts   `json:"counts,omitempty"`
	Toast     *notify.Notification `json:"toast,omitempty"`
	Tasks     []models.Task        `json:"tasks,omitempty"`
	Pending   []string             `json:"pending,omitempty"`
	At        time.Time            `json:"at"`
}

// Publisher sends events to listeners.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes JSON encoded events on a redis channel.
type RedisPublisher struct {
	rc      *redis.Client
	channel string
}

func NewRedisPublisher(rc *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rc: rc, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rc.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe relays events from a redis channel to handle until ctx ends.
// A closed subscription is reopened after a short pause; undecodable
// payloads are logged and skipped.
func Subscribe(ctx context.Context, logger *slog.Logger, rc *redis.Client, channel string, handle func(Event)) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Error("unable to parse change event", slog.String("error", err.Error()))
					continue
				}
				handle(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("change feed closed, reconnecting", slog.String("channel", channel))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Toasts publishes notifications as toast events so every open board of the
// project sees them.
type Toasts struct {
	pub    Publisher
	logger *slog.Logger
}

func NewToasts(pub Publisher, logger *slog.Logger) *Toasts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toasts{pub: pub, logger: logger}
}

func (t *Toasts) Notify(n notify.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	toast := n
	err := t.pub.Publish(ctx, Event{Type: Toast, ProjectID: n.ProjectID, TaskID: n.TaskID, Toast: &toast})
	if err != nil {
		t.logger.Warn("toast not delivered", slog.String("error", err.Error()))
	}
}
