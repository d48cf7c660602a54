// Package notify carries user-facing toasts out of the board controller.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Variant selects how a toast is presented.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a fire-and-forget toast.
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
	ProjectID   string  `json:"projectId,omitempty"`
	TaskID      string  `json:"taskId,omitempty"`
}

// Notifier delivers toasts. Implementations must not block for long and
// must not panic; delivery failures are theirs to log.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Log writes toasts to a slog logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(n Notification) {
	level := slog.LevelInfo
	if n.Variant == VariantDestructive {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, "toast",
		slog.String("title", n.Title),
		slog.String("description", n.Description),
		slog.String("project", n.ProjectID),
		slog.String("task", n.TaskID),
	)
}

// Multi fans a toast out to several notifiers in order.
func Multi(notifiers ...Notifier) Notifier {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return Func(func(n Notification) {
		for _, target := range out {
			target.Notify(n)
		}
	})
}

// Recorder keeps every notification it receives. It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}
