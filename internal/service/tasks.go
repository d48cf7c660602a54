// Package service sequences task mutations with counter recalculation and
// change events.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/realtime"
	"taskboard/internal/storage/sqlite"
	"taskboard/internal/workflow"
)

// TaskStore is the authoritative task storage.
type TaskStore interface {
	CreateTask(ctx context.Context, in sqlite.NewTask) (models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	UpdateTask(ctx context.Context, id string, changes sqlite.TaskChanges) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.Status) error
	DeleteTask(ctx context.Context, id string) (models.Task, error)
	GetTasksByProject(ctx context.Context, projectID string) ([]models.Task, error)
}

// Recalculator restores a project's counters from ground truth.
type Recalculator interface {
	Recalculate(ctx context.Context, projectID string) (models.TaskCounts, error)
}

// Tasks runs task mutations. Every successful mutation is followed by a
// counter recalculation for the owning project; a failed recalculation is
// logged and never undoes the mutation.
type Tasks struct {
	store     TaskStore
	recalc    Recalculator
	publisher realtime.Publisher
	logger    *slog.Logger
}

// NewTasks builds the task service. publisher may be nil.
func NewTasks(store TaskStore, recalc Recalculator, publisher realtime.Publisher, logger *slog.Logger) *Tasks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tasks{store: store, recalc: recalc, publisher: publisher, logger: logger}
}

// ListByProject returns the project's tasks from the store.
func (s *Tasks) ListByProject(ctx context.Context, projectID string) ([]models.Task, error) {
	return s.store.GetTasksByProject(ctx, projectID)
}

// Get returns one task.
func (s *Tasks) Get(ctx context.Context, id string) (models.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Create inserts a task.
func (s *Tasks) Create(ctx context.Context, in sqlite.NewTask) (models.Task, error) {
	task, err := s.store.CreateTask(ctx, in)
	if err != nil {
		return models.Task{}, err
	}
	s.publish(ctx, realtime.Event{Type: realtime.TaskCreated, ProjectID: task.ProjectID, TaskID: task.ID, Status: task.Status})
	s.refresh(ctx, task.ProjectID)
	return task, nil
}

// Update applies field changes. A status change must obey the transition policy.
func (s *Tasks) Update(ctx context.Context, id string, changes sqlite.TaskChanges) (models.Task, error) {
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if changes.Status != nil {
		noop, err := workflow.CheckTransition(current.Status, *changes.Status)
		if err != nil {
			return models.Task{}, err
		}
		if noop {
			changes.Status = nil
		}
	}

	task, err := s.store.UpdateTask(ctx, id, changes)
	if err != nil {
		return models.Task{}, err
	}
	s.publish(ctx, realtime.Event{Type: realtime.TaskUpdated, ProjectID: task.ProjectID, TaskID: task.ID, Status: task.Status})
	if task.Status != current.Status {
		s.refresh(ctx, task.ProjectID)
	}
	return task, nil
}

// UpdateTaskStatus writes a status and announces it. It performs no policy
// check and no recalculation; board controllers call it after validating
// and recalculate on their own.
func (s *Tasks) UpdateTaskStatus(ctx context.Context, id string, status models.Status) error {
	if err := s.store.UpdateTaskStatus(ctx, id, status); err != nil {
		return err
	}
	projectID := ""
	if t, err := s.store.GetTask(ctx, id); err == nil {
		projectID = t.ProjectID
	}
	s.publish(ctx, realtime.Event{Type: realtime.TaskUpdated, ProjectID: projectID, TaskID: id, Status: status})
	return nil
}

// Delete removes a task.
func (s *Tasks) Delete(ctx context.Context, id string) error {
	task, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, realtime.Event{Type: realtime.TaskDeleted, ProjectID: task.ProjectID, TaskID: id})
	s.refresh(ctx, task.ProjectID)
	return nil
}

// Recalculate restores the project's counters and announces the result.
func (s *Tasks) Recalculate(ctx context.Context, projectID string) (models.TaskCounts, error) {
	counts, err := s.recalc.Recalculate(ctx, projectID)
	if err != nil {
		return counts, fmt.Errorf("recalculate project %s: %w", projectID, err)
	}
	s.publish(ctx, realtime.Event{Type: realtime.ProjectCounters, ProjectID: projectID, Counts: &counts})
	return counts, nil
}

func (s *Tasks) refresh(ctx context.Context, projectID string) {
	if _, err := s.Recalculate(ctx, projectID); err != nil {
		s.logger.Error("project counter recalculation failed",
			slog.String("project", projectID), slog.String("error", err.Error()))
	}
}

func (s *Tasks) publish(ctx context.Context, ev realtime.Event) {
	if s.publisher == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("change event not published",
			slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
	}
}
