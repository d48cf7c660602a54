// Package counters keeps the per-project task tallies in line with the
// authoritative task set.
//
// Counts are always recomputed from a full read of the project's tasks rather
// than adjusted by +1/-1, so a redundant call is harmless and a stale tally
// heals on the next mutation.
package counters

import (
	"context"
	"fmt"
	"log/slog"

	"taskboard/internal/models"
)

// TaskSource reads ground truth for a project.
type TaskSource interface {
	GetTasksByProject(ctx context.Context, projectID string) ([]models.Task, error)
}

// CounterWriter persists a project's tallies.
type CounterWriter interface {
	UpdateProjectCounters(ctx context.Context, projectID string, counts models.TaskCounts) error
}

// Recalculator restores a project's tasksCount from the store.
type Recalculator struct {
	tasks  TaskSource
	writer CounterWriter
	logger *slog.Logger
}

// New builds a Recalculator.
func New(tasks TaskSource, writer CounterWriter, logger *slog.Logger) *Recalculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recalculator{tasks: tasks, writer: writer, logger: logger}
}

// Tally counts tasks per status. Tasks with an unknown status are ignored.
func Tally(tasks []models.Task) models.TaskCounts {
	var c models.TaskCounts
	for _, t := range tasks {
		switch t.Status {
		case models.StatusTodo:
			c.Todo++
		case models.StatusInProgress:
			c.InProgress++
		case models.StatusDone:
			c.Done++
		}
	}
	return c
}

// Recalculate reads every task of the project, tallies them and writes the
// result onto the project. The computed counts are returned even when the
// write fails.
func (r *Recalculator) Recalculate(ctx context.Context, projectID string) (models.TaskCounts, error) {
	tasks, err := r.tasks.GetTasksByProject(ctx, projectID)
	if err != nil {
		return models.TaskCounts{}, fmt.Errorf("read tasks for project %s: %w", projectID, err)
	}

	counts := Tally(tasks)
	if err := r.writer.UpdateProjectCounters(ctx, projectID, counts); err != nil {
		return counts, fmt.Errorf("write counters for project %s: %w", projectID, err)
	}

	r.logger.Debug("project counters updated",
		slog.String("project", projectID),
		slog.Int("todo", counts.Todo),
		slog.Int("in_progress", counts.InProgress),
		slog.Int("done", counts.Done),
	)
	return counts, nil
}
