package board

import (
	"context"
	"fmt"
	"sync"

	"taskboard/internal/models"
)

// Drag tracks one drag gesture over the board. Admissible columns are derived
// from the task's current visible status on every call.
type Drag struct {
	c      *Controller
	taskID string

	mu    sync.Mutex
	ended bool
}

// BeginDrag starts a gesture for a task on the board.
func (c *Controller) BeginDrag(taskID string) (*Drag, error) {
	if _, ok := c.Task(taskID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return &Drag{c: c, taskID: taskID}, nil
}

// TaskID is the id of the dragged task.
func (d *Drag) TaskID() string { return d.taskID }

// Targets lists the columns the task may currently be dropped on.
func (d *Drag) Targets() []models.Status {
	t, ok := d.c.Task(d.taskID)
	if !ok || d.done() {
		return nil
	}
	return DropTargets(t)
}

// Over reports whether a column accepts the dragged task. Columns that would
// be an invalid transition never register as a hit.
func (d *Drag) Over(column models.Status) bool {
	t, ok := d.c.Task(d.taskID)
	if !ok || d.done() {
		return false
	}
	return CanDrop(t, column)
}

// Drop ends the gesture on a column and requests the status change.
func (d *Drag) Drop(ctx context.Context, column models.Status) (Result, error) {
	if !d.end() {
		return ResultNoop, nil
	}
	return d.c.RequestStatusChange(ctx, d.taskID, column)
}

// Cancel ends the gesture without a drop target.
func (d *Drag) Cancel() {
	d.end()
}

func (d *Drag) end() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return false
	}
	d.ended = true
	return true
}

func (d *Drag) done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}
