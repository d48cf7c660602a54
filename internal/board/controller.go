// Package board keeps the client-visible copy of a project's tasks and moves
// cards between columns optimistically.
//
// A Controller applies a status change to its visible copy before the store
// confirms it and reverts the change if the store rejects it. At most one
// change per task is in flight; unrelated tasks may move concurrently.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/workflow"
)

var (
	// ErrPending is returned when a change for the same task is still in flight.
	ErrPending = errors.New("status update already pending")
	// ErrUnknownTask is returned for ids missing from the visible copy.
	ErrUnknownTask = errors.New("task not on board")
)

// Result classifies how a status change request ended.
type Result int

const (
	ResultNoop Result = iota
	ResultCommitted
	ResultDuplicate
	ResultRejected
	ResultRolledBack
)

func (r Result) String() string {
	switch r {
	case ResultNoop:
		return "noop"
	case ResultCommitted:
		return "committed"
	case ResultDuplicate:
		return "duplicate"
	case ResultRejected:
		return "rejected"
	case ResultRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// StatusUpdater is the authoritative write for a task's status. It must
// either apply fully or fail.
type StatusUpdater interface {
	UpdateTaskStatus(ctx context.Context, taskID string, status models.Status) error
}

// Recalculator refreshes a project's counters after a committed change.
type Recalculator interface {
	Recalculate(ctx context.Context, projectID string) (models.TaskCounts, error)
}

type pendingChange struct {
	from models.Status
	to   models.Status
}

// Controller owns the visible task collection and the set of in-flight ids.
type Controller struct {
	store    StatusUpdater
	recalc   Recalculator
	notifier notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	tasks    []models.Task
	pending  map[string]pendingChange
	onChange func([]models.Task)
}

// NewController builds a controller with an empty board. recalc may be nil.
func NewController(store StatusUpdater, recalc Recalculator, notifier notify.Notifier, logger *slog.Logger) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:    store,
		recalc:   recalc,
		notifier: notifier,
		logger:   logger,
		pending:  make(map[string]pendingChange),
	}
}

// OnChange registers fn to receive a copy of the visible tasks after every
// change to them. fn runs outside the controller lock.
func (c *Controller) OnChange(fn func([]models.Task)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Sync replaces the visible copy with the last known-good upstream collection.
// Tasks with a change in flight keep their requested status until it resolves.
func (c *Controller) Sync(tasks []models.Task) {
	c.mu.Lock()
	next := make([]models.Task, len(tasks))
	copy(next, tasks)
	for i := range next {
		if p, ok := c.pending[next[i].ID]; ok {
			next[i].Status = p.to
		}
	}
	c.tasks = next
	snapshot, fn := c.snapshotLocked()
	c.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Tasks returns a copy of the visible collection.
func (c *Controller) Tasks() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Task returns the visible copy of one task.
func (c *Controller) Task(id string) (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.tasks[i], true
	}
	return models.Task{}, false
}

// IsPending reports whether a change for id is in flight.
func (c *Controller) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// PendingIDs lists in-flight task ids in sorted order.
func (c *Controller) PendingIDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Board partitions the visible tasks into columns.
func (c *Controller) Board() Board {
	return Partition(c.Tasks())
}

// RequestStatusChange moves a task to a new column. The visible copy changes
// before the store is called; a store failure restores the previous status.
// The call blocks until the store answers.
func (c *Controller) RequestStatusChange(ctx context.Context, taskID string, to models.Status) (Result, error) {
	c.mu.Lock()
	i := c.indexLocked(taskID)
	if i < 0 {
		c.mu.Unlock()
		return ResultNoop, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	task := c.tasks[i]
	if task.Status == to {
		c.mu.Unlock()
		return ResultNoop, nil
	}
	if _, busy := c.pending[taskID]; busy {
		c.mu.Unlock()
		c.logger.Warn("ignoring rapid update, change already pending",
			slog.String("task", taskID), slog.String("status", string(to)))
		return ResultDuplicate, ErrPending
	}
	if _, err := workflow.CheckTransition(task.Status, to); err != nil {
		c.mu.Unlock()
		c.rejected(task, err)
		return ResultRejected, err
	}

	from := task.Status
	c.pending[taskID] = pendingChange{from: from, to: to}
	c.tasks[i].Status = to
	snapshot, fn := c.snapshotLocked()
	c.mu.Unlock()

	defer c.release(taskID)
	if fn != nil {
		fn(snapshot)
	}

	if err := c.store.UpdateTaskStatus(ctx, taskID, to); err != nil {
		c.revert(taskID, from)
		c.logger.Error("task status update failed, reverted",
			slog.String("task", taskID), slog.String("error", err.Error()))
		c.notifier.Notify(notify.Notification{
			Title:       "Error",
			Description: "Failed to update task status. Please try again.",
			Variant:     notify.VariantDestructive,
			ProjectID:   task.ProjectID,
			TaskID:      taskID,
		})
		return ResultRolledBack, fmt.Errorf("update status of task %s: %w", taskID, err)
	}

	c.notifier.Notify(notify.Notification{
		Title:       "Task updated",
		Description: "Task moved to " + to.Label(),
		Variant:     notify.VariantDefault,
		ProjectID:   task.ProjectID,
		TaskID:      taskID,
	})

	if c.recalc != nil {
		if _, err := c.recalc.Recalculate(ctx, task.ProjectID); err != nil {
			c.logger.Error("project counter recalculation failed",
				slog.String("project", task.ProjectID), slog.String("error", err.Error()))
		}
	}
	return ResultCommitted, nil
}

func (c *Controller) rejected(task models.Task, err error) {
	var te *workflow.TransitionError
	if !errors.As(err, &te) {
		return
	}
	c.notifier.Notify(notify.Notification{
		Title:       "Invalid Move",
		Description: te.Error(),
		Variant:     notify.VariantDestructive,
		ProjectID:   task.ProjectID,
		TaskID:      task.ID,
	})
}

func (c *Controller) revert(taskID string, from models.Status) {
	c.mu.Lock()
	delete(c.pending, taskID)
	if i := c.indexLocked(taskID); i >= 0 {
		c.tasks[i].Status = from
	}
	snapshot, fn := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

func (c *Controller) release(taskID string) {
	c.mu.Lock()
	delete(c.pending, taskID)
	c.mu.Unlock()
}

func (c *Controller) indexLocked(id string) int {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) snapshotLocked() ([]models.Task, func([]models.Task)) {
	if c.onChange == nil {
		return nil, nil
	}
	out := make([]models.Task, len(c.tasks))
	copy(out, c.tasks)
	return out, c.onChange
}
