package board

import (
	"sort"

	"taskboard/internal/models"
	"taskboard/internal/workflow"
)

// Column is one status bucket of the board.
type Column struct {
	Status models.Status `json:"status"`
	Title  string        `json:"title"`
	Tasks  []models.Task `json:"tasks"`
}

// Board is the column view of a task collection, always in workflow order.
type Board struct {
	Columns []Column `json:"columns"`
}

// Partition splits tasks into the three status columns. Tasks keep their
// relative order from the source slice. The input is not modified.
func Partition(tasks []models.Task) Board {
	b := Board{Columns: make([]Column, len(models.Statuses))}
	index := make(map[models.Status]int, len(models.Statuses))
	for i, s := range models.Statuses {
		b.Columns[i] = Column{Status: s, Title: s.Label(), Tasks: []models.Task{}}
		index[s] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.Status]; ok {
			b.Columns[i].Tasks = append(b.Columns[i].Tasks, t)
		}
	}
	return b
}

// Column returns the bucket for a status.
func (b Board) Column(s models.Status) Column {
	for _, c := range b.Columns {
		if c.Status == s {
			return c
		}
	}
	return Column{Status: s, Title: s.Label(), Tasks: []models.Task{}}
}

// Counts tallies the board's columns.
func (b Board) Counts() models.TaskCounts {
	return models.TaskCounts{
		Todo:       len(b.Column(models.StatusTodo).Tasks),
		InProgress: len(b.Column(models.StatusInProgress).Tasks),
		Done:       len(b.Column(models.StatusDone).Tasks),
	}
}

// Row is one line of the list view; status is rendered as metadata.
type Row struct {
	Task        models.Task `json:"task"`
	StatusLabel string      `json:"statusLabel"`
	Pending     bool        `json:"pending,omitempty"`
}

// Less orders tasks for the list view.
type Less func(a, b models.Task) bool

// ByCreatedDesc puts the newest task first.
func ByCreatedDesc(a, b models.Task) bool { return a.CreatedAt.After(b.CreatedAt) }

// ByDueDate puts the earliest due date first; tasks without one go last.
func ByDueDate(a, b models.Task) bool {
	switch {
	case a.DueDate == "":
		return false
	case b.DueDate == "":
		return true
	}
	return a.DueDate < b.DueDate
}

var priorityRank = map[models.Priority]int{
	models.PriorityHigh:   0,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// ByPriority puts high priority first.
func ByPriority(a, b models.Task) bool {
	return priorityRank[a.Priority] < priorityRank[b.Priority]
}

// List flattens tasks into rows. With a nil less the source order is kept;
// otherwise rows are stably sorted.
func List(tasks []models.Task, less Less) []Row {
	ordered := make([]models.Task, len(tasks))
	copy(ordered, tasks)
	if less != nil {
		sort.SliceStable(ordered, func(i, j int) bool { return less(ordered[i], ordered[j]) })
	}
	rows := make([]Row, len(ordered))
	for i, t := range ordered {
		rows[i] = Row{Task: t, StatusLabel: t.Status.Label()}
	}
	return rows
}

// Rows is List over the controller's visible tasks with pending flags set.
func (c *Controller) Rows(less Less) []Row {
	rows := List(c.Tasks(), less)
	for i := range rows {
		rows[i].Pending = c.IsPending(rows[i].Task.ID)
	}
	return rows
}

// CanDrop reports whether a dragged task may land on a column.
func CanDrop(active models.Task, column models.Status) bool {
	return workflow.IsValidTransition(active.Status, column)
}

// DropTargets lists the columns a dragged task may land on.
func DropTargets(active models.Task) []models.Status {
	return workflow.Targets(active.Status)
}
