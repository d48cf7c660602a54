package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the board column a task currently sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in workflow order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var (
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
)

// UnknownAssigneeName is rendered for assignee references that no longer resolve.
const UnknownAssigneeName = "Unknown"

// ParseStatus accepts the canonical spelling plus the legacy underscore form.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "todo", "to-do", "to_do":
		return StatusTodo, nil
	case "in-progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Valid reports whether s is one of the three board columns.
func (s Status) Valid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

// Label is the human readable column title.
func (s Status) Label() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// ParsePriority validates a priority string.
func ParsePriority(raw string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
}

// User is the subset of an account needed to render assignees.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Assignee is the resolved view of a task's assignee reference.
type Assignee struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// TaskCounts is the denormalized per-status tally stored on a project.
type TaskCounts struct {
	Todo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Done       int `json:"done"`
}

// Total returns the number of tasks across all columns.
func (c TaskCounts) Total() int {
	return c.Todo + c.InProgress + c.Done
}

// Progress is the share of done tasks as a whole percentage.
func (c TaskCounts) Progress() int {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(c.Done) / float64(total) * 100))
}

// Project groups tasks and members.
type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Members     []string   `json:"members"`
	TasksCount  TaskCounts `json:"tasksCount"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	NextDueDate string     `json:"nextDueDate,omitempty"`
}

// HasMember reports whether userID belongs to the project.
func (p Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Task represents a single card in the board.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	DueDate     string    `json:"dueDate"`
	AssigneeID  string    `json:"assigneeId,omitempty"`
	Assignee    *Assignee `json:"assignee,omitempty"`
	Position    int64     `json:"position"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DueDateLayout is the wire format of task due dates.
const DueDateLayout = "2006-01-02"

// NormalizeTask fills defaults for a task read from storage. It is applied
// once at the read boundary so consumers never see partial records.
func NormalizeTask(t Task) Task {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	if s, err := ParseStatus(string(t.Status)); err == nil {
		t.Status = s
	} else {
		t.Status = StatusTodo
	}
	if p, err := ParsePriority(string(t.Priority)); err == nil {
		t.Priority = p
	} else {
		t.Priority = PriorityMedium
	}
	t.DueDate = strings.TrimSpace(t.DueDate)
	if t.DueDate != "" {
		if _, err := time.Parse(DueDateLayout, t.DueDate); err != nil {
			t.DueDate = ""
		}
	}
	if t.AssigneeID == "" {
		t.Assignee = nil
	}
	return t
}

// ResolveAssignee attaches the assignee view, using a placeholder when the
// referenced user is unknown.
func ResolveAssignee(t Task, users map[string]User) Task {
	if t.AssigneeID == "" {
		t.Assignee = nil
		return t
	}
	u, ok := users[t.AssigneeID]
	if !ok || u.Name == "" {
		t.Assignee = &Assignee{ID: t.AssigneeID, Name: UnknownAssigneeName}
		if ok {
			t.Assignee.Avatar = u.Avatar
		}
		return t
	}
	t.Assignee = &Assignee{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
	return t
}

// NormalizeProject fills defaults for a project read from storage.
func NormalizeProject(p Project) Project {
	p.Name = strings.TrimSpace(p.Name)
	if p.Members == nil {
		p.Members = []string{}
	}
	if p.TasksCount.Todo < 0 {
		p.TasksCount.Todo = 0
	}
	if p.TasksCount.InProgress < 0 {
		p.TasksCount.InProgress = 0
	}
	if p.TasksCount.Done < 0 {
		p.TasksCount.Done = 0
	}
	return p
}
