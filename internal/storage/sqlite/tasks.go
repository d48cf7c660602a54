package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskboard/internal/models"
)

const taskColumns = `id, project_id, title, description, status, priority, due_date, assignee_id,
    position, created_by, created_at`

// NewTask carries the caller supplied fields of a task.
type NewTask struct {
	ProjectID   string
	Title       string
	Description string
	Status      models.Status
	Priority    models.Priority
	DueDate     string
	AssigneeID  string
	CreatedBy   string
}

// TaskChanges lists editable task fields; nil keeps the stored value.
// A non-nil ProjectID that differs from the stored one is rejected.
type TaskChanges struct {
	Title       *string
	Description *string
	Status      *models.Status
	Priority    *models.Priority
	DueDate     *string
	AssigneeID  *string
	ProjectID   *string
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var status, priority string
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status, &priority,
		&t.DueDate, &t.AssigneeID, &t.Position, &t.CreatedBy, &t.CreatedAt)
	t.Status = models.Status(status)
	t.Priority = models.Priority(priority)
	return t, err
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, models.NormalizeTask(t))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.resolveAssignees(ctx, tasks)
}

// ListTasks returns every task, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id`)
}

// GetTasksByProject returns the full current task set of a project ordered by
// column position then creation time.
func (s *Store) GetTasksByProject(ctx context.Context, projectID string) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ?
        ORDER BY position, created_at, id`, projectID)
}

// CreateTask inserts a new task for a project. The status defaults to todo and
// the assignee to the creator.
func (s *Store) CreateTask(ctx context.Context, in NewTask) (models.Task, error) {
	title := trimmed(in.Title)
	if title == "" {
		return models.Task{}, fmt.Errorf("%w: task title must not be empty", ErrInvalid)
	}
	if trimmed(in.ProjectID) == "" {
		return models.Task{}, fmt.Errorf("%w: task project must not be empty", ErrInvalid)
	}
	if _, err := s.GetProject(ctx, in.ProjectID); err != nil {
		return models.Task{}, err
	}

	status := in.Status
	if status == "" {
		status = models.StatusTodo
	}
	if !status.Valid() {
		return models.Task{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if _, err := models.ParsePriority(string(priority)); err != nil {
		return models.Task{}, err
	}
	due, err := parseDueDate(in.DueDate)
	if err != nil {
		return models.Task{}, err
	}
	assignee := trimmed(in.AssigneeID)
	if assignee == "" {
		assignee = in.CreatedBy
	}

	pos, err := s.nextPosition(ctx, in.ProjectID, status)
	if err != nil {
		return models.Task{}, err
	}

	id := newID()
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks(id, project_id, title, description, status, priority,
        due_date, assignee_id, position, created_by, created_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.ProjectID, title, trimmed(in.Description), string(status), string(priority),
		due, assignee, pos, in.CreatedBy, s.now().UTC())
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, notFound("task", id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	tasks, err := s.resolveAssignees(ctx, []models.Task{models.NormalizeTask(t)})
	if err != nil {
		return models.Task{}, err
	}
	return tasks[0], nil
}

// UpdateTask updates task fields and moves the task between columns when needed.
func (s *Store) UpdateTask(ctx context.Context, id string, changes TaskChanges) (models.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if changes.ProjectID != nil && *changes.ProjectID != current.ProjectID {
		return models.Task{}, fmt.Errorf("%w: task %s cannot move to another project", ErrInvalid, id)
	}

	next := current
	if changes.Title != nil {
		if trimmed(*changes.Title) == "" {
			return models.Task{}, fmt.Errorf("%w: task title must not be empty", ErrInvalid)
		}
		next.Title = trimmed(*changes.Title)
	}
	if changes.Description != nil {
		next.Description = trimmed(*changes.Description)
	}
	if changes.Status != nil {
		if !changes.Status.Valid() {
			return models.Task{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, *changes.Status)
		}
		next.Status = *changes.Status
	}
	if changes.Priority != nil {
		p, err := models.ParsePriority(string(*changes.Priority))
		if err != nil {
			return models.Task{}, err
		}
		next.Priority = p
	}
	if changes.DueDate != nil {
		due, err := parseDueDate(*changes.DueDate)
		if err != nil {
			return models.Task{}, err
		}
		next.DueDate = due
	}
	if changes.AssigneeID != nil {
		next.AssigneeID = trimmed(*changes.AssigneeID)
	}

	if next.Status != current.Status {
		pos, err := s.nextPosition(ctx, current.ProjectID, next.Status)
		if err != nil {
			return models.Task{}, err
		}
		next.Position = pos
	}

	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
        due_date = ?, assignee_id = ?, position = ? WHERE id = ?`,
		next.Title, next.Description, string(next.Status), string(next.Priority),
		next.DueDate, next.AssigneeID, next.Position, id)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskStatus moves a task to the end of another column in one statement.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?1,
            position = CASE WHEN status = ?1 THEN position ELSE
                (SELECT COALESCE(MAX(t.position) + 1, 0) FROM tasks t
                 WHERE t.project_id = tasks.project_id AND t.status = ?1) END
        WHERE id = ?2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound("task", id)
	}
	return nil
}

// DeleteTask removes a task by id and returns the deleted record.
func (s *Store) DeleteTask(ctx context.Context, id string) (models.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return models.Task{}, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		return models.Task{}, notFound("task", id)
	}
	return current, nil
}

func (s *Store) nextPosition(ctx context.Context, projectID string, status models.Status) (int64, error) {
	var position sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM tasks WHERE project_id = ? AND status = ?`, projectID, string(status)).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select position: %w", err)
	}
	if position.Valid {
		return position.Int64 + 1, nil
	}
	return 0, nil
}

func parseDueDate(raw string) (string, error) {
	raw = trimmed(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(models.DueDateLayout, raw); err != nil {
		return "", fmt.Errorf("%w: due date %q must be formatted as YYYY-MM-DD", ErrInvalid, raw)
	}
	return raw, nil
}
