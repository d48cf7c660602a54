package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"taskboard/internal/models"
)

const projectColumns = `id, name, description, color, todo_count, in_progress_count, done_count,
    next_due_date, created_by, created_at`

// NewProject carries the caller supplied fields of a project.
type NewProject struct {
	Name        string
	Description string
	Color       string
	NextDueDate string
	Members     []string
	CreatedBy   string
}

// ProjectChanges lists editable project fields; nil keeps the stored value.
// Task counters are deliberately absent, only UpdateProjectCounters writes them.
type ProjectChanges struct {
	Name        *string
	Description *string
	Color       *string
	NextDueDate *string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Color,
		&p.TasksCount.Todo, &p.TasksCount.InProgress, &p.TasksCount.Done,
		&p.NextDueDate, &p.CreatedBy, &p.CreatedAt)
	return p, err
}

// ListProjects retrieves projects newest first. A non-empty memberID limits
// the result to projects that user belongs to.
func (s *Store) ListProjects(ctx context.Context, memberID string) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC, id`
	args := []any{}
	if memberID != "" {
		query = `SELECT ` + projectColumns + ` FROM projects
            WHERE id IN (SELECT project_id FROM project_members WHERE user_id = ?)
            ORDER BY created_at DESC, id`
		args = append(args, memberID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range projects {
		members, err := s.projectMembers(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Members = members
		projects[i] = models.NormalizeProject(projects[i])
	}
	return projects, nil
}

// CreateProject persists a new project with optional color. The creator is
// always a member.
func (s *Store) CreateProject(ctx context.Context, in NewProject) (models.Project, error) {
	name := trimmed(in.Name)
	if name == "" {
		return models.Project{}, fmt.Errorf("%w: project name must not be empty", ErrInvalid)
	}
	color := trimmed(in.Color)
	if color == "" {
		color = randomPaletteColor()
	}
	next, err := parseDueDate(in.NextDueDate)
	if err != nil {
		return models.Project{}, err
	}

	members := uniqueMembers(in.CreatedBy, in.Members)
	id := newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Project{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO projects(id, name, description, color, next_due_date, created_by, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)`, id, name, trimmed(in.Description), color, next, in.CreatedBy, s.now().UTC())
	if err != nil {
		return models.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id) VALUES(?, ?)`, id, m); err != nil {
			return models.Project{}, fmt.Errorf("insert member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Project{}, fmt.Errorf("commit project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a single project by id.
func (s *Store) GetProject(ctx context.Context, id string) (models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, notFound("project", id)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.Members, err = s.projectMembers(ctx, id)
	if err != nil {
		return models.Project{}, err
	}
	return models.NormalizeProject(p), nil
}

// UpdateProject applies editable field changes.
func (s *Store) UpdateProject(ctx context.Context, id string, changes ProjectChanges) (models.Project, error) {
	current, err := s.GetProject(ctx, id)
	if err != nil {
		return models.Project{}, err
	}

	name, description, color, next := current.Name, current.Description, current.Color, current.NextDueDate
	if changes.Name != nil {
		if trimmed(*changes.Name) == "" {
			return models.Project{}, fmt.Errorf("%w: project name must not be empty", ErrInvalid)
		}
		name = trimmed(*changes.Name)
	}
	if changes.Description != nil {
		description = trimmed(*changes.Description)
	}
	if changes.Color != nil {
		color = trimmed(*changes.Color)
		if color == "" {
			color = randomPaletteColor()
		}
	}
	if changes.NextDueDate != nil {
		if next, err = parseDueDate(*changes.NextDueDate); err != nil {
			return models.Project{}, err
		}
	}

	_, err = s.db.ExecContext(ctx, `UPDATE projects SET name = ?, description = ?, color = ?, next_due_date = ? WHERE id = ?`,
		name, description, color, next, id)
	if err != nil {
		return models.Project{}, fmt.Errorf("update project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project along with its tasks and memberships.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound("project", id)
	}
	return nil
}

// UpdateProjectCounters overwrites the project's denormalized task tallies.
func (s *Store) UpdateProjectCounters(ctx context.Context, projectID string, counts models.TaskCounts) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET todo_count = ?, in_progress_count = ?, done_count = ? WHERE id = ?`,
		counts.Todo, counts.InProgress, counts.Done, projectID)
	if err != nil {
		return fmt.Errorf("update project counters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound("project", projectID)
	}
	return nil
}

// AddMember adds a user to a project. Adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, projectID, userID string) error {
	if trimmed(userID) == "" {
		return fmt.Errorf("%w: member id must not be empty", ErrInvalid)
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id, user_id) VALUES(?, ?)`, projectID, trimmed(userID))
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *Store) projectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func uniqueMembers(creator string, members []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range append([]string{creator}, members...) {
		m = trimmed(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
