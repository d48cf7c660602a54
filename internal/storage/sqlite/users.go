package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/models"
)

// UpsertUser stores the profile fields used to render assignees. An empty id
// gets a generated one.
func (s *Store) UpsertUser(ctx context.Context, u models.User) (models.User, error) {
	u.ID = trimmed(u.ID)
	if u.ID == "" {
		u.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, name, email, avatar) VALUES(?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, avatar = excluded.avatar`,
		u.ID, trimmed(u.Name), trimmed(u.Email), trimmed(u.Avatar))
	if err != nil {
		return models.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, avatar FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, notFound("user", id)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// resolveAssignees attaches assignee views in one query. Unknown ids render
// as a placeholder rather than failing the read.
func (s *Store) resolveAssignees(ctx context.Context, tasks []models.Task) ([]models.Task, error) {
	seen := map[string]struct{}{}
	var ids []any
	for _, t := range tasks {
		if t.AssigneeID == "" {
			continue
		}
		if _, ok := seen[t.AssigneeID]; ok {
			continue
		}
		seen[t.AssigneeID] = struct{}{}
		ids = append(ids, t.AssigneeID)
	}
	if len(ids) == 0 {
		return tasks, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, avatar FROM users WHERE id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, fmt.Errorf("load assignees: %w", err)
	}
	defer rows.Close()

	users := make(map[string]models.User, len(ids))
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		tasks[i] = models.ResolveAssignee(tasks[i], users)
	}
	return tasks, nil
}
