package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/counters"
	"taskboard/internal/models"
)

// createTestStore opens a fresh database under the test's temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedProject(t *testing.T, store *Store, name string) models.Project {
	t.Helper()
	p, err := store.CreateProject(context.Background(), NewProject{Name: name, CreatedBy: "owner"})
	require.NoError(t, err)
	return p
}

func seedTask(t *testing.T, store *Store, projectID, title string, status models.Status) models.Task {
	t.Helper()
	task, err := store.CreateTask(context.Background(), NewTask{
		ProjectID: projectID,
		Title:     title,
		Status:    status,
		CreatedBy: "owner",
	})
	require.NoError(t, err)
	return task
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}

func TestCreateProject(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	p, err := store.CreateProject(ctx, NewProject{
		Name:        "  Launch ",
		Description: "Q3 launch",
		Members:     []string{"bob", "owner", " "},
		CreatedBy:   "owner",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Launch", p.Name)
	assert.NotEmpty(t, p.Color)
	assert.Equal(t, []string{"bob", "owner"}, p.Members)
	assert.Equal(t, models.TaskCounts{}, p.TasksCount)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = store.CreateProject(ctx, NewProject{Name: "   "})
	assert.Error(t, err)
}

func TestListProjectsByMember(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	a := seedProject(t, store, "A")
	_, err := store.CreateProject(ctx, NewProject{Name: "B", CreatedBy: "someone-else"})
	require.NoError(t, err)

	all, err := store.ListProjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListProjects(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	require.NoError(t, store.AddMember(ctx, a.ID, "carol"))
	require.NoError(t, store.AddMember(ctx, a.ID, "carol"))
	got, err := store.GetProject(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "owner"}, got.Members)
}

func TestUpdateAndDeleteProject(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "Old")
	seedTask(t, store, p.ID, "child", models.StatusTodo)

	name, color := "New", "#000000"
	updated, err := store.UpdateProject(ctx, p.ID, ProjectChanges{Name: &name, Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, "#000000", updated.Color)

	require.NoError(t, store.DeleteProject(ctx, p.ID))
	_, err = store.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err := store.GetTasksByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.ErrorIs(t, store.DeleteProject(ctx, p.ID), ErrNotFound)
}

func TestCreateTaskDefaults(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")

	task, err := store.CreateTask(ctx, NewTask{ProjectID: p.ID, Title: "  Write brief ", CreatedBy: "owner"})
	require.NoError(t, err)
	assert.Equal(t, "Write brief", task.Title)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, "owner", task.AssigneeID)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, models.UnknownAssigneeName, task.Assignee.Name)

	_, err = store.CreateTask(ctx, NewTask{ProjectID: p.ID, Title: ""})
	assert.Error(t, err)
	_, err = store.CreateTask(ctx, NewTask{ProjectID: "missing", Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.CreateTask(ctx, NewTask{ProjectID: p.ID, Title: "x", Status: "blocked"})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
	_, err = store.CreateTask(ctx, NewTask{ProjectID: p.ID, Title: "x", DueDate: "tomorrow"})
	assert.Error(t, err)
}

func TestTaskAssigneeResolution(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")

	_, err := store.UpsertUser(ctx, models.User{ID: "ada", Name: "Ada", Avatar: "ada.png"})
	require.NoError(t, err)

	task, err := store.CreateTask(ctx, NewTask{ProjectID: p.ID, Title: "x", AssigneeID: "ada"})
	require.NoError(t, err)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "Ada", task.Assignee.Name)
	assert.Equal(t, "ada.png", task.Assignee.Avatar)
}

func TestUpdateTaskStatusMovesToEndOfColumn(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")

	a := seedTask(t, store, p.ID, "a", models.StatusTodo)
	b := seedTask(t, store, p.ID, "b", models.StatusInProgress)
	c := seedTask(t, store, p.ID, "c", models.StatusInProgress)
	assert.Equal(t, int64(1), c.Position)

	require.NoError(t, store.UpdateTaskStatus(ctx, a.ID, models.StatusInProgress))
	got, err := store.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, int64(2), got.Position)

	// same status keeps its slot
	require.NoError(t, store.UpdateTaskStatus(ctx, b.ID, models.StatusInProgress))
	got, err = store.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Position)

	assert.ErrorIs(t, store.UpdateTaskStatus(ctx, "missing", models.StatusDone), ErrNotFound)
	assert.ErrorIs(t, store.UpdateTaskStatus(ctx, a.ID, "blocked"), models.ErrInvalidStatus)
}

func TestUpdateTask(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")
	other := seedProject(t, store, "Q")
	task := seedTask(t, store, p.ID, "a", models.StatusTodo)

	title, prio, due := "renamed", models.PriorityHigh, "2025-01-31"
	got, err := store.UpdateTask(ctx, task.ID, TaskChanges{Title: &title, Priority: &prio, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	assert.Equal(t, "2025-01-31", got.DueDate)

	_, err = store.UpdateTask(ctx, task.ID, TaskChanges{ProjectID: &other.ID})
	assert.Error(t, err)

	_, err = store.UpdateTask(ctx, "missing", TaskChanges{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTask(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")
	task := seedTask(t, store, p.ID, "a", models.StatusTodo)

	deleted, err := store.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, deleted.ProjectID)

	_, err = store.DeleteTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecalculateAgainstStore(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")
	for _, s := range []models.Status{
		models.StatusTodo, models.StatusTodo, models.StatusInProgress,
		models.StatusDone, models.StatusDone, models.StatusDone,
	} {
		seedTask(t, store, p.ID, "t", s)
	}
	seedTask(t, store, seedProject(t, store, "other").ID, "noise", models.StatusDone)

	r := counters.New(store, store, nil)
	want := models.TaskCounts{Todo: 2, InProgress: 1, Done: 3}
	for i := 0; i < 2; i++ {
		got, err := r.Recalculate(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	stored, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.TasksCount)

	assert.ErrorIs(t, store.UpdateProjectCounters(ctx, "missing", want), ErrNotFound)
}

func TestCreateProjectNextDueDate(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	p, err := store.CreateProject(ctx, NewProject{Name: "Launch", NextDueDate: " 2026-11-02 ", CreatedBy: "owner"})
	require.NoError(t, err)
	assert.Equal(t, "2026-11-02", p.NextDueDate)

	_, err = store.CreateProject(ctx, NewProject{Name: "Launch", NextDueDate: "02/11/2026", CreatedBy: "owner"})
	assert.ErrorIs(t, err, ErrInvalid)

	bad := "tomorrow"
	_, err = store.UpdateProject(ctx, p.ID, ProjectChanges{NextDueDate: &bad})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidationErrorsAreMarked(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	p := seedProject(t, store, "P")

	_, err := store.CreateProject(ctx, NewProject{Name: " ", CreatedBy: "owner"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = store.CreateTask(ctx, NewTask{ProjectID: p.ID, Title: "", CreatedBy: "owner"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, store.AddMember(ctx, p.ID, ""), ErrInvalid)

	other := seedProject(t, store, "Q")
	task := seedTask(t, store, p.ID, "T", models.StatusTodo)
	_, err = store.UpdateTask(ctx, task.ID, TaskChanges{ProjectID: &other.ID})
	assert.ErrorIs(t, err, ErrInvalid)
}
