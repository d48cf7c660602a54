package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/counters"
	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/workflow"
)

// fakeStore is an in-memory authoritative store. When gate is set every
// status write waits for a value on it before answering.
type fakeStore struct {
	mu       sync.Mutex
	tasks    map[string]models.Task
	order    []string
	counts   map[string]models.TaskCounts
	calls    int
	failWith error
	gate     chan struct{}
	started  chan string
}

func newFakeStore(tasks ...models.Task) *fakeStore {
	f := &fakeStore{tasks: map[string]models.Task{}, counts: map[string]models.TaskCounts{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
		f.order = append(f.order, t.ID)
	}
	return f
}

func (f *fakeStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.Status) error {
	f.mu.Lock()
	f.calls++
	started, gate, failWith := f.started, f.gate, f.failWith
	f.mu.Unlock()

	if started != nil {
		started <- taskID
	}
	if gate != nil {
		<-gate
	}
	if failWith != nil {
		return failWith
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[taskID]
	t.Status = status
	f.tasks[taskID] = t
	return nil
}

func (f *fakeStore) GetTasksByProject(ctx context.Context, projectID string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Task
	for _, id := range f.order {
		if t := f.tasks[id]; t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateProjectCounters(ctx context.Context, projectID string, counts models.TaskCounts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[projectID] = counts
	return nil
}

func (f *fakeStore) storeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func task(id string, status models.Status) models.Task {
	return models.Task{ID: id, ProjectID: "P", Title: "Task " + id, Status: status, Priority: models.PriorityMedium}
}

func newTestController(store *fakeStore) (*Controller, *notify.Recorder) {
	rec := &notify.Recorder{}
	c := NewController(store, counters.New(store, store, nil), rec, nil)
	tasks, _ := store.GetTasksByProject(context.Background(), "P")
	c.Sync(tasks)
	return c, rec
}

func visibleStatus(t *testing.T, c *Controller, id string) models.Status {
	t.Helper()
	got, ok := c.Task(id)
	require.True(t, ok, "task %s not visible", id)
	return got.Status
}

func TestRequestStatusChangeCommits(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	c, rec := newTestController(store)

	res, err := c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res)
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T1"))
	assert.Empty(t, c.PendingIDs())
	assert.Equal(t, models.TaskCounts{InProgress: 1}, store.counts["P"])

	got := rec.All()
	require.Len(t, got, 1)
	assert.Equal(t, notify.VariantDefault, got[0].Variant)
	assert.Equal(t, "Task moved to In Progress", got[0].Description)
}

func TestRequestStatusChangeRollsBackOnStoreFailure(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	store.failWith = errors.New("network down")
	c, rec := newTestController(store)
	before, _ := c.Task("T1")

	res, err := c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failWith)
	assert.Equal(t, ResultRolledBack, res)

	after, _ := c.Task("T1")
	assert.Equal(t, before, after)
	assert.False(t, c.IsPending("T1"))
	assert.Empty(t, store.counts)

	got := rec.All()
	require.Len(t, got, 1)
	assert.Equal(t, notify.VariantDestructive, got[0].Variant)
}

func TestRequestStatusChangeAppliesBeforeStoreAnswers(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	store.gate = make(chan struct{})
	store.started = make(chan string, 1)
	c, _ := newTestController(store)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
		done <- res
	}()

	select {
	case <-store.started:
	case <-time.After(time.Second):
		t.Fatal("store was never called")
	}
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T1"))
	assert.True(t, c.IsPending("T1"))

	close(store.gate)
	select {
	case res := <-done:
		assert.Equal(t, ResultCommitted, res)
	case <-time.After(time.Second):
		t.Fatal("request did not finish")
	}
	assert.False(t, c.IsPending("T1"))
}

func TestRequestStatusChangeSuppressesDuplicates(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo), task("T2", models.StatusTodo))
	store.gate = make(chan struct{})
	store.started = make(chan string, 2)
	c, _ := newTestController(store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
	}()
	<-store.started

	res, err := c.RequestStatusChange(context.Background(), "T1", models.StatusDone)
	assert.Equal(t, ResultDuplicate, res)
	assert.ErrorIs(t, err, ErrPending)
	assert.Equal(t, 1, store.storeCalls())
	assert.Equal(t, []string{"T1"}, c.PendingIDs())
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T1"))

	// an unrelated task is not blocked by T1's lock
	other := make(chan Result, 1)
	go func() {
		res, _ := c.RequestStatusChange(context.Background(), "T2", models.StatusInProgress)
		other <- res
	}()
	<-store.started
	assert.ElementsMatch(t, []string{"T1", "T2"}, c.PendingIDs())

	close(store.gate)
	<-done
	assert.Equal(t, ResultCommitted, <-other)
	assert.Empty(t, c.PendingIDs())
	assert.Equal(t, 2, store.storeCalls())
}

func TestRequestStatusChangeNoops(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusDone))
	c, rec := newTestController(store)

	res, err := c.RequestStatusChange(context.Background(), "T1", models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, res)

	res, err = c.RequestStatusChange(context.Background(), "missing", models.StatusDone)
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.Equal(t, ResultNoop, res)

	assert.Zero(t, store.storeCalls())
	assert.Empty(t, rec.All())
}

func TestRequestStatusChangeRejectsSkippingColumns(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	c, rec := newTestController(store)

	res, err := c.RequestStatusChange(context.Background(), "T1", models.StatusDone)
	assert.Equal(t, ResultRejected, res)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Zero(t, store.storeCalls())
	assert.Equal(t, models.StatusTodo, visibleStatus(t, c, "T1"))
	assert.Empty(t, c.PendingIDs())

	got := rec.All()
	require.Len(t, got, 1)
	assert.Equal(t, "Invalid Move", got[0].Title)
	assert.Contains(t, got[0].Description, "To Do")
	assert.Contains(t, got[0].Description, "Done")
}

func TestEndToEndProjectScenario(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo), task("T2", models.StatusInProgress))
	c, _ := newTestController(store)
	ctx := context.Background()

	res, err := c.RequestStatusChange(ctx, "T1", models.StatusInProgress)
	require.NoError(t, err)
	require.Equal(t, ResultCommitted, res)
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T1"))
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T2"))

	counts, err := counters.New(store, store, nil).Recalculate(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCounts{InProgress: 2}, counts)

	res, err = c.RequestStatusChange(ctx, "T1", models.StatusTodo)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res)

	calls := store.storeCalls()
	res, err = c.RequestStatusChange(ctx, "T1", models.StatusDone)
	assert.Equal(t, ResultRejected, res)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Equal(t, calls, store.storeCalls())
	assert.Equal(t, models.TaskCounts{Todo: 1, InProgress: 1}, store.counts["P"])
}

func TestSyncKeepsPendingStatus(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	store.gate = make(chan struct{})
	store.started = make(chan string, 1)
	c, _ := newTestController(store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
	}()
	<-store.started

	c.Sync([]models.Task{task("T1", models.StatusTodo), task("T3", models.StatusDone)})
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T1"))
	assert.Equal(t, models.StatusDone, visibleStatus(t, c, "T3"))

	close(store.gate)
	<-done
}

func TestOnChangeSeesApplyAndRevert(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	store.failWith = errors.New("rejected")
	c, _ := newTestController(store)

	var seen []models.Status
	c.OnChange(func(tasks []models.Task) {
		seen = append(seen, tasks[0].Status)
	})

	_, _ = c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
	assert.Equal(t, []models.Status{models.StatusInProgress, models.StatusTodo}, seen)
}

type failingRecalc struct {
	mu    sync.Mutex
	calls []string
}

func (f *failingRecalc) Recalculate(ctx context.Context, projectID string) (models.TaskCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, projectID)
	return models.TaskCounts{}, errors.New("counter write failed")
}

func TestRequestStatusChangeCommitsWhenRecalculationFails(t *testing.T) {
	store := newFakeStore(task("T1", models.StatusTodo))
	recalc := &failingRecalc{}
	rec := &notify.Recorder{}
	c := NewController(store, recalc, rec, nil)
	tasks, _ := store.GetTasksByProject(context.Background(), "P")
	c.Sync(tasks)

	res, err := c.RequestStatusChange(context.Background(), "T1", models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res)
	assert.Equal(t, models.StatusInProgress, visibleStatus(t, c, "T1"))
	assert.False(t, c.IsPending("T1"))
	assert.Equal(t, []string{"P"}, recalc.calls)

	got := rec.All()
	require.Len(t, got, 1)
	assert.Equal(t, notify.VariantDefault, got[0].Variant)

	res, err = c.RequestStatusChange(context.Background(), "T1", models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res)
}
