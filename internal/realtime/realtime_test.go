package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/models"
	"taskboard/internal/notify"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	require.NoError(t, err)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = rc.Close()
		m.Close()
	})
	return m, rc
}

func TestRedisPublisherEncodesEvent(t *testing.T) {
	_, rc := newRedis(t)
	ctx := context.Background()

	sub := rc.Subscribe(ctx, "changes")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(rc, "changes")
	counts := models.TaskCounts{Todo: 1}
	require.NoError(t, pub.Publish(ctx, Event{Type: ProjectCounters, ProjectID: "p1", Counts: &counts}))

	select {
	case msg := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, ProjectCounters, ev.Type)
		assert.Equal(t, "p1", ev.ProjectID)
		require.NotNil(t, ev.Counts)
		assert.Equal(t, 1, ev.Counts.Todo)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSubscribeRelaysEventsAndSkipsGarbage(t *testing.T) {
	m, rc := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Subscribe(ctx, nil, rc, "changes", func(ev Event) { got <- ev })
	}()

	require.Eventually(t, func() bool {
		return len(m.PubSubChannels("changes")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	m.Publish("changes", "not json")
	pub := NewRedisPublisher(rc, "changes")
	require.NoError(t, pub.Publish(context.Background(), Event{Type: TaskUpdated, ProjectID: "p1", TaskID: "t1"}))

	select {
	case ev := <-got:
		assert.Equal(t, TaskUpdated, ev.Type)
		assert.Equal(t, "t1", ev.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestHubFiltersByProject(t *testing.T) {
	h := NewHub(nil)
	p1, stop1 := h.Listen("p1")
	all, stopAll := h.Listen("")
	defer stopAll()

	require.NoError(t, h.Publish(context.Background(), Event{Type: TaskCreated, ProjectID: "p2"}))
	require.NoError(t, h.Publish(context.Background(), Event{Type: TaskCreated, ProjectID: "p1"}))

	ev := <-p1
	assert.Equal(t, "p1", ev.ProjectID)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, h.Listeners())

	stop1()
	stop1()
	_, open := <-p1
	assert.False(t, open)
	assert.Equal(t, 1, h.Listeners())
}

func TestHubDropsForSlowListener(t *testing.T) {
	h := NewHub(nil)
	ch, stop := h.Listen("p")
	defer stop()

	for i := 0; i < listenerBuffer+5; i++ {
		h.Deliver(Event{Type: TaskUpdated, ProjectID: "p"})
	}
	assert.Len(t, ch, listenerBuffer)
}

func TestToastsPublishNotification(t *testing.T) {
	h := NewHub(nil)
	ch, stop := h.Listen("p1")
	defer stop()

	NewToasts(h, nil).Notify(notify.Notification{
		Title: "Task updated", Variant: notify.VariantDefault, ProjectID: "p1", TaskID: "t1",
	})

	ev := <-ch
	assert.Equal(t, Toast, ev.Type)
	require.NotNil(t, ev.Toast)
	assert.Equal(t, "Task updated", ev.Toast.Title)
	assert.Equal(t, "t1", ev.TaskID)
}
