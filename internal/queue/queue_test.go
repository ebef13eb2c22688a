package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

func newTestQueue(t *testing.T) *TaskQueue {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewTaskQueue(client, time.Hour, 0)
}

func TestEnqueueDequeue_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, types.QueuedTask{SessionID: "low", UserID: "u1", Priority: 0, QueuedAt: 1000})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, types.QueuedTask{SessionID: "high", UserID: "u1", Priority: 100, QueuedAt: 2000})
	require.NoError(t, err)

	task := q.Dequeue(ctx)
	require.NotNil(t, task)
	assert.Equal(t, "high", task.SessionID)

	task = q.Dequeue(ctx)
	require.NotNil(t, task)
	assert.Equal(t, "low", task.SessionID)

	assert.Nil(t, q.Dequeue(ctx))
}

func TestEnqueue_FIFOWithinSamePriority(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, types.QueuedTask{SessionID: "first", Priority: 0, QueuedAt: 1000})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, types.QueuedTask{SessionID: "second", Priority: 0, QueuedAt: 2000})
	require.NoError(t, err)

	task := q.Dequeue(ctx)
	require.NotNil(t, task)
	assert.Equal(t, "first", task.SessionID)
}

func TestEnqueue_OverflowError(t *testing.T) {
	ctx := context.Background()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewTaskQueue(client, time.Hour, 1)
	_, err = q.Enqueue(ctx, types.QueuedTask{SessionID: "a", Priority: 0, QueuedAt: 1})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, types.QueuedTask{SessionID: "b", Priority: 0, QueuedAt: 2})
	require.Error(t, err)
	var overflow *OverflowError
	assert.ErrorAs(t, err, &overflow)
}

func TestPosition(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	pos, err := q.Position(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos)

	_, err = q.Enqueue(ctx, types.QueuedTask{SessionID: "s1", Priority: 0, QueuedAt: 1})
	require.NoError(t, err)

	pos, err = q.Position(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, types.QueuedTask{SessionID: "s1", Priority: 0, QueuedAt: 1})
	require.NoError(t, err)

	removed, err := q.Remove(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Remove(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUserActiveTracking(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.MarkUserActive(ctx, "u1", "s1"))
	require.NoError(t, q.MarkUserActive(ctx, "u1", "s2"))

	count, err := q.UserActiveCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, q.MarkUserInactive(ctx, "u1", "s1"))
	count, err = q.UserActiveCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	cleared, err := q.ClearUserActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)
}

func TestHealthy(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	ok, msg := q.Healthy(ctx)
	assert.True(t, ok)
	assert.Contains(t, msg, "operational")
}
