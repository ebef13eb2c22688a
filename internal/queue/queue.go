// Package queue is the Redis-backed priority task queue (spec §4.6):
// sessions wait here when global/per-user quotas are saturated, ordered
// by priority and then FIFO. Grounded on
// original_source/src/services/task_queue.py.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

const (
	queueKey         = "task_queue:pending"
	taskKeyPrefix    = "task_queue:task:"
	userActivePrefix = "task_queue:user:"

	// DefaultTaskTTL matches task_queue.py's DEFAULT_TASK_TTL_SECONDS.
	DefaultTaskTTL = 24 * time.Hour

	// priorityWeight is subtracted per priority point from the sort
	// score so higher-priority tasks sort before older lower-priority
	// ones; timestamp still breaks ties FIFO within the same priority.
	priorityWeight = 1_000_000
)

// UnavailableError means Redis itself could not be reached; callers
// should fail closed (reject new submissions) rather than silently
// drop them.
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("queue: %s: queue unavailable: %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// OverflowError means the queue is at its configured capacity.
type OverflowError struct {
	CurrentSize int64
	MaxSize     int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("queue: full (%d/%d tasks)", e.CurrentSize, e.MaxSize)
}

// TaskQueue is a Redis sorted-set priority queue. Score = queued-at
// (unix seconds) minus priority*priorityWeight, so ZPOPMIN always
// returns the highest-priority, then oldest, pending task.
type TaskQueue struct {
	client       *redis.Client
	taskTTL      time.Duration
	maxQueueSize int64
}

// NewTaskQueue constructs a TaskQueue around an already-configured
// redis client. maxQueueSize of 0 means unlimited.
func NewTaskQueue(client *redis.Client, taskTTL time.Duration, maxQueueSize int64) *TaskQueue {
	if taskTTL <= 0 {
		taskTTL = DefaultTaskTTL
	}
	return &TaskQueue{client: client, taskTTL: taskTTL, maxQueueSize: maxQueueSize}
}

func taskKey(sessionID string) string {
	return taskKeyPrefix + sessionID
}

func userActiveKey(userID string) string {
	return userActivePrefix + userID + ":active"
}

// Enqueue adds task to the queue and returns its 1-based position.
func (q *TaskQueue) Enqueue(ctx context.Context, task types.QueuedTask) (int64, error) {
	if q.maxQueueSize > 0 {
		size, err := q.client.ZCard(ctx, queueKey).Result()
		if err != nil {
			return 0, &UnavailableError{Op: "enqueue", Cause: err}
		}
		if size >= q.maxQueueSize {
			return 0, &OverflowError{CurrentSize: size, MaxSize: q.maxQueueSize}
		}
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return 0, fmt.Errorf("queue: marshal task: %w", err)
	}

	score := float64(task.QueuedAt)/1000 - float64(task.Priority*priorityWeight)

	if err := q.client.Set(ctx, taskKey(task.SessionID), payload, q.taskTTL).Err(); err != nil {
		return 0, &UnavailableError{Op: "enqueue", Cause: err}
	}
	if err := q.client.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: task.SessionID}).Err(); err != nil {
		return 0, &UnavailableError{Op: "enqueue", Cause: err}
	}

	rank, err := q.client.ZRank(ctx, queueKey, task.SessionID).Result()
	if err != nil {
		return 0, &UnavailableError{Op: "enqueue", Cause: err}
	}
	return rank + 1, nil
}

// Dequeue removes and returns the highest-priority task, or nil (no
// error) if the queue is empty or Redis is unreachable — processing
// degrades gracefully rather than crashing the poll loop.
func (q *TaskQueue) Dequeue(ctx context.Context) *types.QueuedTask {
	results, err := q.client.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil || len(results) == 0 {
		return nil
	}
	sessionID, _ := results[0].Member.(string)

	payload, err := q.client.Get(ctx, taskKey(sessionID)).Result()
	if err != nil {
		return nil
	}
	q.client.Del(ctx, taskKey(sessionID))

	var task types.QueuedTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil
	}
	return &task
}

// Peek returns the highest-priority task without removing it, or nil.
func (q *TaskQueue) Peek(ctx context.Context) *types.QueuedTask {
	members, err := q.client.ZRange(ctx, queueKey, 0, 0).Result()
	if err != nil || len(members) == 0 {
		return nil
	}
	sessionID := members[0]

	payload, err := q.client.Get(ctx, taskKey(sessionID)).Result()
	if err != nil {
		// Orphaned queue entry (task data expired or was never written).
		q.client.ZRem(ctx, queueKey, sessionID)
		return nil
	}

	var task types.QueuedTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil
	}
	return &task
}

// Position returns the 1-based queue position for sessionID, or -1 if
// it is not queued.
func (q *TaskQueue) Position(ctx context.Context, sessionID string) (int64, error) {
	rank, err := q.client.ZRank(ctx, queueKey, sessionID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, &UnavailableError{Op: "position", Cause: err}
	}
	return rank + 1, nil
}

// Length returns the total number of pending tasks.
func (q *TaskQueue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, &UnavailableError{Op: "length", Cause: err}
	}
	return n, nil
}

// Remove drops sessionID from the queue (e.g. on cancel), returning
// whether it was present.
func (q *TaskQueue) Remove(ctx context.Context, sessionID string) (bool, error) {
	removed, err := q.client.ZRem(ctx, queueKey, sessionID).Result()
	if err != nil {
		return false, &UnavailableError{Op: "remove", Cause: err}
	}
	q.client.Del(ctx, taskKey(sessionID))
	return removed > 0, nil
}

// QueuedSession is one entry returned by QueuedSessions, in queue
// order (best priority first).
type QueuedSession struct {
	SessionID string
	Score     float64
}

// QueuedSessions returns up to limit queued sessions in priority
// order, used to recompute queue_position_update broadcasts.
func (q *TaskQueue) QueuedSessions(ctx context.Context, limit int64) ([]QueuedSession, error) {
	if limit <= 0 {
		limit = 100
	}
	zs, err := q.client.ZRangeWithScores(ctx, queueKey, 0, limit-1).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "queued_sessions", Cause: err}
	}
	out := make([]QueuedSession, 0, len(zs))
	for _, z := range zs {
		sessionID, _ := z.Member.(string)
		out = append(out, QueuedSession{SessionID: sessionID, Score: z.Score})
	}
	return out, nil
}

// UserActiveCount returns the number of sessions currently marked
// active (running) for userID.
func (q *TaskQueue) UserActiveCount(ctx context.Context, userID string) (int64, error) {
	n, err := q.client.SCard(ctx, userActiveKey(userID)).Result()
	if err != nil {
		return 0, &UnavailableError{Op: "user_active_count", Cause: err}
	}
	return n, nil
}

// MarkUserActive records sessionID as an active task for userID.
func (q *TaskQueue) MarkUserActive(ctx context.Context, userID, sessionID string) error {
	if err := q.client.SAdd(ctx, userActiveKey(userID), sessionID).Err(); err != nil {
		return &UnavailableError{Op: "mark_user_active", Cause: err}
	}
	return nil
}

// MarkUserInactive removes sessionID from userID's active set.
func (q *TaskQueue) MarkUserInactive(ctx context.Context, userID, sessionID string) error {
	if err := q.client.SRem(ctx, userActiveKey(userID), sessionID).Err(); err != nil {
		return &UnavailableError{Op: "mark_user_inactive", Cause: err}
	}
	return nil
}

// ClearUserActive drops every active session recorded for userID
// (startup cleanup after an unclean shutdown) and returns how many
// entries were cleared.
func (q *TaskQueue) ClearUserActive(ctx context.Context, userID string) (int64, error) {
	key := userActiveKey(userID)
	count, err := q.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, &UnavailableError{Op: "clear_user_active", Cause: err}
	}
	if count > 0 {
		if err := q.client.Del(ctx, key).Err(); err != nil {
			return 0, &UnavailableError{Op: "clear_user_active", Cause: err}
		}
	}
	return count, nil
}

// Healthy pings Redis and reports the current queue length.
func (q *TaskQueue) Healthy(ctx context.Context) (bool, string) {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return false, fmt.Sprintf("redis connection failed: %v", err)
	}
	n, err := q.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return false, fmt.Sprintf("redis error: %v", err)
	}
	return true, fmt.Sprintf("queue operational, %d tasks pending", n)
}
