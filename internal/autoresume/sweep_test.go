package autoresume

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ag3ntum/ag3ntum/internal/queue"
	"github.com/ag3ntum/ag3ntum/pkg/types"
)

type fakeTracker struct {
	mu          sync.Mutex
	recoverable []types.Session
	stale       []types.Session
	failed      []string
	queued      map[string]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{queued: make(map[string]int)}
}

func (f *fakeTracker) FindRecoverable(ctx context.Context, cutoff time.Time) ([]types.Session, error) {
	return f.recoverable, nil
}

func (f *fakeTracker) FindStale(ctx context.Context, cutoff time.Time) ([]types.Session, error) {
	return f.stale, nil
}

func (f *fakeTracker) MarkFailed(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, sessionID)
	return nil
}

func (f *fakeTracker) MarkQueued(ctx context.Context, sessionID string, position, resumeAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[sessionID] = resumeAttempts
	return nil
}

func strPtr(s string) *string { return &s }

func TestRecoverOnStartup_Disabled(t *testing.T) {
	tracker := newFakeTracker()
	sweeper := NewSweeper(tracker, nil, Config{Enabled: false})

	stats, err := sweeper.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Enabled)
	assert.Equal(t, 0, stats.Recovered)
}

func TestRecoverOnStartup_RequeuesRunningSession(t *testing.T) {
	tracker := newFakeTracker()
	tracker.recoverable = []types.Session{
		{ID: "s1", UserID: "u1", TaskText: "do the thing", Status: types.StatusRunning, ExternalResumeID: strPtr("ext-1")},
	}

	q := newTestQueue(t)
	sweeper := NewSweeper(tracker, q, DefaultConfig())

	stats, err := sweeper.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RunningFound)
	assert.Equal(t, 1, stats.Recovered)

	task := q.Dequeue(context.Background())
	require.NotNil(t, task)
	assert.Equal(t, "s1", task.SessionID)
	assert.Equal(t, PriorityAutoResume, task.Priority)
	assert.True(t, task.IsAutoResume)
	assert.Equal(t, 1, tracker.queued["s1"])
}

func TestRecoverOnStartup_MarksFailedWhenRunningWithoutResumeID(t *testing.T) {
	tracker := newFakeTracker()
	tracker.recoverable = []types.Session{
		{ID: "s2", UserID: "u1", Status: types.StatusRunning},
	}
	q := newTestQueue(t)
	sweeper := NewSweeper(tracker, q, DefaultConfig())

	stats, err := sweeper.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedNoResumeID)
	assert.Contains(t, tracker.failed, "s2")
}

func TestRecoverOnStartup_MarksFailedAtMaxAttempts(t *testing.T) {
	tracker := newFakeTracker()
	tracker.recoverable = []types.Session{
		{ID: "s3", UserID: "u1", Status: types.StatusQueued, ResumeAttempts: 3},
	}
	q := newTestQueue(t)
	config := DefaultConfig()
	config.MaxResumeAttempts = 3
	sweeper := NewSweeper(tracker, q, config)

	stats, err := sweeper.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedMaxAttempts)
	assert.Contains(t, tracker.failed, "s3")
}

func TestRecoverOnStartup_QueuedSessionGetsLowerPriority(t *testing.T) {
	tracker := newFakeTracker()
	tracker.recoverable = []types.Session{
		{ID: "s4", UserID: "u1", Status: types.StatusQueued, TaskText: "resume me"},
	}
	q := newTestQueue(t)
	sweeper := NewSweeper(tracker, q, DefaultConfig())

	stats, err := sweeper.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.QueuedFound)

	task := q.Dequeue(context.Background())
	require.NotNil(t, task)
	assert.Equal(t, PriorityQueuedRecovery, task.Priority)
}

func TestCleanupOldSessions(t *testing.T) {
	tracker := newFakeTracker()
	tracker.stale = []types.Session{{ID: "old1"}, {ID: "old2"}}
	sweeper := NewSweeper(tracker, nil, DefaultConfig())

	count, err := sweeper.CleanupOldSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"old1", "old2"}, tracker.failed)
}

// newTestQueue mirrors the queue package's own miniredis-backed test
// helper so this package's tests don't need a real Redis instance.
func newTestQueue(t *testing.T) *queue.TaskQueue {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return queue.NewTaskQueue(client, time.Hour, 0)
}
