package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDailyLimiter struct {
	counts map[string]int64
}

func newFakeDailyLimiter() *fakeDailyLimiter {
	return &fakeDailyLimiter{counts: make(map[string]int64)}
}

func (f *fakeDailyLimiter) TasksToday(ctx context.Context, userID string) (int64, error) {
	return f.counts[userID], nil
}

func (f *fakeDailyLimiter) IncrementToday(ctx context.Context, userID string) error {
	f.counts[userID]++
	return nil
}

func TestManager_GlobalLimit(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	m := NewManager(q, QuotaConfig{GlobalMaxConcurrent: 1, PerUserMaxConcurrent: 5}, nil)

	ok, _, err := m.CanStartTask(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	m.IncrementGlobal()
	ok, reason, err := m.CanStartTask(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "global limit")

	m.DecrementGlobal()
	ok, _, err = m.CanStartTask(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_PerUserLimit(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	m := NewManager(q, QuotaConfig{GlobalMaxConcurrent: 10, PerUserMaxConcurrent: 1}, nil)

	require.NoError(t, q.MarkUserActive(ctx, "u1", "s1"))

	ok, reason, err := m.CanStartTask(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "user concurrent limit")
}

func TestManager_DailyLimit(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	daily := newFakeDailyLimiter()
	daily.counts["u1"] = 5
	m := NewManager(q, QuotaConfig{GlobalMaxConcurrent: 10, PerUserMaxConcurrent: 10, PerUserDailyLimit: 5}, daily)

	ok, reason, err := m.CanStartTask(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily limit")
}

func TestManager_DailyLimitDisabledWithoutLimiter(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	m := NewManager(q, QuotaConfig{GlobalMaxConcurrent: 10, PerUserMaxConcurrent: 10, PerUserDailyLimit: 1}, nil)

	ok, _, err := m.CanStartTask(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, m.IncrementDailyCount(ctx, "u1"))
}

func TestManager_GlobalActiveNeverGoesNegative(t *testing.T) {
	m := NewManager(nil, DefaultQuotaConfig(), nil)
	m.DecrementGlobal()
	assert.Equal(t, int64(0), m.GlobalActive())
}
