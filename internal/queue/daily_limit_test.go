package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ag3ntum/ag3ntum/internal/storage"
)

func TestFileDailyLimiter_IncrementAndRead(t *testing.T) {
	ctx := context.Background()
	store := storage.New(t.TempDir())
	limiter := NewFileDailyLimiter(store)

	count, err := limiter.TasksToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, limiter.IncrementToday(ctx, "u1"))
	require.NoError(t, limiter.IncrementToday(ctx, "u1"))

	count, err = limiter.TasksToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestFileDailyLimiter_ResetsOnNewDay(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	rec := resetIfNewDay(userQuotaRecord{TasksToday: 7, LastReset: yesterday.UnixMilli()}, time.Now().UTC())
	assert.Equal(t, 0, rec.TasksToday)
}

func TestFileDailyLimiter_NoResetSameDay(t *testing.T) {
	now := time.Now().UTC()
	rec := resetIfNewDay(userQuotaRecord{TasksToday: 3, LastReset: now.UnixMilli()}, now)
	assert.Equal(t, 3, rec.TasksToday)
}
