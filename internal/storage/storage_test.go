package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quotaRecord struct {
	TasksToday int   `json:"tasksToday"`
	LastReset  int64 `json:"lastReset"`
}

func TestStorage_PutThenGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	rec := quotaRecord{TasksToday: 3, LastReset: 1700000000000}
	require.NoError(t, s.Put(ctx, []string{"quotas", "u1"}, rec))

	var got quotaRecord
	require.NoError(t, s.Get(ctx, []string{"quotas", "u1"}, &got))
	assert.Equal(t, rec, got)
}

func TestStorage_GetMissingReturnsErrNotFound(t *testing.T) {
	s := New(t.TempDir())
	var got quotaRecord
	err := s.Get(context.Background(), []string{"quotas", "ghost"}, &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_PutOverwritesExistingRecord(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"quotas", "u1"}, quotaRecord{TasksToday: 1}))
	require.NoError(t, s.Put(ctx, []string{"quotas", "u1"}, quotaRecord{TasksToday: 2}))

	var got quotaRecord
	require.NoError(t, s.Get(ctx, []string{"quotas", "u1"}, &got))
	assert.Equal(t, 2, got.TasksToday)
}

func TestStorage_ConcurrentPutsSerializeWithoutCorruption(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(n int) {
			_ = s.Put(ctx, []string{"quotas", "shared"}, quotaRecord{TasksToday: n})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	var got quotaRecord
	require.NoError(t, s.Get(ctx, []string{"quotas", "shared"}, &got))
}
