package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ag3ntum/ag3ntum/internal/storage"
)

// userQuotaRecord persists across restarts, mirroring
// db/models.py::UserQuota's daily-counter fields.
type userQuotaRecord struct {
	TasksToday int   `json:"tasksToday"`
	LastReset  int64 `json:"lastReset"` // unix millis of the last reset
}

// FileDailyLimiter is a DailyLimiter backed by the file-based JSON
// storage layer, so daily counts survive a restart without requiring
// a SQL database for this one feature. Grounded on
// original_source/src/services/quota_manager.py's daily-limit check
// and db/models.py::UserQuota.reset_if_needed.
type FileDailyLimiter struct {
	store *storage.Storage
	mu    sync.Mutex
}

// NewFileDailyLimiter roots per-user quota records under store.
func NewFileDailyLimiter(store *storage.Storage) *FileDailyLimiter {
	return &FileDailyLimiter{store: store}
}

func (f *FileDailyLimiter) path(userID string) []string {
	return []string{"quotas", userID}
}

func (f *FileDailyLimiter) load(ctx context.Context, userID string) (userQuotaRecord, error) {
	var rec userQuotaRecord
	err := f.store.Get(ctx, f.path(userID), &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return userQuotaRecord{}, nil
	}
	return rec, err
}

func resetIfNewDay(rec userQuotaRecord, now time.Time) userQuotaRecord {
	last := time.UnixMilli(rec.LastReset).UTC()
	if rec.LastReset == 0 || last.Year() != now.Year() || last.YearDay() != now.YearDay() {
		return userQuotaRecord{TasksToday: 0, LastReset: now.UnixMilli()}
	}
	return rec
}

// TasksToday returns how many tasks userID has started today (UTC),
// resetting the counter first if the stored record is from a prior
// day.
func (f *FileDailyLimiter) TasksToday(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	rec = resetIfNewDay(rec, time.Now().UTC())
	return int64(rec.TasksToday), nil
}

// IncrementToday increments userID's daily count, resetting first if
// the stored record is stale.
func (f *FileDailyLimiter) IncrementToday(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.load(ctx, userID)
	if err != nil {
		return err
	}
	rec = resetIfNewDay(rec, time.Now().UTC())
	rec.TasksToday++
	return f.store.Put(ctx, f.path(userID), rec)
}
