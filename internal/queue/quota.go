package queue

import (
	"context"
	"fmt"
	"sync/atomic"
)

// QuotaConfig bounds how many tasks may run at once, per spec §4.6.
// Grounded on original_source/src/services/queue_config.py::QuotaConfig.
type QuotaConfig struct {
	GlobalMaxConcurrent  int64
	PerUserMaxConcurrent int64
	// PerUserDailyLimit of 0 disables the daily check.
	PerUserDailyLimit int64
}

// DefaultQuotaConfig matches queue_config.py's dataclass defaults.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{GlobalMaxConcurrent: 4, PerUserMaxConcurrent: 2, PerUserDailyLimit: 50}
}

// DailyLimiter checks and tracks the optional per-user daily task
// count. It is satisfied by a persistence layer outside this package;
// nil means the daily limit is never enforced regardless of config.
type DailyLimiter interface {
	TasksToday(ctx context.Context, userID string) (int64, error)
	IncrementToday(ctx context.Context, userID string) error
}

// Manager gates task starts behind three checks: a global concurrency
// ceiling, a per-user concurrency ceiling, and an optional per-user
// daily ceiling. Grounded on
// original_source/src/services/quota_manager.py::QuotaManager.
type Manager struct {
	queue  *TaskQueue
	config QuotaConfig
	daily  DailyLimiter

	globalActive atomic.Int64
}

// NewManager constructs a Manager. daily may be nil to disable the
// daily-limit check entirely.
func NewManager(q *TaskQueue, config QuotaConfig, daily DailyLimiter) *Manager {
	return &Manager{queue: q, config: config, daily: daily}
}

// CanStartTask reports whether userID may start a new task right now,
// and if not, a human-readable reason.
func (m *Manager) CanStartTask(ctx context.Context, userID string) (bool, string, error) {
	if m.globalActive.Load() >= m.config.GlobalMaxConcurrent {
		return false, fmt.Sprintf("global limit reached (%d concurrent tasks)", m.config.GlobalMaxConcurrent), nil
	}

	userActive, err := m.queue.UserActiveCount(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if m.config.PerUserMaxConcurrent > 0 && userActive >= m.config.PerUserMaxConcurrent {
		return false, fmt.Sprintf("user concurrent limit reached (%d tasks)", m.config.PerUserMaxConcurrent), nil
	}

	if m.config.PerUserDailyLimit > 0 && m.daily != nil {
		today, err := m.daily.TasksToday(ctx, userID)
		if err != nil {
			return false, "", err
		}
		if today >= m.config.PerUserDailyLimit {
			return false, fmt.Sprintf("daily limit reached (%d tasks/day)", m.config.PerUserDailyLimit), nil
		}
	}

	return true, "", nil
}

// IncrementDailyCount records that userID actually started a task
// today. A no-op when the daily limit is disabled or no DailyLimiter
// is configured.
func (m *Manager) IncrementDailyCount(ctx context.Context, userID string) error {
	if m.config.PerUserDailyLimit <= 0 || m.daily == nil {
		return nil
	}
	return m.daily.IncrementToday(ctx, userID)
}

// IncrementGlobal records a task starting.
func (m *Manager) IncrementGlobal() { m.globalActive.Add(1) }

// DecrementGlobal records a task ending; never goes negative.
func (m *Manager) DecrementGlobal() {
	for {
		cur := m.globalActive.Load()
		if cur <= 0 {
			return
		}
		if m.globalActive.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// GlobalActive returns the current in-flight task count.
func (m *Manager) GlobalActive() int64 { return m.globalActive.Load() }

// SetGlobalCount overwrites the in-flight counter, used at startup
// once the real set of already-running sessions is known.
func (m *Manager) SetGlobalCount(n int64) { m.globalActive.Store(n) }

// Config returns the quota configuration in effect.
func (m *Manager) Config() QuotaConfig { return m.config }
