// Package autoresume finds sessions stuck mid-run by an unclean
// restart and re-queues them with elevated priority so they resume
// before new work starts. Grounded on
// original_source/src/services/auto_resume.py::AutoResumeService.
package autoresume

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ag3ntum/ag3ntum/internal/queue"
	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// Priority levels, matching auto_resume.py's module constants: a
// session that was actively running when the process died is resumed
// ahead of one that was merely waiting in queue.
const (
	PriorityAutoResume     = 100
	PriorityQueuedRecovery = 50
)

// Config mirrors queue_config.py::AutoResumeConfig.
type Config struct {
	Enabled           bool
	MaxSessionAge     time.Duration
	MaxResumeAttempts int
	ResumeDelay       time.Duration
}

// DefaultConfig matches the Python dataclass defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxSessionAge:     6 * time.Hour,
		MaxResumeAttempts: 3,
		ResumeDelay:       5 * time.Second,
	}
}

// SessionTracker is the durable session store this sweep reads from
// and writes back to.
type SessionTracker interface {
	// FindRecoverable returns sessions with status running or queued,
	// updated at or after cutoff, oldest first.
	FindRecoverable(ctx context.Context, cutoff time.Time) ([]types.Session, error)
	// FindStale returns sessions with status running, queued, or
	// pending, updated strictly before cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]types.Session, error)
	MarkFailed(ctx context.Context, sessionID string) error
	MarkQueued(ctx context.Context, sessionID string, position, resumeAttempts int) error
}

// Stats summarizes one recovery pass, mirroring auto_resume.py's
// return dict so operators get the same at-a-glance counters.
type Stats struct {
	Enabled            bool
	RunningFound       int
	QueuedFound        int
	Recovered          int
	SkippedTooOld      int
	SkippedMaxAttempts int
	SkippedNoResumeID  int
	MarkedFailed       int
}

// Sweeper performs the startup recovery pass and the periodic
// stale-session cleanup pass.
type Sweeper struct {
	tracker SessionTracker
	queue   *queue.TaskQueue
	config  Config
}

// NewSweeper constructs a Sweeper. config.Enabled=false makes
// RecoverOnStartup a no-op, matching the Python service's disabled
// short-circuit.
func NewSweeper(tracker SessionTracker, q *queue.TaskQueue, config Config) *Sweeper {
	return &Sweeper{tracker: tracker, queue: q, config: config}
}

// RecoverOnStartup must run once, before the queue processor starts
// polling, so recovered sessions are already queued when it begins.
func (s *Sweeper) RecoverOnStartup(ctx context.Context) (Stats, error) {
	if !s.config.Enabled {
		log.Info().Msg("auto-resume is disabled")
		return Stats{Enabled: false}, nil
	}

	stats := Stats{Enabled: true}
	cutoff := time.Now().UTC().Add(-s.config.MaxSessionAge)

	sessions, err := s.tracker.FindRecoverable(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	log.Info().Int("count", len(sessions)).Time("cutoff", cutoff).Msg("auto-resume: found sessions to check")

	for _, session := range sessions {
		if session.Status == types.StatusRunning {
			stats.RunningFound++
		} else {
			stats.QueuedFound++
		}

		if session.ResumeAttempts >= s.config.MaxResumeAttempts {
			log.Warn().Str("session_id", session.ID).Int("attempts", session.ResumeAttempts).
				Msg("session exceeded max resume attempts")
			if err := s.tracker.MarkFailed(ctx, session.ID); err != nil {
				return stats, err
			}
			stats.SkippedMaxAttempts++
			stats.MarkedFailed++
			continue
		}

		hasResumeID := session.ExternalResumeID != nil && *session.ExternalResumeID != ""
		if !hasResumeID && session.Status == types.StatusRunning {
			log.Info().Str("session_id", session.ID).
				Msg("session has no external resume id and was running, marking failed")
			if err := s.tracker.MarkFailed(ctx, session.ID); err != nil {
				return stats, err
			}
			stats.SkippedNoResumeID++
			stats.MarkedFailed++
			continue
		}

		priority := PriorityQueuedRecovery
		if session.Status == types.StatusRunning {
			priority = PriorityAutoResume
		}

		task := session.TaskText
		if task == "" {
			task = "Resume interrupted task"
		}
		resumeFrom := ""
		if hasResumeID {
			resumeFrom = session.ID
		}

		position, err := s.queue.Enqueue(ctx, types.QueuedTask{
			SessionID:    session.ID,
			UserID:       session.UserID,
			Task:         task,
			Priority:     priority,
			QueuedAt:     time.Now().UnixMilli(),
			IsAutoResume: true,
			ResumeFrom:   resumeFrom,
		})
		if err != nil {
			return stats, err
		}

		attempts := session.ResumeAttempts + 1
		if err := s.tracker.MarkQueued(ctx, session.ID, int(position), attempts); err != nil {
			return stats, err
		}

		stats.Recovered++
		log.Info().Str("session_id", session.ID).Int64("position", position).
			Int("attempts", attempts).Msg("queued session for auto-resume")
	}

	log.Info().
		Int("recovered", stats.Recovered).
		Int("skipped_max_attempts", stats.SkippedMaxAttempts).
		Int("skipped_no_resume_id", stats.SkippedNoResumeID).
		Int("marked_failed", stats.MarkedFailed).
		Msg("auto-resume recovery complete")

	return stats, nil
}

// CleanupOldSessions marks sessions that are still non-terminal but
// older than the configured max age as failed — stragglers recovery
// didn't pick up (e.g. they predate the cutoff window entirely).
func (s *Sweeper) CleanupOldSessions(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.config.MaxSessionAge)

	sessions, err := s.tracker.FindStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, session := range sessions {
		if err := s.tracker.MarkFailed(ctx, session.ID); err != nil {
			return count, err
		}
		count++
		log.Info().Str("session_id", session.ID).Time("updated_at", time.UnixMilli(session.UpdatedAt)).
			Msg("marked old session as failed")
	}

	if count > 0 {
		log.Info().Int("count", count).Msg("cleaned up old abandoned sessions")
	}
	return count, nil
}
