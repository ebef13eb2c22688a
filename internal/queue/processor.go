package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ag3ntum/ag3ntum/internal/eventlog"
	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// TaskParams is what the processor hands to the orchestrator once
// quotas allow a queued task to actually start.
type TaskParams struct {
	Task            string
	SessionID       string
	UserID          string
	ResumeSessionID string
	ForkSession     bool
	IsAutoResume    bool
}

// Starter is the orchestrator-side collaborator that actually runs a
// task; the processor only decides *when* quotas allow it to start.
type Starter interface {
	StartTask(ctx context.Context, params TaskParams) error
}

// SessionTracker is the persistence-side collaborator the processor
// uses to move a session between queued/running/failed and to find
// tasks that have waited past the configured timeout. Implemented by
// whatever durable session store the deployment uses.
type SessionTracker interface {
	MarkRunning(ctx context.Context, sessionID string) error
	MarkFailed(ctx context.Context, sessionID, reason string) error
	SetQueuePosition(ctx context.Context, sessionID string, position int) error
	TimedOutQueued(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ProcessorConfig mirrors queue_config.py's QueueConfig.
type ProcessorConfig struct {
	ProcessingInterval time.Duration
	TaskTimeout        time.Duration // 0 disables timeout enforcement
}

// DefaultProcessorConfig matches the Python service's defaults
// (500ms poll, 30-minute queued-task timeout).
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{ProcessingInterval: 500 * time.Millisecond, TaskTimeout: 30 * time.Minute}
}

const timeoutCheckInterval = 60 * time.Second

// Processor is the background poll loop that dequeues tasks once
// quotas allow, and reaps tasks that have waited too long. Grounded
// on original_source/src/services/queue_processor.py::QueueProcessor.
type Processor struct {
	queue   *TaskQueue
	quota   *Manager
	tracker SessionTracker
	starter Starter
	events  *eventlog.Store
	hub     *eventlog.Hub
	config  ProcessorConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessor wires the queue, quota manager, session tracker, task
// starter and event plumbing into a Processor. Call Start to begin
// polling.
func NewProcessor(q *TaskQueue, quota *Manager, tracker SessionTracker, starter Starter, events *eventlog.Store, hub *eventlog.Hub, config ProcessorConfig) *Processor {
	if config.ProcessingInterval <= 0 {
		config.ProcessingInterval = DefaultProcessorConfig().ProcessingInterval
	}
	return &Processor{
		queue: q, quota: quota, tracker: tracker, starter: starter,
		events: events, hub: hub, config: config,
	}
}

// Start launches the poll loop in a goroutine. Call Stop to end it.
func (p *Processor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop cancels the poll loop and waits for it to exit.
func (p *Processor) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Processor) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.ProcessingInterval)
	defer ticker.Stop()

	var lastTimeoutCheck time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processNext(ctx)

			if p.config.TaskTimeout > 0 && time.Since(lastTimeoutCheck) >= timeoutCheckInterval {
				p.reapTimedOut(ctx)
				lastTimeoutCheck = time.Now()
			}
		}
	}
}

func (p *Processor) processNext(ctx context.Context) {
	task := p.queue.Peek(ctx)
	if task == nil {
		return
	}

	canStart, reason, err := p.quota.CanStartTask(ctx, task.UserID)
	if err != nil {
		log.Error().Err(err).Str("session_id", task.SessionID).Msg("quota check failed")
		return
	}
	if !canStart {
		log.Debug().Str("session_id", task.SessionID).Str("reason", reason).Msg("task waiting in queue")
		return
	}

	task = p.queue.Dequeue(ctx)
	if task == nil {
		// Lost the race to another processor instance.
		return
	}

	p.startTask(ctx, *task)
	p.emitPositionUpdates(ctx)
}

func (p *Processor) startTask(ctx context.Context, task types.QueuedTask) {
	log.Info().Str("session_id", task.SessionID).Bool("auto_resume", task.IsAutoResume).
		Msg("starting queued task")

	if err := p.tracker.MarkRunning(ctx, task.SessionID); err != nil {
		log.Error().Err(err).Str("session_id", task.SessionID).Msg("session not found, dropping task")
		return
	}

	p.quota.IncrementGlobal()
	if err := p.queue.MarkUserActive(ctx, task.UserID, task.SessionID); err != nil {
		log.Warn().Err(err).Msg("failed to mark user active")
	}
	if err := p.quota.IncrementDailyCount(ctx, task.UserID); err != nil {
		log.Warn().Err(err).Msg("failed to increment daily count")
	}

	p.emitEvent(ctx, task.SessionID, types.EventQueueStarted, map[string]any{
		"session_id":      task.SessionID,
		"message":         "Task started after queuing",
		"was_auto_resume": task.IsAutoResume,
	})

	taskText := task.Task
	if task.IsAutoResume {
		taskText = "<resume-context>\n" +
			"Previous execution was interrupted by system restart.\n" +
			"Resume from the last known and stable checkpoint.\n" +
			"</resume-context>\n\n" + taskText
	}

	resumeFrom := task.ResumeFrom
	if resumeFrom == "" {
		resumeFrom = task.SessionID
	}

	params := TaskParams{
		Task:            taskText,
		SessionID:       task.SessionID,
		UserID:          task.UserID,
		ResumeSessionID: resumeFrom,
		ForkSession:     false,
		IsAutoResume:    task.IsAutoResume,
	}

	if err := p.starter.StartTask(ctx, params); err != nil {
		log.Error().Err(err).Str("session_id", task.SessionID).Msg("failed to start queued task")
		p.quota.DecrementGlobal()
		_ = p.queue.MarkUserInactive(ctx, task.UserID, task.SessionID)
		_ = p.tracker.MarkFailed(ctx, task.SessionID, "failed to start after dequeue")
	}
}

// OnTaskComplete should be called by the orchestrator when a session
// finishes (success, failure, or cancel), so the global quota frees up
// immediately rather than waiting on the poll loop.
func (p *Processor) OnTaskComplete(ctx context.Context, sessionID, userID string) {
	p.quota.DecrementGlobal()
	if err := p.queue.MarkUserInactive(ctx, userID, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to mark user inactive")
	}
}

func (p *Processor) emitPositionUpdates(ctx context.Context) {
	sessions, err := p.queue.QueuedSessions(ctx, 100)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list queued sessions for position update")
		return
	}

	for i, s := range sessions {
		position := i + 1
		p.emitEvent(ctx, s.SessionID, types.EventQueuePositionUpdate, map[string]any{
			"session_id":   s.SessionID,
			"position":     position,
			"queue_length": len(sessions),
		})
		if err := p.tracker.SetQueuePosition(ctx, s.SessionID, position); err != nil {
			log.Debug().Err(err).Str("session_id", s.SessionID).Msg("failed to persist queue position")
		}
	}
}

func (p *Processor) reapTimedOut(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.TaskTimeout)
	sessionIDs, err := p.tracker.TimedOutQueued(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to list timed-out queued sessions")
		return
	}
	if len(sessionIDs) == 0 {
		return
	}
	log.Info().Int("count", len(sessionIDs)).Msg("found timed-out queued tasks")

	for _, sessionID := range sessionIDs {
		if _, err := p.queue.Remove(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to remove timed-out task from queue")
		}
		if err := p.tracker.MarkFailed(ctx, sessionID, "queue_timeout"); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to mark timed-out session failed")
		}
		p.emitEvent(ctx, sessionID, types.EventError, map[string]any{
			"message":    "task timed out waiting in queue",
			"error_type": "queue_timeout",
		})
	}
}

// Stats summarizes current queue/quota state for a health endpoint.
type Stats struct {
	QueueLength   int64 `json:"queueLength"`
	GlobalActive  int64 `json:"globalActive"`
	MaxConcurrent int64 `json:"maxConcurrent"`
}

// Stats returns current queue statistics.
func (p *Processor) Stats(ctx context.Context) (Stats, error) {
	length, err := p.queue.Length(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		QueueLength:   length,
		GlobalActive:  p.quota.GlobalActive(),
		MaxConcurrent: p.quota.Config().GlobalMaxConcurrent,
	}, nil
}

func (p *Processor) emitEvent(ctx context.Context, sessionID string, eventType types.EventType, data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal queue event payload")
		return
	}
	ev, err := p.events.Append(sessionID, eventType, payload, time.Now().UnixMilli())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist queue event")
		return
	}
	if err := p.hub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to publish queue event")
	}
}
