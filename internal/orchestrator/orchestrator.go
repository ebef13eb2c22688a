// Package orchestrator composes the permission engine, path resolver,
// sandbox envelope, event log, and task queue into the single
// per-session run described by spec §4.7. Grounded on the teacher's
// internal/session/processor.go claim/run/cleanup pattern.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ag3ntum/ag3ntum/internal/eventlog"
	"github.com/ag3ntum/ag3ntum/internal/pathpolicy"
	"github.com/ag3ntum/ag3ntum/internal/permission"
	"github.com/ag3ntum/ag3ntum/internal/queue"
	"github.com/ag3ntum/ag3ntum/internal/sandbox"
	"github.com/ag3ntum/ag3ntum/internal/uidpolicy"
	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// Store is the durable session record the orchestrator reads and
// writes as a run progresses. One implementation also backs
// queue.SessionTracker and autoresume.SessionTracker — those are
// narrower views of the same persistence.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	PutSession(ctx context.Context, session *types.Session) error
}

// SandboxAllocator resolves the host UID/GID a session's sandboxed
// commands run as. Separate from uidpolicy.ValidateUIDForSetuid: this
// is "which UID", validation is "is that UID allowed".
type SandboxAllocator interface {
	AllocateUID(ctx context.Context, userID string) (uid, gid int, err error)
}

// ProfileResolver maps a session's configured profile name to its
// activated PermissionProfile.
type ProfileResolver interface {
	Resolve(profileName string) (*types.PermissionProfile, error)
}

// Config bundles the orchestrator's static, deployment-level settings.
type Config struct {
	UID              uidpolicy.Config
	LargeInput       LargeInputConfig
	EffectiveTimeout time.Duration
	NestedContainer  bool
}

// DefaultConfig matches the teacher's defaults: nested-container bwrap
// invocation, standard large-input threshold, 30-minute run timeout.
func DefaultConfig() Config {
	return Config{
		UID:              uidpolicy.DefaultConfig(),
		LargeInput:       DefaultLargeInputConfig(),
		EffectiveTimeout: 30 * time.Minute,
		NestedContainer:  true,
	}
}

// Orchestrator runs one session at a time per sessionID, composing the
// security-boundary packages into the agent interaction loop. Satisfies
// queue.Starter.
type Orchestrator struct {
	store      Store
	profiles   ProfileResolver
	allocator  SandboxAllocator
	resolver   *pathpolicy.Resolver
	events     *eventlog.Store
	hub        *eventlog.Hub
	pump       MessagePump
	onComplete func(ctx context.Context, sessionID, userID string)
	config     Config

	mu      sync.Mutex
	running map[string]*runState
}

type runState struct {
	cancel context.CancelFunc
	engine *permission.Engine
}

// NewOrchestrator wires the per-session collaborators together. Call
// Start on the returned instance is unnecessary; StartTask is invoked
// by queue.Processor once quotas allow a task to run.
func NewOrchestrator(
	store Store,
	profiles ProfileResolver,
	allocator SandboxAllocator,
	resolver *pathpolicy.Resolver,
	events *eventlog.Store,
	hub *eventlog.Hub,
	pump MessagePump,
	onComplete func(ctx context.Context, sessionID, userID string),
	config Config,
) *Orchestrator {
	return &Orchestrator{
		store: store, profiles: profiles, allocator: allocator,
		resolver: resolver, events: events, hub: hub, pump: pump,
		onComplete: onComplete, config: config,
		running: make(map[string]*runState),
	}
}

// StartTask implements queue.Starter: launch a session run in the
// background and return immediately so the queue processor's poll loop
// is never blocked on a run's duration.
func (o *Orchestrator) StartTask(ctx context.Context, params queue.TaskParams) error {
	session, err := o.store.GetSession(ctx, params.SessionID)
	if err != nil {
		return fmt.Errorf("orchestrator: load session %q: %w", params.SessionID, err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), o.config.EffectiveTimeout)

	o.mu.Lock()
	o.running[params.SessionID] = &runState{cancel: cancel}
	o.mu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			o.mu.Lock()
			delete(o.running, params.SessionID)
			o.mu.Unlock()
		}()
		o.run(runCtx, session, params)
	}()

	return nil
}

// Cancel requests cooperative cancellation of sessionID's in-flight
// run. The run remains resumable: cancellation unwinds at the next
// safe point rather than killing the process tree directly.
func (o *Orchestrator) Cancel(sessionID string) {
	o.mu.Lock()
	state, ok := o.running[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}
	state.cancel()
	_ = o.pump.Cancel(sessionID)
}

// run executes the 13 numbered steps of spec §4.7 for one session.
func (o *Orchestrator) run(ctx context.Context, session *types.Session, params queue.TaskParams) {
	metrics := NewRunMetrics()
	startedAt := time.Now()

	// Step 1: claim the session.
	session.Status = types.StatusRunning
	session.UpdatedAt = time.Now().UnixMilli()
	if err := o.store.PutSession(ctx, session); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to claim session")
		return
	}
	o.emit(ctx, session.ID, types.EventAgentStart, map[string]any{"task": params.Task, "isAutoResume": params.IsAutoResume})

	profileName := "default"
	profile, err := o.profiles.Resolve(profileName)
	if err != nil {
		o.fail(ctx, session, metrics, fmt.Errorf("resolve profile %q: %w", profileName, err))
		return
	}

	// Step 2: activate the permission engine. permission_mode must be
	// unset — a non-empty value would bypass can_use_tool entirely.
	engine, err := permission.NewEngine(profile, "")
	if err != nil {
		o.fail(ctx, session, metrics, err)
		return
	}
	if err := engine.Activate(session.ID); err != nil {
		o.fail(ctx, session, metrics, err)
		return
	}
	o.mu.Lock()
	if state, ok := o.running[session.ID]; ok {
		state.engine = engine
	}
	o.mu.Unlock()

	username := fmt.Sprintf("user-%s", params.UserID)
	workspacePath := session.WorkingDir
	engine.SetSessionContext(session.ID, workspacePath, workspacePath, username)

	// Step 3: configure the path resolver for this session's workspace.
	// No overlays, skills paths or allowlist patterns are set here.
	o.resolver.Configure(session.ID, pathpolicy.SessionConfig{
		WorkspacePath:   workspacePath,
		AllowedPatterns: nil,
	})
	defer o.resolver.Cleanup(session.ID)

	// Step 4: allocate and validate the sandbox UID/GID.
	uid, gid, err := o.allocator.AllocateUID(ctx, params.UserID)
	if err != nil {
		o.fail(ctx, session, metrics, fmt.Errorf("allocate sandbox uid: %w", err))
		return
	}
	if err := uidpolicy.ValidateUIDForSetuid(o.config.UID, uid, 0); err != nil {
		o.fail(ctx, session, metrics, err)
		return
	}
	if err := uidpolicy.ValidateGIDForSetgid(o.config.UID, gid); err != nil {
		o.fail(ctx, session, metrics, err)
		return
	}

	sandboxCfg := engine.GetSandboxConfig(map[string]string{})
	envelope := &sandbox.Envelope{Config: sandboxCfg, LinuxUID: uid, LinuxGID: gid}
	if missing := envelope.ValidateMountSources(); len(missing) > 0 {
		o.fail(ctx, session, metrics, &sandbox.MountError{Source: missing[0]})
		return
	}

	// Step 5: large-input redirection before the task ever reaches the
	// provider.
	largeResult, err := ProcessLargeUserInput(o.config.LargeInput, params.Task, workspacePath)
	if err != nil {
		o.fail(ctx, session, metrics, err)
		return
	}
	if largeResult.IsLarge {
		o.emit(ctx, session.ID, types.EventUserMessage, map[string]any{
			"text": largeResult.OriginalText, "redirected": true, "sizeDisplay": largeResult.SizeDisplay,
		})
	}

	canUseTool := func(toolName string, patternInput []string) (bool, bool, string) {
		result := engine.CanUseTool(toolName, patternInput)
		return result.Decision == permission.DecisionAllow, result.Interrupt, result.Reason
	}

	externalResumeID := ""
	if session.ExternalResumeID != nil {
		externalResumeID = *session.ExternalResumeID
	}

	startParams := StartParams{
		SessionID:  session.ID,
		Task:       largeResult.ProcessedText,
		Model:      session.Model,
		WorkingDir: workspacePath,
		ResumeFrom: externalResumeID,
		CanUseTool: canUseTool,
	}

	// Step 6-7: stream the agent interaction loop.
	msgCh, errCh := o.pump.Stream(ctx, startParams)
	terminalStatus, resumeID := o.consume(ctx, session, metrics, msgCh, errCh)

	metrics.SetDurationMs(time.Since(startedAt).Milliseconds())
	metrics.ApplyToSession(session)

	switch terminalStatus {
	case types.StatusFailed:
		session.Status = types.StatusFailed
	case types.StatusCancelled:
		session.Status = types.StatusCancelled
	case types.StatusWaitingForInput:
		session.Status = types.StatusWaitingForInput
	default:
		session.Status = types.StatusComplete
	}
	if resumeID != "" {
		session.ExternalResumeID = &resumeID
	}
	now := time.Now().UnixMilli()
	session.UpdatedAt = now
	if session.Status.Terminal() {
		session.CompletedAt = &now
		o.hardenWorkspace(workspacePath)
	}
	if err := o.store.PutSession(ctx, session); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to persist final session state")
	}

	o.emit(ctx, session.ID, types.EventAgentComplete, map[string]any{
		"status": session.Status, "numTurns": session.NumTurns, "durationMs": session.DurationMs,
	})

	if o.onComplete != nil {
		o.onComplete(ctx, session.ID, params.UserID)
	}
}

// consume drains msgCh/errCh, applying each IncomingMessage to session
// state and metrics, until the stream ends or ctx is cancelled. It
// returns the terminal status to apply and, if present, the external
// provider's resume id for this run.
func (o *Orchestrator) consume(
	ctx context.Context,
	session *types.Session,
	metrics *RunMetrics,
	msgCh <-chan types.IncomingMessage,
	errCh <-chan error,
) (types.SessionStatus, string) {
	resumeID := ""
	turnNumber := 0

	for {
		select {
		case <-ctx.Done():
			o.emit(ctx, session.ID, types.EventCancelled, map[string]any{"reason": ctx.Err().Error()})
			return types.StatusCancelled, resumeID

		case err, ok := <-errCh:
			if !ok {
				// Closed with nothing sent: disable this case so the
				// select doesn't spin against an always-ready closed
				// channel while msgCh is still draining.
				errCh = nil
				continue
			}
			if err != nil {
				o.emit(ctx, session.ID, types.EventError, map[string]any{"error": err.Error()})
				return types.StatusFailed, resumeID
			}

		case msg, ok := <-msgCh:
			if !ok {
				if metrics.HasToolError() {
					return types.StatusFailed, resumeID
				}
				return types.StatusComplete, resumeID
			}

			if msg.CheckpointUUID != "" {
				RecordAutoCheckpoint(session, msg.CheckpointUUID, turnNumber, "", "")
			}

			switch msg.Kind {
			case types.MessageAssistant:
				turnNumber++
				metrics.RecordTurn()
				o.handleBlocks(ctx, session.ID, msg.Blocks, metrics)

			case types.MessageUser:
				o.emit(ctx, session.ID, types.EventUserMessage, map[string]any{"text": msg.UserContent})

			case types.MessageResult:
				if msg.Result == nil {
					continue
				}
				metrics.ApplyUsage(
					msg.Result.InputTokens, msg.Result.OutputTokens,
					msg.Result.CacheCreationTokens, msg.Result.CacheReadTokens,
					msg.Result.CostUSD,
				)
				if msg.Result.ExternalResumeID != "" {
					resumeID = msg.Result.ExternalResumeID
				}
				if msg.Result.IsError {
					o.emit(ctx, session.ID, types.EventError, map[string]any{"subtype": msg.Result.Subtype})
					return types.StatusFailed, resumeID
				}

			case types.MessageStream:
				// Throttled thinking previews are surfaced via
				// EventThinking content blocks, not the raw stream event.

			case types.MessageSystem:
				// init/config echoes from the provider; nothing to act on.
			}
		}
	}
}

// handleBlocks applies one assistant message's content blocks to the
// event log, forcing the terminal-failure rule on any tool error: spec
// §4.7's status mapping overrides whatever the LLM itself later claims.
func (o *Orchestrator) handleBlocks(ctx context.Context, sessionID string, blocks []types.ContentBlock, metrics *RunMetrics) {
	for _, block := range blocks {
		switch block.Kind {
		case types.BlockText:
			o.emit(ctx, sessionID, types.EventUserMessage, map[string]any{"text": block.Text})
		case types.BlockThinking:
			o.emit(ctx, sessionID, types.EventThinking, map[string]any{"text": block.Text, "partial": block.IsPartial})
		case types.BlockToolUse:
			o.emit(ctx, sessionID, types.EventToolStart, map[string]any{
				"toolUseID": block.ToolUseID, "toolName": block.ToolName, "input": json.RawMessage(block.ToolInput),
			})
		case types.BlockToolResult:
			if block.IsError {
				metrics.RecordToolError()
			}
			o.emit(ctx, sessionID, types.EventToolComplete, map[string]any{
				"toolUseID": block.ToolResultForID, "isError": block.IsError, "result": block.ToolResultText,
			})
		}
	}
}

// fail marks session failed and persists it, used for setup errors that
// occur before the agent loop ever starts streaming.
func (o *Orchestrator) fail(ctx context.Context, session *types.Session, metrics *RunMetrics, cause error) {
	log.Error().Err(cause).Str("session_id", session.ID).Msg("session run failed during setup")
	now := time.Now().UnixMilli()
	session.Status = types.StatusFailed
	session.UpdatedAt = now
	session.CompletedAt = &now
	metrics.ApplyToSession(session)
	if err := o.store.PutSession(ctx, session); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to persist failed session")
	}
	o.emit(ctx, session.ID, types.EventError, map[string]any{"error": cause.Error()})
	if o.onComplete != nil {
		o.onComplete(ctx, session.ID, session.UserID)
	}
}

// hardenWorkspace tightens permissions on a completed session's
// workspace (700 for directories would require a full walk; the
// workspace root itself is the boundary spec §4.7 step 13 cares about).
func (o *Orchestrator) hardenWorkspace(workspacePath string) {
	if workspacePath == "" {
		return
	}
	if err := os.Chmod(workspacePath, 0o700); err != nil {
		log.Warn().Err(err).Str("path", workspacePath).Msg("failed to harden workspace permissions")
	}
}

func (o *Orchestrator) emit(ctx context.Context, sessionID string, eventType types.EventType, data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event payload")
		return
	}
	ev, err := o.events.Append(sessionID, eventType, payload, time.Now().UnixMilli())
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to append event")
		return
	}
	if err := o.hub.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish event")
	}
}
