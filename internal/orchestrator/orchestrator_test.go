package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ag3ntum/ag3ntum/internal/eventlog"
	"github.com/ag3ntum/ag3ntum/internal/pathpolicy"
	"github.com/ag3ntum/ag3ntum/internal/queue"
	"github.com/ag3ntum/ag3ntum/internal/uidpolicy"
	"github.com/ag3ntum/ag3ntum/pkg/types"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newFakeStore(sessions ...*types.Session) *fakeStore {
	s := &fakeStore{sessions: make(map[string]*types.Session)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[sessionID], nil
}

func (f *fakeStore) PutSession(ctx context.Context, session *types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	return nil
}

type fakeProfiles struct{}

func (fakeProfiles) Resolve(profileName string) (*types.PermissionProfile, error) {
	return &types.PermissionProfile{Name: profileName}, nil
}

type fakeAllocator struct{}

func (fakeAllocator) AllocateUID(ctx context.Context, userID string) (int, int, error) {
	return 55000, 55000, nil
}

type fakePump struct {
	messages []types.IncomingMessage
}

func (p *fakePump) Stream(ctx context.Context, params StartParams) (<-chan types.IncomingMessage, <-chan error) {
	msgCh := make(chan types.IncomingMessage, len(p.messages))
	errCh := make(chan error, 1)
	for _, m := range p.messages {
		msgCh <- m
	}
	close(msgCh)
	close(errCh)
	return msgCh, errCh
}

func (p *fakePump) Cancel(sessionID string) error { return nil }

func newTestOrchestrator(t *testing.T, store Store, pump MessagePump, onComplete func(context.Context, string, string)) *Orchestrator {
	t.Helper()
	events, err := eventlog.NewStore(t.TempDir())
	require.NoError(t, err)
	hub := eventlog.NewHub(events)

	return NewOrchestrator(
		store, fakeProfiles{}, fakeAllocator{}, pathpolicy.NewResolver(),
		events, hub, pump, onComplete,
		Config{UID: uidpolicy.DefaultConfig(), LargeInput: DefaultLargeInputConfig(), EffectiveTimeout: time.Minute},
	)
}

func successResultMessage() types.IncomingMessage {
	return types.IncomingMessage{
		Kind:   types.MessageResult,
		Result: &types.ResultPayload{NumTurns: 1, DurationMs: 10, CostUSD: 0.01, InputTokens: 5, OutputTokens: 5},
	}
}

func TestOrchestrator_StartTask_CompletesSuccessfully(t *testing.T) {
	session := &types.Session{ID: "s1", UserID: "u1", WorkingDir: t.TempDir(), Status: types.StatusQueued}
	store := newFakeStore(session)

	pump := &fakePump{messages: []types.IncomingMessage{
		{Kind: types.MessageAssistant, Blocks: []types.ContentBlock{{Kind: types.BlockText, Text: "hello"}}},
		successResultMessage(),
	}}

	done := make(chan struct{})
	orch := newTestOrchestrator(t, store, pump, func(ctx context.Context, sessionID, userID string) { close(done) })

	err := orch.StartTask(context.Background(), queue.TaskParams{SessionID: "s1", UserID: "u1", Task: "do something"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator run did not complete in time")
	}

	final, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, final.Status)
	assert.Equal(t, 1, final.NumTurns)
}

func TestOrchestrator_ToolErrorForcesFailedStatus(t *testing.T) {
	session := &types.Session{ID: "s2", UserID: "u1", WorkingDir: t.TempDir(), Status: types.StatusQueued}
	store := newFakeStore(session)

	pump := &fakePump{messages: []types.IncomingMessage{
		{Kind: types.MessageAssistant, Blocks: []types.ContentBlock{
			{Kind: types.BlockToolUse, ToolUseID: "t1", ToolName: "bash", ToolInput: json.RawMessage(`{}`)},
		}},
		{Kind: types.MessageAssistant, Blocks: []types.ContentBlock{
			{Kind: types.BlockToolResult, ToolResultForID: "t1", IsError: true, ToolResultText: "boom"},
		}},
		successResultMessage(),
	}}

	done := make(chan struct{})
	orch := newTestOrchestrator(t, store, pump, func(ctx context.Context, sessionID, userID string) { close(done) })

	err := orch.StartTask(context.Background(), queue.TaskParams{SessionID: "s2", UserID: "u1", Task: "do something"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator run did not complete in time")
	}

	final, err := store.GetSession(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, final.Status)
}
