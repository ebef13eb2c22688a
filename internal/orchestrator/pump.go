package orchestrator

import (
	"context"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// CanUseToolFunc is consulted before every tool call the pump is about
// to execute on the provider's behalf, mirroring the can_use_tool
// callback spec §4.7 step 7 requires the agent loop to honor.
type CanUseToolFunc func(toolName string, patternInput []string) (allow bool, interrupt bool, reason string)

// StartParams configures one streaming run against the external LLM
// SDK. It carries only what the pump needs to start a turn; session
// bookkeeping (status, checkpoints, metrics) stays in the orchestrator.
type StartParams struct {
	SessionID      string
	Task           string
	Model          string
	WorkingDir     string
	ResumeFrom     string // external provider resume/session id, empty for a fresh run
	SystemPrompt   string
	CanUseTool     CanUseToolFunc
	ThinkingBudget int
}

// MessagePump abstracts the external streaming LLM SDK collaborator so
// the orchestrator never imports a vendor package directly. One Stream
// call drives one agentic run; the returned channel closes when the
// provider's terminal result message has been delivered or ctx is
// cancelled. Replaces walking vendor SDK objects directly (the
// teacher's provider.Provider.StreamQuery) with the closed
// types.IncomingMessage variant, per Design Notes §9.
type MessagePump interface {
	Stream(ctx context.Context, params StartParams) (<-chan types.IncomingMessage, <-chan error)

	// Cancel requests cooperative cancellation of an in-flight Stream
	// call for sessionID. Spec §4.7's cancellation step: the run should
	// stop at the next safe point and remain resumable.
	Cancel(sessionID string) error
}
