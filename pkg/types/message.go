package types

import "encoding/json"

// IncomingMessageKind tags the closed variant of messages a MessagePump
// yields. Replaces reflection-over-SDK-objects (walking attributes to
// find content blocks, tool ids, usage fields) with a single switch,
// per Design Notes §9.
type IncomingMessageKind string

const (
	MessageSystem    IncomingMessageKind = "system"
	MessageAssistant IncomingMessageKind = "assistant"
	MessageUser      IncomingMessageKind = "user"
	MessageResult    IncomingMessageKind = "result"
	MessageStream    IncomingMessageKind = "stream_event"
)

// IncomingMessage is the single shape the orchestrator consumes from a
// MessagePump, regardless of LLM vendor.
type IncomingMessage struct {
	Kind IncomingMessageKind

	// Assistant: ordered content blocks.
	Blocks []ContentBlock

	// User: raw content (rarely produced by the pump itself; mainly
	// used when re-injecting tool results).
	UserContent string

	// Result: present only when Kind == MessageResult.
	Result *ResultPayload

	// Stream: the provider's raw event, opaque beyond what's needed for
	// throttled "thinking" previews; the orchestrator does not inspect it.
	Raw json.RawMessage

	// CheckpointUUID is set when the provider's message carries a
	// file-checkpointing marker (spec §4.7 step 9).
	CheckpointUUID string
}

// ContentBlockKind tags the variant of ContentBlock.
type ContentBlockKind string

const (
	BlockText       ContentBlockKind = "text"
	BlockThinking   ContentBlockKind = "thinking"
	BlockToolUse    ContentBlockKind = "tool_use"
	BlockToolResult ContentBlockKind = "tool_result"
)

// ContentBlock is one piece of an assistant or tool-result message.
type ContentBlock struct {
	Kind ContentBlockKind

	// Text / Thinking
	Text      string
	IsPartial bool

	// ToolUse
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage

	// ToolResult
	ToolResultForID string
	ToolResultText  string
	IsError         bool
}

// ResultPayload is the terminal usage/outcome summary of one API call,
// finalized on the provider's "result" message (spec §4.7 step 7).
type ResultPayload struct {
	IsError             bool    `json:"isError"`
	Subtype             string  `json:"subtype,omitempty"`
	NumTurns            int     `json:"numTurns"`
	DurationMs          int64   `json:"durationMs"`
	CostUSD             float64 `json:"costUSD"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	ExternalResumeID    string  `json:"externalResumeID,omitempty"`
}
