package types

import "encoding/json"

// EventType enumerates the event kinds the orchestrator and UI agree on.
// Payloads are opaque JSON to the log itself; the keys listed in spec §4.5
// are a contract between the orchestrator (producer) and the UI
// (consumer), not something the log enforces.
type EventType string

const (
	EventAgentStart          EventType = "agent_start"
	EventUserMessage         EventType = "user_message"
	EventToolStart           EventType = "tool_start"
	EventToolInputReady      EventType = "tool_input_ready"
	EventToolComplete        EventType = "tool_complete"
	EventSubagentStart       EventType = "subagent_start"
	EventSubagentMessage     EventType = "subagent_message"
	EventSubagentStop        EventType = "subagent_stop"
	EventThinking            EventType = "thinking"
	EventMetricsUpdate       EventType = "metrics_update"
	EventQuestionPending     EventType = "question_pending"
	EventQuestionAnswered    EventType = "question_answered"
	EventTodoUpdate          EventType = "todo_update"
	EventCancelled           EventType = "cancelled"
	EventError               EventType = "error"
	EventAgentComplete       EventType = "agent_complete"
	EventQueuePositionUpdate EventType = "queue_position_update"
	EventQueueStarted        EventType = "queue_started"
)

// Event is one entry in a session's append-only ordered stream.
// (session_id, sequence) is unique and sequence is gap-free from 1.
type Event struct {
	SessionID string          `json:"sessionID"`
	Sequence  int64           `json:"sequence"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}
