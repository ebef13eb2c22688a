// Package types provides the core data types shared across the ag3ntum core.
package types

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	StatusPending         SessionStatus = "pending"
	StatusQueued          SessionStatus = "queued"
	StatusRunning         SessionStatus = "running"
	StatusWaitingForInput SessionStatus = "waiting_for_input"
	StatusComplete        SessionStatus = "complete"
	StatusFailed          SessionStatus = "failed"
	StatusCancelled       SessionStatus = "cancelled"
)

// Terminal reports whether the status is one the orchestrator will never
// transition out of on its own.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Session is the authoritative, persistent record of one agent-user
// interaction. See spec §3 "Session".
type Session struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userID"`
	TaskText   string        `json:"taskText"`
	Model      string        `json:"model"`
	WorkingDir string        `json:"workingDir"`
	Status     SessionStatus `json:"status"`

	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
	CompletedAt *int64 `json:"completedAt,omitempty"`

	// Current-run metrics, reset at the start of every run.
	NumTurns   int   `json:"numTurns"`
	DurationMs int64 `json:"durationMs"`
	CostUSD    float64 `json:"costUSD"`

	// Cumulative metrics across resumptions (spec §3 invariant:
	// cumulative_X = sum of per-run X across this session's lineage).
	Cumulative CumulativeMetrics `json:"cumulative"`

	CancelRequested bool `json:"cancelRequested"`

	QueuePosition *int   `json:"queuePosition,omitempty"`
	QueuedAt      *int64 `json:"queuedAt,omitempty"`
	Priority      int    `json:"priority"`

	IsAutoResume   bool `json:"isAutoResume"`
	ResumeAttempts int  `json:"resumeAttempts"`

	ExternalResumeID *string `json:"externalResumeID,omitempty"`
	ParentSessionID  *string `json:"parentSessionID,omitempty"`

	FileCheckpointingEnabled bool         `json:"fileCheckpointingEnabled"`
	Checkpoints              []Checkpoint `json:"checkpoints"`
}

// CumulativeMetrics tracks usage summed across every run in a session's
// resume/fork lineage.
type CumulativeMetrics struct {
	Turns               int     `json:"turns"`
	DurationMs          int64   `json:"durationMs"`
	CostUSD             float64 `json:"costUSD"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
}

// CheckpointKind distinguishes how a checkpoint was captured.
type CheckpointKind string

const (
	CheckpointAuto   CheckpointKind = "auto"
	CheckpointManual CheckpointKind = "manual"
	CheckpointTurn   CheckpointKind = "turn"
)

// Checkpoint is an opaque file-tree snapshot marker supplied by the LLM
// provider's checkpointing feature, re-used to rewind files.
type Checkpoint struct {
	UUID        string         `json:"uuid"`
	CreatedAt   int64          `json:"createdAt"`
	Kind        CheckpointKind `json:"kind"`
	TurnNumber  int            `json:"turnNumber"`
	ToolName    string         `json:"toolName,omitempty"`
	FilePath    string         `json:"filePath,omitempty"`
	Description string         `json:"description,omitempty"`
}
