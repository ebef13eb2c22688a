package types

// QueuedTask is the payload stored alongside a session's entry in the
// shared queue store (not the database). Grounded on
// original_source/src/services/task_queue.py's QueuedTask dataclass.
type QueuedTask struct {
	SessionID    string `json:"sessionID"`
	UserID       string `json:"userID"`
	Task         string `json:"task"`
	Priority     int    `json:"priority"`
	QueuedAt     int64  `json:"queuedAt"` // unix millis
	IsAutoResume bool   `json:"isAutoResume"`
	ResumeFrom   string `json:"resumeFrom,omitempty"`
}
