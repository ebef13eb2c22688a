package orchestrator

import (
	"fmt"
	"time"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// FileRestorer delegates the actual file-tree rewind to whatever
// collaborator owns checkpoint storage (the external LLM SDK in the
// original; spec §1 places it out of scope here too).
type FileRestorer interface {
	RestoreToCheckpoint(sessionID, checkpointUUID string) error
}

// RecordAutoCheckpoint appends an automatic checkpoint marker to
// session's list when a file-modifying tool completes and the
// provider attached a checkpoint UUID. Grounded on spec §4.7 step 9.
func RecordAutoCheckpoint(session *types.Session, checkpointUUID string, turnNumber int, toolName, filePath string) {
	if checkpointUUID == "" {
		return
	}
	session.Checkpoints = append(session.Checkpoints, types.Checkpoint{
		UUID:       checkpointUUID,
		CreatedAt:  time.Now().UnixMilli(),
		Kind:       types.CheckpointAuto,
		TurnNumber: turnNumber,
		ToolName:   toolName,
		FilePath:   filePath,
	})
}

// RecordManualCheckpoint appends an operator-requested checkpoint.
func RecordManualCheckpoint(session *types.Session, checkpointUUID, description string, turnNumber int) {
	session.Checkpoints = append(session.Checkpoints, types.Checkpoint{
		UUID:        checkpointUUID,
		CreatedAt:   time.Now().UnixMilli(),
		Kind:        types.CheckpointManual,
		TurnNumber:  turnNumber,
		Description: description,
	})
}

// RewindToCheckpoint delegates the file restore to restorer, then
// truncates every checkpoint recorded after the target from session's
// list — once you rewind, the checkpoints from the discarded future
// no longer describe anything reachable.
func RewindToCheckpoint(session *types.Session, restorer FileRestorer, checkpointUUID string) error {
	index := -1
	for i, c := range session.Checkpoints {
		if c.UUID == checkpointUUID {
			index = i
			break
		}
	}
	if index == -1 {
		return fmt.Errorf("orchestrator: checkpoint %q not found in session %q", checkpointUUID, session.ID)
	}

	if err := restorer.RestoreToCheckpoint(session.ID, checkpointUUID); err != nil {
		return fmt.Errorf("orchestrator: restore checkpoint: %w", err)
	}

	session.Checkpoints = session.Checkpoints[:index+1]
	return nil
}
