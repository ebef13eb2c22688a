package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

type fakeRestorer struct {
	restored []string
	failWith error
}

func (f *fakeRestorer) RestoreToCheckpoint(sessionID, checkpointUUID string) error {
	f.restored = append(f.restored, checkpointUUID)
	return f.failWith
}

func TestRecordAutoCheckpoint(t *testing.T) {
	session := &types.Session{ID: "s1"}
	RecordAutoCheckpoint(session, "cp-1", 3, "write_file", "/workspace/a.txt")

	require.Len(t, session.Checkpoints, 1)
	assert.Equal(t, types.CheckpointAuto, session.Checkpoints[0].Kind)
	assert.Equal(t, "cp-1", session.Checkpoints[0].UUID)
	assert.Equal(t, 3, session.Checkpoints[0].TurnNumber)
}

func TestRecordAutoCheckpoint_SkipsEmptyUUID(t *testing.T) {
	session := &types.Session{ID: "s1"}
	RecordAutoCheckpoint(session, "", 1, "write_file", "/a")
	assert.Empty(t, session.Checkpoints)
}

func TestRecordManualCheckpoint(t *testing.T) {
	session := &types.Session{ID: "s1"}
	RecordManualCheckpoint(session, "cp-manual", "before refactor", 5)

	require.Len(t, session.Checkpoints, 1)
	assert.Equal(t, types.CheckpointManual, session.Checkpoints[0].Kind)
	assert.Equal(t, "before refactor", session.Checkpoints[0].Description)
}

func TestRewindToCheckpoint_TruncatesFutureCheckpoints(t *testing.T) {
	session := &types.Session{ID: "s1"}
	RecordAutoCheckpoint(session, "cp-1", 1, "write_file", "/a")
	RecordAutoCheckpoint(session, "cp-2", 2, "write_file", "/b")
	RecordAutoCheckpoint(session, "cp-3", 3, "write_file", "/c")

	restorer := &fakeRestorer{}
	err := RewindToCheckpoint(session, restorer, "cp-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"cp-2"}, restorer.restored)
	require.Len(t, session.Checkpoints, 2)
	assert.Equal(t, "cp-2", session.Checkpoints[len(session.Checkpoints)-1].UUID)
}

func TestRewindToCheckpoint_UnknownUUID(t *testing.T) {
	session := &types.Session{ID: "s1"}
	RecordAutoCheckpoint(session, "cp-1", 1, "write_file", "/a")

	err := RewindToCheckpoint(session, &fakeRestorer{}, "missing")
	assert.Error(t, err)
}
