package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenialTracker_RecordAndReadBack(t *testing.T) {
	tracker := NewDenialTracker()
	assert.False(t, tracker.WasInterrupted())
	assert.Empty(t, tracker.Denials())

	tracker.RecordDenial("bash", "matched deny pattern")
	tracker.RecordInterrupt()

	denials := tracker.Denials()
	require.Len(t, denials, 1)
	assert.Equal(t, "bash", denials[0].ToolName)
	assert.True(t, tracker.WasInterrupted())
}

func TestDenialTracker_Reset(t *testing.T) {
	tracker := NewDenialTracker()
	tracker.RecordDenial("bash", "denied")
	tracker.RecordInterrupt()

	tracker.Reset()

	assert.Empty(t, tracker.Denials())
	assert.False(t, tracker.WasInterrupted())
}

func TestDenialTracker_DenialsSnapshotIsIndependentCopy(t *testing.T) {
	tracker := NewDenialTracker()
	tracker.RecordDenial("bash", "denied")

	snapshot := tracker.Denials()
	snapshot[0].Reason = "mutated locally"

	assert.Equal(t, "denied", tracker.Denials()[0].Reason)
}
