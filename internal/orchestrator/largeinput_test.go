package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessLargeUserInput_SmallPassesThrough(t *testing.T) {
	cfg := DefaultLargeInputConfig()
	result, err := ProcessLargeUserInput(cfg, "small task", t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.IsLarge)
	assert.Equal(t, "small task", result.ProcessedText)
}

func TestProcessLargeUserInput_RedirectsLargeInput(t *testing.T) {
	cfg := DefaultLargeInputConfig()
	cfg.ThresholdBytes = 10
	dir := t.TempDir()

	task := strings.Repeat("x", 100)
	result, err := ProcessLargeUserInput(cfg, task, dir)
	require.NoError(t, err)

	assert.True(t, result.IsLarge)
	assert.Contains(t, result.ProcessedText, "Run the user request from the file")
	assert.Contains(t, result.ProcessedText, result.SizeDisplay)
	assert.Equal(t, int64(100), result.SizeBytes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "huge_user_input_"))

	written, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, task, string(written))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512KB", formatSize(512*1024))
	assert.Equal(t, "2.0MB", formatSize(2*1024*1024))
}

func TestProcessLargeUserInput_PreviewTruncated(t *testing.T) {
	cfg := DefaultLargeInputConfig()
	cfg.ThresholdBytes = 10
	task := strings.Repeat("a", originalTextPreviewLimit+500)

	result, err := ProcessLargeUserInput(cfg, task, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, result.OriginalText, originalTextPreviewLimit)
}
