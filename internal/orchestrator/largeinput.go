package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LargeInputConfig mirrors agent.yaml's large_input section. Grounded
// on original_source/src/api/routes/sessions.py's _LARGE_INPUT_DEFAULTS
// and process_large_user_input.
type LargeInputConfig struct {
	ThresholdBytes  int64
	Filename        string
	MessageTemplate string
}

// DefaultLargeInputConfig matches the Python defaults (200KB threshold).
func DefaultLargeInputConfig() LargeInputConfig {
	return LargeInputConfig{
		ThresholdBytes:  200 * 1024,
		Filename:        "huge_user_input.txt",
		MessageTemplate: "Run the user request from the file ./{filename} ({size})",
	}
}

// LargeInputResult carries both the text actually sent to the agent
// and the display metadata spec §4.7 step 8 requires events to
// preserve.
type LargeInputResult struct {
	ProcessedText string
	IsLarge       bool
	SizeDisplay   string
	SizeBytes     int64
	// OriginalText is always the caller's original task text, truncated
	// to a reasonable preview length for display when IsLarge is true.
	OriginalText string
}

const originalTextPreviewLimit = 2000

// ProcessLargeUserInput writes task to a uniquely-named file under
// workspaceDir when it exceeds cfg.ThresholdBytes, returning a short
// redirect in its place. Small inputs pass through unchanged. Grounded
// on sessions.py::process_large_user_input.
func ProcessLargeUserInput(cfg LargeInputConfig, task, workspaceDir string) (LargeInputResult, error) {
	taskBytes := []byte(task)
	size := int64(len(taskBytes))

	if size <= cfg.ThresholdBytes {
		return LargeInputResult{ProcessedText: task, IsLarge: false, SizeBytes: size, OriginalText: task}, nil
	}

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return LargeInputResult{}, fmt.Errorf("orchestrator: create workspace dir: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := cfg.Filename
	if idx := strings.LastIndex(cfg.Filename, "."); idx > 0 {
		filename = cfg.Filename[:idx] + "_" + timestamp + cfg.Filename[idx:]
	} else {
		filename = cfg.Filename + "_" + timestamp
	}

	inputPath := filepath.Join(workspaceDir, filename)
	if err := os.WriteFile(inputPath, taskBytes, 0o644); err != nil {
		return LargeInputResult{}, fmt.Errorf("orchestrator: write large input file: %w", err)
	}

	sizeDisplay := formatSize(size)

	processed := cfg.MessageTemplate
	processed = strings.ReplaceAll(processed, "{filename}", filename)
	processed = strings.ReplaceAll(processed, "{size}", sizeDisplay)

	preview := task
	if len(preview) > originalTextPreviewLimit {
		preview = preview[:originalTextPreviewLimit]
	}

	return LargeInputResult{
		ProcessedText: processed,
		IsLarge:       true,
		SizeDisplay:   sizeDisplay,
		SizeBytes:     size,
		OriginalText:  preview,
	}, nil
}

func formatSize(size int64) string {
	const mib = 1024 * 1024
	if size >= mib {
		return fmt.Sprintf("%.1fMB", float64(size)/float64(mib))
	}
	return fmt.Sprintf("%.0fKB", float64(size)/1024)
}
