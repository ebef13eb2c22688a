package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripSystemReminders(t *testing.T) {
	input := "before<system-reminder>secret stuff\nmultiline</system-reminder>after"
	assert.Equal(t, "beforeafter", StripSystemReminders(input))
}

func TestStripSystemReminders_NoMatch(t *testing.T) {
	assert.Equal(t, "plain text", StripSystemReminders("plain text"))
}

func TestSanitizeToolNames(t *testing.T) {
	input := "calling mcp__ag3ntum__read_file now"
	assert.Equal(t, "calling read_file now", SanitizeToolNames(input))
}

func TestTransformAttachedFiles_YAML(t *testing.T) {
	input := "<attached-files>\nfiles:\n  - name: report.pdf\n    size: 2048\n    mime_type: application/pdf\n</attached-files>"
	out := TransformAttachedFiles(input)
	assert.Contains(t, out, "ag3ntum-attached-file")
	assert.Contains(t, out, "report.pdf")
}

func TestTransformAttachedFiles_Legacy(t *testing.T) {
	input := "<attached-files>\n- report.pdf (2.0KB)\n</attached-files>"
	out := TransformAttachedFiles(input)
	assert.Contains(t, out, "report.pdf")
}

func TestTransformAttachedFiles_NoBlock(t *testing.T) {
	assert.Equal(t, "no attachments here", TransformAttachedFiles("no attachments here"))
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, int64(0), clampSize(-5))
	assert.Equal(t, int64(100), clampSize(100))
	assert.Equal(t, int64(maxFileSize), clampSize(maxFileSize*10))
}

func TestSanitizeFilename_PathTraversal(t *testing.T) {
	out := sanitizeFilename("../../etc/passwd")
	assert.NotContains(t, out, "..")
}
