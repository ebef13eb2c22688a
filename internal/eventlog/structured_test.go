package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeErrorValue(t *testing.T) {
	assert.Equal(t, "", NormalizeErrorValue(""))
	assert.Equal(t, "", NormalizeErrorValue("None"))
	assert.Equal(t, "", NormalizeErrorValue("N/A"))
	assert.Equal(t, "", NormalizeErrorValue("no errors"))
	assert.Equal(t, "connection refused", NormalizeErrorValue("connection refused"))
}

func TestParseStructuredOutput_WithHeader(t *testing.T) {
	text := "---\nstatus: done\nerror: none\n---\nbody text here"
	fields, body := ParseStructuredOutput(text)
	assert.Equal(t, "done", fields["status"])
	assert.Equal(t, "", fields["error"])
	assert.Equal(t, "body text here", body)
}

func TestParseStructuredOutput_NoHeader(t *testing.T) {
	text := "just a plain response"
	fields, body := ParseStructuredOutput(text)
	assert.Empty(t, fields)
	assert.Equal(t, text, body)
}

func TestParseStructuredOutput_FencedWrapper(t *testing.T) {
	text := "```\n---\nstatus: ok\n---\nresult\n```"
	fields, body := ParseStructuredOutput(text)
	assert.Equal(t, "ok", fields["status"])
	assert.Equal(t, "result\n```", body)
}
