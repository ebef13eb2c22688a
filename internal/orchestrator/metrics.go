package orchestrator

import (
	"sync"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// RunMetrics accumulates usage and error counters for one session run,
// reset at the start of every run per spec §3's cumulative-metrics
// invariant. Grounded on
// original_source/src/core/trace_processor.py::TraceProcessor's
// _metrics_* fields and _tool_error_count.
type RunMetrics struct {
	mu sync.Mutex

	turns               int
	inputTokens         int64
	outputTokens        int64
	cacheCreationTokens int64
	cacheReadTokens     int64
	costUSD             float64
	toolErrorCount      int
	durationMs          int64
}

// NewRunMetrics returns a zeroed metrics accumulator for a fresh run.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{}
}

// RecordTurn increments the turn counter, called once per assistant
// message like _handle_assistant_message's self._metrics_turns += 1.
func (m *RunMetrics) RecordTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns++
}

// RecordToolError increments the count of tool results carrying is_error.
// Spec §4.7's status-mapping rule reads this: any tool error forces a
// terminal status of failed even if the LLM later reports success.
func (m *RunMetrics) RecordToolError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolErrorCount++
}

// HasToolError reports whether any tool call in this run errored.
func (m *RunMetrics) HasToolError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolErrorCount > 0
}

// ToolErrorCount returns the number of tool results that carried
// is_error so far this run.
func (m *RunMetrics) ToolErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolErrorCount
}

// ApplyUsage folds a provider usage snapshot into the run total. Token
// counts are cumulative-per-message in the provider's reporting, so
// callers pass the delta for the just-completed message, not a running
// total.
func (m *RunMetrics) ApplyUsage(inputTokens, outputTokens, cacheCreationTokens, cacheReadTokens int64, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputTokens += inputTokens
	m.outputTokens += outputTokens
	m.cacheCreationTokens += cacheCreationTokens
	m.cacheReadTokens += cacheReadTokens
	m.costUSD += costUSD
}

// SetDurationMs records this run's wall-clock duration so far.
func (m *RunMetrics) SetDurationMs(durationMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durationMs = durationMs
}

// Snapshot returns the current per-run totals.
func (m *RunMetrics) Snapshot() (turns int, durationMs int64, costUSD float64, inputTokens, outputTokens, cacheCreationTokens, cacheReadTokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns, m.durationMs, m.costUSD, m.inputTokens, m.outputTokens, m.cacheCreationTokens, m.cacheReadTokens
}

// ApplyToSession writes this run's totals into session's current-run
// fields and folds them into its cumulative lineage totals, per spec
// §3: cumulative_X = sum of per-run X across the session's resume/fork
// lineage.
func (m *RunMetrics) ApplyToSession(session *types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session.NumTurns = m.turns
	session.DurationMs = m.durationMs
	session.CostUSD = m.costUSD

	session.Cumulative.Turns += m.turns
	session.Cumulative.DurationMs += m.durationMs
	session.Cumulative.CostUSD += m.costUSD
	session.Cumulative.InputTokens += m.inputTokens
	session.Cumulative.OutputTokens += m.outputTokens
	session.Cumulative.CacheCreationTokens += m.cacheCreationTokens
	session.Cumulative.CacheReadTokens += m.cacheReadTokens
}
