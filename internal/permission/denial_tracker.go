package permission

import "sync"

// Denial is one recorded tool-call rejection during a run.
type Denial struct {
	ToolName string
	Reason   string
}

// DenialTracker records denials for the current run and reports whether
// the agent was interrupted due to denial. Grounded on spec §4.4's
// PermissionDenialTracker and Design Notes §9's "cyclic ownership" fix:
// this holds plain value data, no back-reference to the engine or
// session that owns it.
type DenialTracker struct {
	mu        sync.Mutex
	denials   []Denial
	interrupt bool
}

// NewDenialTracker returns an empty tracker.
func NewDenialTracker() *DenialTracker {
	return &DenialTracker{}
}

// RecordDenial appends a denial. Interrupt status is tracked separately
// via RecordInterrupt, since not every denial stops the turn.
func (t *DenialTracker) RecordDenial(toolName, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.denials = append(t.denials, Denial{ToolName: toolName, Reason: reason})
}

// RecordInterrupt marks that a denial terminated the current turn.
func (t *DenialTracker) RecordInterrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interrupt = true
}

// WasInterrupted reports whether any denial this run set interrupt=true.
func (t *DenialTracker) WasInterrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupt
}

// Denials returns a snapshot of all denials recorded so far.
func (t *DenialTracker) Denials() []Denial {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Denial, len(t.denials))
	copy(out, t.denials)
	return out
}

// Reset clears the tracker for reuse across runs (e.g. auto-resume).
func (t *DenialTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.denials = nil
	t.interrupt = false
}
