// Package pathpolicy translates the agent-facing canonical /workspace
// namespace to real host paths and validates every filesystem operation
// against boundary, blocklist, allowlist, and read-only rules. Grounded
// on spec §4.2 and original_source/src/services/mount_service.py's
// overlay-naming scheme.
package pathpolicy

import (
	"fmt"
	"sync"
)

// OverlayKind classifies a mounted directory inside the canonical
// namespace.
type OverlayKind string

const (
	OverlayReadOnly   OverlayKind = "ro"
	OverlayReadWrite  OverlayKind = "rw"
	OverlayPerUser    OverlayKind = "per_user"
	OverlayPersistent OverlayKind = "persistent"
)

// Overlay is one named mapping from a canonical prefix to a real path.
type Overlay struct {
	Name     string
	Kind     OverlayKind
	RealPath string
}

// SessionConfig configures one session's resolver/validator.
type SessionConfig struct {
	WorkspacePath string

	ReadOnlyBase  string
	ReadWriteBase string

	PerUserReadOnly  map[string]string
	PerUserReadWrite map[string]string

	PersistentStorage string
	SkillsPaths       []string
	Username          string

	// AllowedPatterns, if non-empty, is an allowlist of doublestar glob
	// patterns a path must match (spec §4.2 step 5). Empty means no
	// allowlist is enforced.
	AllowedPatterns []string
}

// session holds the resolved overlay table for one configured session.
type session struct {
	cfg      SessionConfig
	overlays map[string]Overlay // keyed by "<kind>/<name>" for ro/rw, "persistent" for persistent
}

// Resolver is the session-scoped registry spec §4.2 calls out:
// configure(session_id, …), get(session_id), cleanup(session_id).
type Resolver struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewResolver constructs an empty, ready-to-use Resolver.
func NewResolver() *Resolver {
	return &Resolver{sessions: make(map[string]*session)}
}

// Configure registers (or replaces) the overlay table for a session.
func (r *Resolver) Configure(sessionID string, cfg SessionConfig) {
	s := &session{cfg: cfg, overlays: make(map[string]Overlay)}
	for name, real := range cfg.PerUserReadOnly {
		s.overlays["ro/"+name] = Overlay{Name: name, Kind: OverlayReadOnly, RealPath: real}
	}
	for name, real := range cfg.PerUserReadWrite {
		s.overlays["rw/"+name] = Overlay{Name: name, Kind: OverlayReadWrite, RealPath: real}
	}
	if cfg.ReadOnlyBase != "" {
		s.overlays["ro/"] = Overlay{Kind: OverlayReadOnly, RealPath: cfg.ReadOnlyBase}
	}
	if cfg.ReadWriteBase != "" {
		s.overlays["rw/"] = Overlay{Kind: OverlayReadWrite, RealPath: cfg.ReadWriteBase}
	}
	if cfg.PersistentStorage != "" {
		s.overlays["persistent"] = Overlay{Kind: OverlayPersistent, RealPath: cfg.PersistentStorage}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = s
}

// Get returns the Validator bound to sessionID, or an error if the
// session was never configured.
func (r *Resolver) Get(sessionID string) (*Validator, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pathpolicy: session %q not configured", sessionID)
	}
	return &Validator{session: s}, nil
}

// Cleanup drops a session's overlay table.
func (r *Resolver) Cleanup(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
