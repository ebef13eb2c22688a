package permission

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// Decision is the outcome of a can_use_tool check.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// ToolCheckResult is what the agent loop consults before each tool call.
type ToolCheckResult struct {
	Decision  Decision
	Interrupt bool
	Reason    string
}

// ConfigError reports a fatal, startup-time misconfiguration — spec
// §4.4's "permission_mode must be null/unset" invariant. The engine
// refuses to activate rather than silently bypassing can_use_tool.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "permission engine refused to start: " + e.Reason }

// Engine holds one session's activated PermissionProfile and evaluates
// tool calls against it. Generalized from the teacher's interactive
// Checker.Ask flow (designed for a human approving each call) into the
// non-interactive allow/deny/interrupt decision model spec §4.4 requires
// — the human-in-the-loop mechanism here is the separate AskUserQuestion
// tool, not a per-call approval prompt.
type Engine struct {
	mu      sync.RWMutex
	profile *types.PermissionProfile

	sessionID              string
	workspacePath          string
	workspaceAbsolutePath  string
	username               string
	activated              bool

	tracker *DenialTracker
}

// NewEngine constructs an Engine bound to profile. permissionMode must be
// empty; anything else is the fatal misconfiguration spec §4.4 names.
func NewEngine(profile *types.PermissionProfile, permissionMode string) (*Engine, error) {
	if permissionMode != "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("permission_mode=%q would bypass can_use_tool", permissionMode)}
	}
	return &Engine{profile: profile, tracker: NewDenialTracker()}, nil
}

// Activate sets this engine as the current context for a session. Not
// reentrant: a second Activate on the same session without an
// intervening reset is a programming error.
func (e *Engine) Activate(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activated {
		return fmt.Errorf("permission engine already activated for session %q", e.sessionID)
	}
	e.sessionID = sessionID
	e.activated = true
	return nil
}

// SetSessionContext records the dynamic substitutions the profile's
// allowed_dirs and sandbox mounts may reference via {workspace}.
func (e *Engine) SetSessionContext(sessionID, workspacePath, workspaceAbsolutePath, username string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = sessionID
	e.workspacePath = workspacePath
	e.workspaceAbsolutePath = workspaceAbsolutePath
	e.username = username
}

// GetSandboxConfig returns a fresh, session-local clone of the profile's
// sandbox config with CustomEnv populated from sandboxedEnvs. Never
// returns a config that shares mutable state with another session's —
// that was the exact bug Design Notes §9 calls out.
func (e *Engine) GetSandboxConfig(sandboxedEnvs map[string]string) types.SandboxConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	placeholders := map[string]string{
		"workspace":          e.workspacePath,
		"workspace_absolute": e.workspaceAbsolutePath,
		"username":           e.username,
		"session_id":         e.sessionID,
	}
	cfg := e.profile.Sandbox.Resolve(placeholders)
	for k, v := range sandboxedEnvs {
		cfg.Environment.CustomEnv[k] = v
	}
	return cfg
}

// GetPermissionCheckedTools returns the tool names this profile places
// under allow/deny pattern rules (as opposed to simple enable/disable).
func (e *Engine) GetPermissionCheckedTools() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen := make(map[string]bool)
	var tools []string
	for tool := range e.profile.Allow {
		if !seen[tool] {
			seen[tool] = true
			tools = append(tools, tool)
		}
	}
	for tool := range e.profile.Deny {
		if !seen[tool] {
			seen[tool] = true
			tools = append(tools, tool)
		}
	}
	return tools
}

// GetDisabledTools returns the profile's disabled-tool list.
func (e *Engine) GetDisabledTools() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile.DisabledTools
}

// GetAllowedDirs returns the profile's allowed_dirs with {workspace}
// substituted.
func (e *Engine) GetAllowedDirs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	placeholders := map[string]string{"workspace": e.workspacePath}
	dirs := make([]string, len(e.profile.AllowedDirs))
	for i, d := range e.profile.AllowedDirs {
		dirs[i] = strings.ReplaceAll(d, "{workspace}", placeholders["workspace"])
	}
	return dirs
}

// CanUseTool is the decision callback the agent loop consults before
// every tool call.
func (e *Engine) CanUseTool(toolName string, patternInput []string) ToolCheckResult {
	e.mu.RLock()
	profile := e.profile
	e.mu.RUnlock()

	if !profile.ToolEnabled(toolName) {
		e.tracker.RecordDenial(toolName, "tool disabled for this profile")
		e.tracker.RecordInterrupt()
		return ToolCheckResult{Decision: DecisionDeny, Interrupt: true, Reason: "tool disabled for this profile"}
	}

	if denyPatterns, ok := profile.Deny[toolName]; ok {
		for _, pat := range denyPatterns {
			if matchAny(pat, patternInput) {
				e.tracker.RecordDenial(toolName, fmt.Sprintf("matched deny pattern %q", pat))
				return ToolCheckResult{Decision: DecisionDeny, Interrupt: false, Reason: fmt.Sprintf("matched deny pattern %q", pat)}
			}
		}
	}

	if allowPatterns, ok := profile.Allow[toolName]; ok && len(allowPatterns) > 0 {
		for _, pat := range allowPatterns {
			if matchAny(pat, patternInput) {
				return ToolCheckResult{Decision: DecisionAllow}
			}
		}
		e.tracker.RecordDenial(toolName, "no allow pattern matched")
		return ToolCheckResult{Decision: DecisionDeny, Interrupt: false, Reason: "no allow pattern matched"}
	}

	return ToolCheckResult{Decision: DecisionAllow}
}

func matchAny(pattern string, inputs []string) bool {
	for _, in := range inputs {
		if pattern == "*" || pattern == in {
			return true
		}
		if strings.HasSuffix(pattern, "*") && strings.HasPrefix(in, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}
