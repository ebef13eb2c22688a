// Package permission evaluates per-session tool calls against an
// activated PermissionProfile: allow/deny patterns keyed by tool name,
// a disabled-tools list, and the sandbox config a session should run
// under.
//
// # Activation
//
// An Engine is bound to one profile and one permission_mode at
// construction. Any non-empty permission_mode is a fatal
// misconfiguration (ConfigError) — the whole point of the engine is
// that CanUseTool is consulted before every tool call, and a
// permission_mode would bypass that.
//
//	engine, err := permission.NewEngine(profile, "")
//	if err != nil {
//		return err
//	}
//	engine.Activate(sessionID)
//	engine.SetSessionContext(sessionID, workspacePath, workspaceAbsPath, username)
//
// # Decisions
//
// CanUseTool returns a ToolCheckResult: Allow, or Deny with an
// Interrupt flag distinguishing "this one call is rejected" from
// "stop the turn" (a disabled tool always interrupts; a denied
// pattern on an otherwise-enabled tool does not).
//
// Every denial is recorded on a per-engine DenialTracker so a run
// summary can report what was refused without the tracker holding a
// back-reference to the engine or session that owns it.
package permission
