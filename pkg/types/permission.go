package types

// PermissionProfile is a named, config-level bundle of tool rules, path
// rules, and sandbox config, activated per session. Immutable at
// runtime: the engine clones the SandboxConfig portion per session
// rather than mutating a shared instance (spec §4.4, §9).
type PermissionProfile struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	EnabledTools  []string `yaml:"enabled_tools" json:"enabledTools"`
	DisabledTools []string `yaml:"disabled_tools" json:"disabledTools"`

	// Allow/deny rules keyed by tool name, each a list of patterns
	// (e.g. bash command prefixes, path globs) matched by the permission
	// engine before a tool call proceeds.
	Allow map[string][]string `yaml:"allow" json:"allow"`
	Deny  map[string][]string `yaml:"deny" json:"deny"`

	// AllowedDirs may contain the {workspace} placeholder, substituted
	// by Engine.GetAllowedDirs with the path given to SetSessionContext.
	AllowedDirs []string `yaml:"allowed_dirs" json:"allowedDirs"`

	Sandbox SandboxConfig `yaml:"sandbox" json:"sandbox"`
}

// ToolEnabled reports whether a tool is usable under this profile.
// Disabled takes precedence; an empty EnabledTools list means "all
// tools not explicitly disabled".
func (p *PermissionProfile) ToolEnabled(tool string) bool {
	for _, d := range p.DisabledTools {
		if d == tool {
			return false
		}
	}
	if len(p.EnabledTools) == 0 {
		return true
	}
	for _, e := range p.EnabledTools {
		if e == tool {
			return true
		}
	}
	return false
}
