package types

import "strings"

// SandboxMount describes one bind mount the envelope will attempt to
// establish. Grounded on original_source/src/core/sandbox.py's
// SandboxMount pydantic model.
type SandboxMount struct {
	Source   string `yaml:"source" json:"source"`
	Target   string `yaml:"target" json:"target"`
	Mode     string `yaml:"mode" json:"mode"` // "ro" | "rw"
	Optional bool   `yaml:"optional" json:"optional"`
}

// Resolve substitutes {placeholder} tokens (e.g. {username}, {session_id})
// in Source/Target, matching sandbox.py's SandboxMount.resolve().
func (m SandboxMount) Resolve(placeholders map[string]string) SandboxMount {
	return SandboxMount{
		Source:   resolvePlaceholders(m.Source, placeholders),
		Target:   resolvePlaceholders(m.Target, placeholders),
		Mode:     m.Mode,
		Optional: m.Optional,
	}
}

func resolvePlaceholders(value string, placeholders map[string]string) string {
	resolved := value
	for k, v := range placeholders {
		resolved = strings.ReplaceAll(resolved, "{"+k+"}", v)
	}
	return resolved
}

// SandboxNetworkConfig is the network policy for sandboxed tools.
type SandboxNetworkConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedDomains []string `yaml:"allowed_domains" json:"allowedDomains"`
	AllowLocalhost bool     `yaml:"allow_localhost" json:"allowLocalhost"`
}

// SandboxEnvConfig controls the environment seen inside the sandbox.
// CustomEnv must always be a fresh, per-session map — see
// SandboxConfig.Resolve and spec §9 "per-user env injection" note.
type SandboxEnvConfig struct {
	Home      string            `yaml:"home" json:"home"`
	Path      string            `yaml:"path" json:"path"`
	ClearEnv  bool              `yaml:"clear_env" json:"clearEnv"`
	CustomEnv map[string]string `yaml:"-" json:"customEnv,omitempty"`
}

// ProcFilteringConfig controls what /proc entries are exposed in nested
// (Docker-in-Docker-style) sandbox mode.
type ProcFilteringConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedEntries []string `yaml:"allowed_entries" json:"allowedEntries"`
}

// DefaultProcFilteringConfig matches the original's safe default set.
func DefaultProcFilteringConfig() ProcFilteringConfig {
	return ProcFilteringConfig{
		Enabled: true,
		AllowedEntries: []string{
			"/proc/self",
			"/proc/cpuinfo",
			"/proc/meminfo",
			"/proc/uptime",
			"/proc/version",
		},
	}
}

// SandboxConfig is the complete, resolvable sandbox configuration for one
// permission profile. Grounded on
// original_source/src/core/sandbox.py::SandboxConfig.
type SandboxConfig struct {
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	FileSandboxing    bool   `yaml:"file_sandboxing" json:"fileSandboxing"`
	NetworkSandboxing bool   `yaml:"network_sandboxing" json:"networkSandboxing"`
	BwrapPath         string `yaml:"bwrap_path" json:"bwrapPath"`
	UseTmpfsRoot      bool   `yaml:"use_tmpfs_root" json:"useTmpfsRoot"`

	StaticMounts  map[string]SandboxMount `yaml:"static_mounts" json:"staticMounts"`
	SessionMounts map[string]SandboxMount `yaml:"session_mounts" json:"sessionMounts"`
	DynamicMounts []SandboxMount          `yaml:"dynamic_mounts" json:"dynamicMounts"`

	Network     SandboxNetworkConfig `yaml:"network" json:"network"`
	Environment SandboxEnvConfig     `yaml:"environment" json:"environment"`
	ProcFilter  ProcFilteringConfig  `yaml:"proc_filtering" json:"procFiltering"`

	WritablePaths []string `yaml:"writable_paths" json:"writablePaths"`
	ReadonlyPaths []string `yaml:"readonly_paths" json:"readonlyPaths"`
}

// Resolve returns a deep copy of c with all {placeholder} tokens
// substituted and, critically, a BRAND NEW SandboxEnvConfig with an
// empty CustomEnv map — callers populate CustomEnv from their own
// per-session sandboxed_envs afterward. Never share a SandboxConfig's
// Environment across sessions; that was the exact bug this guards
// against (spec §9).
func (c SandboxConfig) Resolve(placeholders map[string]string) SandboxConfig {
	resolveMounts := func(in map[string]SandboxMount) map[string]SandboxMount {
		out := make(map[string]SandboxMount, len(in))
		for k, m := range in {
			out[k] = m.Resolve(placeholders)
		}
		return out
	}

	dynamic := make([]SandboxMount, len(c.DynamicMounts))
	for i, m := range c.DynamicMounts {
		dynamic[i] = m.Resolve(placeholders)
	}

	writable := make([]string, len(c.WritablePaths))
	for i, p := range c.WritablePaths {
		writable[i] = resolvePlaceholders(p, placeholders)
	}
	readonly := make([]string, len(c.ReadonlyPaths))
	for i, p := range c.ReadonlyPaths {
		readonly[i] = resolvePlaceholders(p, placeholders)
	}

	return SandboxConfig{
		Enabled:           c.Enabled,
		FileSandboxing:    c.FileSandboxing,
		NetworkSandboxing: c.NetworkSandboxing,
		BwrapPath:         resolvePlaceholders(c.BwrapPath, placeholders),
		UseTmpfsRoot:      c.UseTmpfsRoot,
		StaticMounts:      resolveMounts(c.StaticMounts),
		SessionMounts:     resolveMounts(c.SessionMounts),
		DynamicMounts:     dynamic,
		Network:           c.Network,
		Environment: SandboxEnvConfig{
			Home:      c.Environment.Home,
			Path:      c.Environment.Path,
			ClearEnv:  c.Environment.ClearEnv,
			CustomEnv: map[string]string{},
		},
		ProcFilter:    c.ProcFilter,
		WritablePaths: writable,
		ReadonlyPaths: readonly,
	}
}
