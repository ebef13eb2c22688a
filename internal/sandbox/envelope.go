// Package sandbox builds and runs the bubblewrap-style command envelope
// that wraps every tool-invoked shell command for a session. Grounded on
// original_source/src/core/sandbox.py's SandboxExecutor.
package sandbox

import (
	"fmt"
	"os"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

// MountError reports a required (non-optional) mount whose source is
// missing — the fail-closed posture spec §4.3 requires: refuse to
// execute rather than run with a hole in the isolation boundary.
type MountError struct {
	Name   string
	Source string
}

func (e *MountError) Error() string {
	return fmt.Sprintf("sandbox: required mount %q source missing: %s — refusing to execute without isolation", e.Name, e.Source)
}

// Envelope builds bwrap command lines for one resolved sandbox
// configuration plus an optional privilege-drop target.
type Envelope struct {
	Config   types.SandboxConfig
	LinuxUID int // 0 means "do not setuid"
	LinuxGID int
}

// BuildCommand assembles `<bwrap_path> <flags> -- <command...>`.
// nestedContainer mirrors sandbox.py's default of true: the orchestrator
// itself usually runs inside a container, so pivot_root-requiring flags
// (--unshare-all, --tmpfs /, --proc) are avoided in favor of explicit
// bind mounts and a filtered /proc.
func (e *Envelope) BuildCommand(command []string, allowNetwork bool, nestedContainer bool) ([]string, error) {
	cfg := e.Config
	cmd := []string{cfg.BwrapPath}

	if nestedContainer {
		cmd = append(cmd, "--unshare-pid", "--unshare-uts", "--unshare-ipc")
	} else {
		cmd = append(cmd, "--unshare-all")
	}
	cmd = append(cmd, "--die-with-parent", "--new-session")

	if cfg.UseTmpfsRoot && !nestedContainer {
		cmd = append(cmd, "--tmpfs", "/")
	} else {
		cmd = append(cmd, "--tmpfs", "/tmp:size=100M")
	}

	if nestedContainer {
		if cfg.ProcFilter.Enabled {
			cmd = append(cmd, "--tmpfs", "/proc")
			for _, entry := range cfg.ProcFilter.AllowedEntries {
				if _, err := os.Stat(entry); err == nil {
					cmd = append(cmd, "--ro-bind", entry, entry)
				} else {
					log.Debug().Str("entry", entry).Msg("sandbox: skipping non-existent proc entry")
				}
			}
			log.Info().Int("entries", len(cfg.ProcFilter.AllowedEntries)).Msg("sandbox: using filtered /proc")
		} else {
			log.Warn().Msg("sandbox: using full /proc bind — all processes visible to the agent")
			cmd = append(cmd, "--ro-bind", "/proc", "/proc")
		}
		cmd = append(cmd, "--dev-bind", "/dev", "/dev")
	} else {
		cmd = append(cmd, "--proc", "/proc", "--dev", "/dev")
	}

	allMounts := make(map[string]types.SandboxMount, len(cfg.StaticMounts)+len(cfg.SessionMounts))
	for name, m := range cfg.StaticMounts {
		allMounts[name] = m
	}
	for name, m := range cfg.SessionMounts {
		allMounts[name] = m
	}
	for name, mount := range allMounts {
		args, err := mountArgs(name, mount)
		if err != nil {
			return nil, err
		}
		cmd = append(cmd, args...)
	}
	for i, mount := range cfg.DynamicMounts {
		args, err := mountArgs(fmt.Sprintf("dynamic[%d]", i), mount)
		if err != nil {
			return nil, err
		}
		cmd = append(cmd, args...)
	}

	if !allowNetwork && cfg.NetworkSandboxing && !nestedContainer {
		cmd = append(cmd, "--unshare-net")
	}

	if cfg.Environment.ClearEnv {
		cmd = append(cmd, "--clearenv")
	}
	cmd = append(cmd, "--setenv", "HOME", cfg.Environment.Home)
	cmd = append(cmd, "--setenv", "PATH", cfg.Environment.Path)
	cmd = append(cmd, "--setenv", "AG3NTUM_CONTEXT", "sandbox")

	for name, value := range cfg.Environment.CustomEnv {
		if isValidEnvName(name) {
			cmd = append(cmd, "--setenv", name, value)
		} else {
			log.Warn().Str("name", name).Msg("sandbox: skipping invalid custom env var name")
		}
	}
	if len(cfg.Environment.CustomEnv) > 0 {
		log.Info().Int("count", len(cfg.Environment.CustomEnv)).Msg("sandbox: applied custom env vars from per-session secrets")
	}

	cmd = append(cmd, "--chdir", cfg.Environment.Home)
	cmd = append(cmd, "--")
	cmd = append(cmd, command...)
	return cmd, nil
}

// WrapShellCommand wraps a shell command string for bash -lc execution.
func (e *Envelope) WrapShellCommand(command string, allowNetwork bool) ([]string, error) {
	return e.BuildCommand([]string{"bash", "-lc", command}, allowNetwork, true)
}

// ValidateMountSources returns the sources of any required (non-optional)
// mounts that don't exist, for startup diagnostics.
func (e *Envelope) ValidateMountSources() []string {
	var missing []string
	check := func(m types.SandboxMount) {
		if m.Optional {
			return
		}
		if _, err := os.Stat(m.Source); err != nil {
			missing = append(missing, m.Source)
		}
	}
	for _, m := range e.Config.StaticMounts {
		check(m)
	}
	for _, m := range e.Config.SessionMounts {
		check(m)
	}
	for _, m := range e.Config.DynamicMounts {
		check(m)
	}
	return missing
}

func mountArgs(name string, m types.SandboxMount) ([]string, error) {
	if _, err := os.Stat(m.Source); err != nil {
		if m.Optional {
			log.Debug().Str("name", name).Str("source", m.Source).Msg("sandbox: skipping optional mount, source not found")
			return nil, nil
		}
		return nil, &MountError{Name: name, Source: m.Source}
	}
	flag := "--ro-bind"
	if m.Mode == "rw" {
		flag = "--bind"
	}
	return []string{flag, m.Source, m.Target}, nil
}

// isValidEnvName mirrors Python's str.isidentifier() well enough for the
// shell/env names this carries: custom secrets keys, never arbitrary
// user text.
func isValidEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && !(unicode.IsLetter(r) || r == '_') {
			return false
		}
		if i > 0 && !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
