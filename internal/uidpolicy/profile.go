package uidpolicy

// SeccompProfile is the JSON document an external isolator (the bwrap
// wrapper or an OCI-style runtime) consumes to apply the same UID
// restrictions this package enforces in-process. Grounded on spec §4.1's
// "This program is serialized to a JSON document consumed by the
// isolator."
type SeccompProfile struct {
	Mode             string   `json:"mode"`
	DeniedSyscalls   []string `json:"deniedSyscalls"`
	UIDGuardedCalls  []string `json:"uidGuardedSyscalls"`
	GIDGuardedCalls  []string `json:"gidGuardedSyscalls"`
	SystemUIDMax     int      `json:"systemUidMax"`
	IsolatedRangeMin int      `json:"isolatedRangeMin,omitempty"`
	IsolatedRangeMax int      `json:"isolatedRangeMax,omitempty"`
}

// BuildProfile renders the current policy as the JSON-serializable
// profile document; callers marshal it with encoding/json.
func BuildProfile(cfg Config) SeccompProfile {
	p := SeccompProfile{
		Mode:         string(cfg.Mode),
		SystemUIDMax: cfg.SystemUIDMax,
	}
	if cfg.Mode == ModeIsolated {
		p.IsolatedRangeMin = cfg.IsolatedUIDMin
		p.IsolatedRangeMax = cfg.IsolatedUIDMax
	}
	p.DeniedSyscalls = []string{
		"mount", "umount2", "reboot", "swapon", "swapoff",
		"kexec_load", "init_module", "finit_module", "delete_module",
		"pivot_root", "ptrace",
	}
	p.UIDGuardedCalls = []string{"setuid", "setreuid", "setresuid", "setfsuid"}
	p.GIDGuardedCalls = []string{"setgid", "setregid", "setresgid", "setfsgid"}
	return p
}
