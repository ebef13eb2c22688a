// Package uidpolicy enforces the UID/GID security invariants that apply
// regardless of which isolation mode a deployment runs in. Grounded on
// original_source/src/core/uid_security.py.
package uidpolicy

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Mode selects the UID allocation strategy for a deployment.
type Mode string

const (
	// ModeIsolated allocates from a dedicated range that doesn't
	// correspond to real host users. Safer for multi-tenant deployments.
	ModeIsolated Mode = "isolated"
	// ModeDirect maps session UIDs directly onto host UIDs. Simpler
	// bind-mount ownership, opt-in due to the security implications.
	ModeDirect Mode = "direct"
)

// Config is the UID security configuration for one deployment.
type Config struct {
	Mode Mode

	IsolatedUIDMin int
	IsolatedUIDMax int
	DirectUIDMin   int
	DirectUIDMax   int

	// LegacyUIDMin/Max covers UIDs allocated before the isolated range
	// was introduced; still accepted when AllowLegacyUIDs is set.
	LegacyUIDMin    int
	LegacyUIDMax    int
	AllowLegacyUIDs bool

	BlockedUIDs  map[int]bool
	SystemUIDMax int
	APIUserUID   int

	RequireCapabilityCheck bool
}

// DefaultConfig matches the original's defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeIsolated,
		IsolatedUIDMin:         50000,
		IsolatedUIDMax:         60000,
		DirectUIDMin:           1000,
		DirectUIDMax:           65533,
		LegacyUIDMin:           2000,
		LegacyUIDMax:           49999,
		AllowLegacyUIDs:        true,
		BlockedUIDs:            map[int]bool{0: true},
		SystemUIDMax:           999,
		APIUserUID:             45045,
		RequireCapabilityCheck: true,
	}
}

// LoadConfigFromEnv applies AG3NTUM_UID_MODE and range overrides on top of
// DefaultConfig, mirroring uid_security.py's _load_uid_security_config.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("AG3NTUM_UID_MODE"); v == "direct" {
		cfg.Mode = ModeDirect
		log.Warn().Msg("AG3NTUM_UID_MODE=direct: mapping container UIDs directly onto host UIDs")
	} else {
		log.Info().Msg("AG3NTUM_UID_MODE=isolated: using isolated UID range 50000-60000")
	}

	overrideInt := func(envVar string, dst *int) {
		v := os.Getenv(envVar)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Str("var", envVar).Str("value", v).Msg("ignoring malformed UID range override")
			return
		}
		*dst = n
	}
	overrideInt("AG3NTUM_ISOLATED_UID_MIN", &cfg.IsolatedUIDMin)
	overrideInt("AG3NTUM_ISOLATED_UID_MAX", &cfg.IsolatedUIDMax)
	overrideInt("AG3NTUM_DIRECT_UID_MIN", &cfg.DirectUIDMin)
	overrideInt("AG3NTUM_DIRECT_UID_MAX", &cfg.DirectUIDMax)

	return cfg
}

// Range returns the valid UID range for the configured mode.
func (c Config) Range() (min, max int) {
	if c.Mode == ModeIsolated {
		return c.IsolatedUIDMin, c.IsolatedUIDMax
	}
	return c.DirectUIDMin, c.DirectUIDMax
}

// InValidRange reports whether uid falls in the mode's range or, when
// enabled, the legacy range.
func (c Config) InValidRange(uid int) bool {
	min, max := c.Range()
	if uid >= min && uid <= max {
		return true
	}
	if c.AllowLegacyUIDs && uid >= c.LegacyUIDMin && uid <= c.LegacyUIDMax {
		return true
	}
	return false
}

// ViolationError reports why a UID/GID failed validation. Callers should
// treat a non-nil error from Validate* as a hard deny, never a retry.
type ViolationError struct {
	Subject string // "UID" or "GID"
	Value   int
	Reason  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s %d rejected: %s", e.Subject, e.Value, e.Reason)
}

// ValidateUIDForSetuid enforces the four invariants that hold in both
// modes: never root, never a system account, never the API service UID,
// and (when sessionUID is non-zero) the target must equal the caller's
// own authenticated UID — principle of least privilege.
func ValidateUIDForSetuid(cfg Config, uid int, sessionUID int) error {
	if uid == 0 {
		return &ViolationError{"UID", uid, "UID 0 (root) is blocked unconditionally"}
	}
	if cfg.BlockedUIDs[uid] {
		return &ViolationError{"UID", uid, "UID is in the blocked list"}
	}
	if uid <= cfg.SystemUIDMax {
		return &ViolationError{"UID", uid, fmt.Sprintf("system account (<= %d)", cfg.SystemUIDMax)}
	}
	if uid == cfg.APIUserUID {
		return &ViolationError{"UID", uid, "is the API service UID, cannot be used for sandboxed commands"}
	}
	if !cfg.InValidRange(uid) {
		min, max := cfg.Range()
		return &ViolationError{"UID", uid, fmt.Sprintf("outside valid range [%d, %d] for mode %s", min, max, cfg.Mode)}
	}
	if sessionUID != 0 && uid != sessionUID {
		return &ViolationError{"UID", uid, fmt.Sprintf("does not match session UID %d (principle of least privilege)", sessionUID)}
	}
	return nil
}

// ValidateGIDForSetgid mirrors ValidateUIDForSetuid without the
// session-match and API-user checks (groups aren't per-session scoped).
func ValidateGIDForSetgid(cfg Config, gid int) error {
	if gid == 0 {
		return &ViolationError{"GID", gid, "GID 0 (root) is blocked unconditionally"}
	}
	if gid <= cfg.SystemUIDMax {
		return &ViolationError{"GID", gid, fmt.Sprintf("system group (<= %d)", cfg.SystemUIDMax)}
	}
	if !cfg.InValidRange(gid) {
		min, max := cfg.Range()
		return &ViolationError{"GID", gid, fmt.Sprintf("outside valid range [%d, %d] for mode %s", min, max, cfg.Mode)}
	}
	return nil
}
