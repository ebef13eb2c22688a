//go:build linux

package uidpolicy

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// HasSetuidCapability reports whether the current process can actually
// perform setuid/setgid operations, via CAP_SETUID/CAP_SETGID rather than
// assuming root. Grounded on uid_security.py's check_setuid_capability
// (/proc/self/status parsing) and the CapUserHeader/CapUserData pattern
// from the pack's Linux sandbox reference.
func HasSetuidCapability() (bool, string) {
	if os.Geteuid() == 0 {
		return true, "running as root"
	}

	var hdr unix.CapUserHeader
	var data unix.CapUserData
	hdr.Version = unix.LINUX_CAPABILITY_VERSION_1
	hdr.Pid = 0
	if err := unix.Capget(&hdr, &data); err != nil {
		return false, "capget failed: " + err.Error()
	}

	hasSetuid := data.Effective&(1<<unix.CAP_SETUID) != 0
	hasSetgid := data.Effective&(1<<unix.CAP_SETGID) != 0
	switch {
	case hasSetuid && hasSetgid:
		return true, "CAP_SETUID and CAP_SETGID present"
	case hasSetuid:
		return false, "CAP_SETUID present but CAP_SETGID missing"
	case hasSetgid:
		return false, "CAP_SETGID present but CAP_SETUID missing"
	default:
		return false, "neither CAP_SETUID nor CAP_SETGID present"
	}
}

// HasNamespaceCapability reports whether the process can create the
// namespaces the sandbox envelope needs (CAP_SYS_ADMIN, or unprivileged
// user namespaces where the kernel allows them).
func HasNamespaceCapability() bool {
	if os.Geteuid() == 0 {
		return true
	}

	var hdr unix.CapUserHeader
	var data unix.CapUserData
	hdr.Version = unix.LINUX_CAPABILITY_VERSION_1
	hdr.Pid = 0
	if err := unix.Capget(&hdr, &data); err == nil {
		if data.Effective&(1<<unix.CAP_SYS_ADMIN) != 0 {
			return true
		}
	}

	if val, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone"); err == nil {
		return strings.TrimSpace(string(val)) == "1"
	}
	return false
}
