//go:build linux

package sandbox

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ag3ntum/ag3ntum/internal/uidpolicy"
)

// NamespaceAttr builds the SysProcAttr that puts a command into its own
// PID/UTS/IPC namespaces (and NET, when network is denied), mirroring
// bwrap's --unshare-pid/-uts/-ipc flags at the exec.Cmd level for the
// cases where the wrapper process itself (not just the sandboxed child)
// needs isolating. Execute does not use it: it sets only Setpgid (and a
// Credential for privilege drop).
// Grounded on the pack's Linux sandbox reference (sysProcAttr,
// cloneFlags).
func NamespaceAttr(denyNetwork bool) *syscall.SysProcAttr {
	flags := uintptr(syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if denyNetwork {
		flags |= syscall.CLONE_NEWNET
	}
	return &syscall.SysProcAttr{Cloneflags: flags}
}

// ApplySeccomp loads the denylist and UID-guard BPF programs into the
// current process via PR_SET_NO_NEW_PRIVS + SECCOMP_SET_MODE_FILTER.
// Must run after setuid/setgid, before exec, in a child process that
// will never need to change privileges again.
func ApplySeccomp(cfg uidpolicy.Config) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return err
	}
	for _, prog := range [][]unix.SockFilter{
		uidpolicy.BuildDenylistFilter(),
		uidpolicy.BuildUIDGuardFilter(cfg),
	} {
		if len(prog) == 0 {
			continue
		}
		sockProg := unix.SockFprog{
			Len:    uint16(len(prog)),
			Filter: &prog[0],
		}
		if err := unix.Prctl(unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&sockProg)), 0, 0); err != nil {
			return err
		}
	}
	return nil
}
