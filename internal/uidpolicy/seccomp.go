//go:build linux

package uidpolicy

import (
	"golang.org/x/sys/unix"
)

// dangerousSyscalls are always denied inside the sandbox regardless of
// UID mode: nothing a tenant runs should be able to touch mounts, modules,
// or ptrace another process.
var dangerousSyscalls = []uint32{
	unix.SYS_MOUNT,
	unix.SYS_UMOUNT2,
	unix.SYS_REBOOT,
	unix.SYS_SWAPON,
	unix.SYS_SWAPOFF,
	unix.SYS_KEXEC_LOAD,
	unix.SYS_INIT_MODULE,
	unix.SYS_FINIT_MODULE,
	unix.SYS_DELETE_MODULE,
	unix.SYS_PIVOT_ROOT,
	unix.SYS_PTRACE,
}

// uidChangingSyscalls are the syscalls whose first argument sets the
// caller's uid; BuildUIDGuardFilter also guards gidChangingSyscalls, since
// spec invariant 4 applies "the same for the setgid family".
var uidChangingSyscalls = []uint32{
	unix.SYS_SETUID,
	unix.SYS_SETREUID,
	unix.SYS_SETRESUID,
	unix.SYS_SETFSUID,
}

var gidChangingSyscalls = []uint32{
	unix.SYS_SETGID,
	unix.SYS_SETREGID,
	unix.SYS_SETRESGID,
	unix.SYS_SETFSGID,
}

const (
	seccompRetAllow = 0x7fff0000
	seccompRetErrno = 0x00050000

	// seccompDataArgsOffset is offsetof(struct seccomp_data, args[0]) on
	// little-endian 64-bit architectures; args are __u64 so the low
	// 32 bits (the value these syscalls actually take) sit at this byte
	// offset.
	seccompDataArgsOffset = 16

	// guardBlockSize is the fixed instruction count of each per-syscall
	// argument check block built by appendGuardBlock.
	guardBlockSize = 6
)

// BuildDenylistFilter builds a BPF program that returns EPERM for any of
// dangerousSyscalls and ALLOW for everything else. Grounded on the pack's
// Linux sandbox reference buildSeccompFilter.
func BuildDenylistFilter() []unix.SockFilter {
	n := len(dangerousSyscalls)
	if n == 0 {
		return nil
	}
	prog := make([]unix.SockFilter, 0, n+3)
	prog = append(prog, unix.SockFilter{Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS, K: 0})
	for i, nr := range dangerousSyscalls {
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   uint8(n - i),
			Jf:   0,
			K:    nr,
		})
	}
	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetAllow})
	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetErrno | uint32(unix.EPERM)})
	return prog
}

// BuildUIDGuardFilter builds the BPF program described by spec invariant
// 4: any setuid/setreuid/setresuid/setfsuid call with argument 0 or
// <= SystemUIDMax returns EPERM; in isolated mode, an argument outside
// the isolated range also returns EPERM. The same rule applies to the
// setgid family. Meant to be loaded as a second, additional seccomp
// filter alongside BuildDenylistFilter — the kernel combines multiple
// attached filters by taking the most restrictive action.
func BuildUIDGuardFilter(cfg Config) []unix.SockFilter {
	var guarded []uint32
	guarded = append(guarded, uidChangingSyscalls...)
	guarded = append(guarded, gidChangingSyscalls...)
	if len(guarded) == 0 {
		return nil
	}

	rangeMin, rangeMax := uint32(0), uint32(0xffffffff)
	if cfg.Mode == ModeIsolated {
		rangeMin, rangeMax = uint32(cfg.IsolatedUIDMin), uint32(cfg.IsolatedUIDMax)
	}
	sysMax := uint32(cfg.SystemUIDMax)

	jeqBase := 1
	g := len(guarded)
	defaultAllowIdx := jeqBase + g
	blocksStart := defaultAllowIdx + 1

	prog := make([]unix.SockFilter, 0, blocksStart+g*guardBlockSize)
	prog = append(prog, unix.SockFilter{Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS, K: 0})

	for i, nr := range guarded {
		jeqIdx := jeqBase + i
		blockIdx := blocksStart + i*guardBlockSize
		jt := uint8(blockIdx - (jeqIdx + 1))
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   jt,
			Jf:   0,
			K:    nr,
		})
	}
	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetAllow})

	for range guarded {
		prog = append(prog, guardBlock(rangeMin, rangeMax, sysMax)...)
	}

	return prog
}

// guardBlock emits the fixed 6-instruction sequence:
//
//	[0] load arg0
//	[1] JGT sysMax   -> false: DENY(5)   true: continue(2)
//	[2] JGE rangeMin -> false: DENY(5)   true: continue(3)
//	[3] JGT rangeMax -> true:  DENY(5)   false: ALLOW(4)
//	[4] RET ALLOW
//	[5] RET ERRNO(EPERM)
//
// arg <= sysMax (covers 0 and system accounts) always denies; outside
// [rangeMin, rangeMax] denies only when the caller passed a real,
// narrower-than-full range (direct mode passes [0, 0xffffffff], making
// these two checks no-ops).
func guardBlock(rangeMin, rangeMax, sysMax uint32) []unix.SockFilter {
	return []unix.SockFilter{
		{Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS, K: seccompDataArgsOffset},
		{Code: unix.BPF_JMP | unix.BPF_JGT | unix.BPF_K, Jt: 0, Jf: 3, K: sysMax},
		{Code: unix.BPF_JMP | unix.BPF_JGE | unix.BPF_K, Jt: 0, Jf: 2, K: rangeMin},
		{Code: unix.BPF_JMP | unix.BPF_JGT | unix.BPF_K, Jt: 1, Jf: 0, K: rangeMax},
		{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetAllow},
		{Code: unix.BPF_RET | unix.BPF_K, K: seccompRetErrno | uint32(unix.EPERM)},
	}
}
