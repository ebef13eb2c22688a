//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout matches execute_sandboxed_command's default of 300s.
	DefaultTimeout = 300 * time.Second
	// MaxOutputLength truncates captured stdout/stderr, mirroring the
	// teacher's bash tool's MaxOutputLength.
	MaxOutputLength = 30000
	sigkillGrace    = 200 * time.Millisecond
)

// ExecResult is the outcome of one sandboxed command execution.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Execute runs command inside the envelope's bubblewrap wrapper, with a
// timeout and, if LinuxUID/GID are set, privilege drop. Grounded on
// sandbox.py's execute_sandboxed_command and the teacher's bash.go
// process-group-kill/truncation idiom.
func (e *Envelope) Execute(ctx context.Context, command string, allowNetwork bool, timeout time.Duration) (ExecResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	bwrapCmd, err := e.WrapShellCommand(command, allowNetwork)
	if err != nil {
		return ExecResult{}, err
	}

	log.Info().Strs("argv_head", headArgs(bwrapCmd, 10)).Msg("sandbox: executing")

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, bwrapCmd[0], bwrapCmd[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if e.LinuxUID != 0 && e.LinuxGID != 0 {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(e.LinuxUID),
			Gid: uint32(e.LinuxGID),
		}
		log.Debug().Int("uid", e.LinuxUID).Int("gid", e.LinuxGID).Msg("sandbox: dropping privileges before exec")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	if timedOut {
		killProcessGroup(cmd)
		log.Warn().Dur("timeout", timeout).Msg("sandbox: command timed out")
		return ExecResult{
			ExitCode: 124,
			Stdout:   "",
			Stderr:   fmt.Sprintf("Command timed out after %s", timeout),
			TimedOut: true,
		}, nil
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			log.Error().Err(runErr).Msg("sandbox: command failed to start")
			return ExecResult{ExitCode: 1, Stderr: runErr.Error()}, nil
		}
	}

	out := strings.ToValidUTF8(truncate(stdout.String()), "�")
	errOut := strings.ToValidUTF8(truncate(stderr.String()), "�")
	log.Info().Int("exit", exitCode).Int("stdout_len", len(out)).Msg("sandbox: result")

	return ExecResult{ExitCode: exitCode, Stdout: out, Stderr: errOut}, nil
}

func truncate(s string) string {
	if len(s) <= MaxOutputLength {
		return s
	}
	return s[:MaxOutputLength] + "\n\n(Output truncated)"
}

func headArgs(args []string, n int) []string {
	if len(args) <= n {
		return args
	}
	return args[:n]
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(sigkillGrace)
	if cmd.ProcessState == nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}
