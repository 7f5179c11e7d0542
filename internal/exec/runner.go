package exec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	// DefaultTimeout applies when a CommandSpec carries no timeout.
	DefaultTimeout = 60 * time.Second
	// DefaultCaptureLimit bounds stdout/stderr capture per stream.
	// Verbose tool logs (EvoSuite, PIT) can otherwise grow without bound.
	DefaultCaptureLimit = 256 * 1024
)

// SandboxRunner implements Runner using os/exec with process-group
// isolation. It is stateless and safe for concurrent use; each call
// owns only the lifetime of the one subprocess it launched.
type SandboxRunner struct {
	captureLimit int
}

// NewRunner creates a SandboxRunner with the default capture limit.
func NewRunner() *SandboxRunner {
	return &SandboxRunner{captureLimit: DefaultCaptureLimit}
}

// NewRunnerWithLimit creates a SandboxRunner with a custom per-stream
// capture limit in bytes.
func NewRunnerWithLimit(limit int) *SandboxRunner {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	return &SandboxRunner{captureLimit: limit}
}

// Execute runs the command under its timeout, capturing bounded output.
func (r *SandboxRunner) Execute(ctx context.Context, spec CommandSpec) Outcome {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(spec.Name, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	// Place the child in its own process group so the kill below also
	// reaps any grandchildren (JVMs fork helpers that survive a plain
	// Process.Kill and would keep holding the unit's worker slot).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := newLimitBuffer(r.captureLimit)
	stderr := newLimitBuffer(r.captureLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{
			Status:   StatusLaunchError,
			ExitCode: -1,
			Stderr:   err.Error(),
			Duration: time.Since(start),
		}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	timedOut := false

	select {
	case waitErr = <-waitCh:
	case <-runCtx.Done():
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		killGroup(cmd)
		waitErr = <-waitCh
	}

	outcome := Outcome{
		ExitCode:  exitCode(cmd, waitErr),
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}

	switch {
	case timedOut:
		outcome.Status = StatusTimeout
	case waitErr == nil:
		outcome.Status = StatusOK
	default:
		outcome.Status = StatusNonzeroExit
	}
	return outcome
}

// killGroup force-terminates the command's entire process group.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// exitCode extracts the process exit code, or -1 if unavailable.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Verify SandboxRunner implements Runner at compile time.
var _ Runner = (*SandboxRunner)(nil)
