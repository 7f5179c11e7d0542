// Package exec provides sandboxed execution of external tool commands.
package exec

import (
	"context"
	"time"
)

// Status classifies the outcome of a sandboxed command.
type Status string

const (
	// StatusOK indicates the command exited zero within its timeout.
	StatusOK Status = "ok"
	// StatusNonzeroExit indicates the command ran but exited nonzero.
	StatusNonzeroExit Status = "nonzero_exit"
	// StatusTimeout indicates the command was killed at its deadline.
	StatusTimeout Status = "timeout"
	// StatusLaunchError indicates the command could not be started at all.
	StatusLaunchError Status = "launch_error"
)

// CommandSpec describes one external command to run.
type CommandSpec struct {
	// Name is the executable to invoke.
	Name string
	// Args are the command arguments, not including the executable name.
	Args []string
	// Dir is the working directory. Empty means the process default.
	Dir string
	// Env holds additional environment entries in KEY=VALUE form.
	// The parent environment is always inherited.
	Env []string
	// Timeout is the wall-clock limit for the command. A zero timeout
	// uses DefaultTimeout; every invocation has a deadline.
	Timeout time.Duration
}

// Outcome is the result of one sandboxed command. Expected failure
// modes (nonzero exit, timeout) are reported here, never as faults.
type Outcome struct {
	// Status classifies what happened.
	Status Status
	// ExitCode is the process exit code, or -1 if it never exited normally.
	ExitCode int
	// Stdout is the captured standard output, truncated to the capture limit.
	Stdout string
	// Stderr is the captured standard error, truncated to the capture limit.
	Stderr string
	// Truncated indicates output capture hit the size limit.
	Truncated bool
	// Duration is the wall-clock time the command ran.
	Duration time.Duration
}

// OK returns true if the command completed successfully.
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

// Transient returns true for outcomes the caller may retry as-is.
func (o Outcome) Transient() bool {
	return o.Status == StatusTimeout || o.Status == StatusLaunchError
}

// Runner defines the interface for sandboxed command execution.
// This abstraction allows mocking tool invocations in tests.
type Runner interface {
	// Execute runs one command under its timeout and reports the outcome.
	// Context cancellation terminates the whole process group.
	Execute(ctx context.Context, spec CommandSpec) Outcome
}
