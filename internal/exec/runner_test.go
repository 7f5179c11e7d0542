package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func run(t *testing.T, spec CommandSpec) Outcome {
	t.Helper()
	return NewRunner().Execute(context.Background(), spec)
}

func TestExecute_Success(t *testing.T) {
	out := run(t, CommandSpec{Name: "sh", Args: []string{"-c", "echo hello"}})

	if out.Status != StatusOK {
		t.Fatalf("Status = %q, want %q (stderr: %s)", out.Status, StatusOK, out.Stderr)
	}
	if out.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", out.ExitCode)
	}
	if !strings.Contains(out.Stdout, "hello") {
		t.Errorf("Stdout = %q, want it to contain %q", out.Stdout, "hello")
	}
	if !out.OK() {
		t.Error("OK() = false, want true")
	}
}

func TestExecute_NonzeroExit(t *testing.T) {
	out := run(t, CommandSpec{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}})

	if out.Status != StatusNonzeroExit {
		t.Fatalf("Status = %q, want %q", out.Status, StatusNonzeroExit)
	}
	if out.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", out.ExitCode)
	}
	if !strings.Contains(out.Stderr, "oops") {
		t.Errorf("Stderr = %q, want it to contain %q", out.Stderr, "oops")
	}
	if out.Transient() {
		t.Error("Transient() = true for nonzero exit, want false")
	}
}

func TestExecute_Timeout(t *testing.T) {
	start := time.Now()
	out := run(t, CommandSpec{
		Name:    "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
	})

	if out.Status != StatusTimeout {
		t.Fatalf("Status = %q, want %q", out.Status, StatusTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, expected forced termination well before the sleep finished", elapsed)
	}
	if !out.Transient() {
		t.Error("Transient() = false for timeout, want true")
	}
}

func TestExecute_TimeoutKillsProcessGroup(t *testing.T) {
	// The shell spawns a child; the group kill must take both down
	// instead of waiting for the grandchild to exit.
	start := time.Now()
	out := run(t, CommandSpec{
		Name:    "sh",
		Args:    []string{"-c", "sleep 10 & wait"},
		Timeout: 100 * time.Millisecond,
	})

	if out.Status != StatusTimeout {
		t.Fatalf("Status = %q, want %q", out.Status, StatusTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("group kill took %v, grandchild likely survived", elapsed)
	}
}

func TestExecute_LaunchError(t *testing.T) {
	out := run(t, CommandSpec{Name: "definitely-not-a-real-binary-xyz"})

	if out.Status != StatusLaunchError {
		t.Fatalf("Status = %q, want %q", out.Status, StatusLaunchError)
	}
	if out.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", out.ExitCode)
	}
	if out.Stderr == "" {
		t.Error("Stderr empty, want the launch error message")
	}
}

func TestExecute_TruncatesOutput(t *testing.T) {
	r := NewRunnerWithLimit(64)
	out := r.Execute(context.Background(), CommandSpec{
		Name: "sh",
		Args: []string{"-c", "yes x | head -c 10000"},
	})

	if out.Status != StatusOK {
		t.Fatalf("Status = %q, want %q", out.Status, StatusOK)
	}
	if len(out.Stdout) > 64 {
		t.Errorf("Stdout length = %d, want <= 64", len(out.Stdout))
	}
	if !out.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestExecute_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	out := run(t, CommandSpec{Name: "pwd", Dir: dir})

	if out.Status != StatusOK {
		t.Fatalf("Status = %q, want %q", out.Status, StatusOK)
	}
	if !strings.Contains(out.Stdout, dir) {
		t.Errorf("Stdout = %q, want it to contain %q", out.Stdout, dir)
	}
}

func TestExecute_Env(t *testing.T) {
	out := run(t, CommandSpec{
		Name: "sh",
		Args: []string{"-c", "echo $REFINERY_TEST_VAR"},
		Env:  []string{"REFINERY_TEST_VAR=wired"},
	})

	if !strings.Contains(out.Stdout, "wired") {
		t.Errorf("Stdout = %q, want it to contain %q", out.Stdout, "wired")
	}
}

func TestExecute_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out := NewRunner().Execute(ctx, CommandSpec{Name: "sleep", Args: []string{"10"}, Timeout: time.Minute})

	// Cancellation is not a deadline, so it surfaces as a nonzero exit
	// from the killed process rather than a timeout.
	if out.Status == StatusOK {
		t.Fatalf("Status = %q, want a failure status after cancellation", out.Status)
	}
	if out.Duration > 5*time.Second {
		t.Errorf("Duration = %v, want prompt termination on cancel", out.Duration)
	}
}

func TestLimitBuffer(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		truncated bool
	}{
		{"under limit", 10, []string{"abc", "def"}, "abcdef", false},
		{"exact limit", 6, []string{"abc", "def"}, "abcdef", false},
		{"over limit", 4, []string{"abc", "def"}, "abcd", true},
		{"write after full", 3, []string{"abc", "x"}, "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newLimitBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				if err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				if n != len(w) {
					t.Errorf("Write returned %d, want %d (short writes break os/exec)", n, len(w))
				}
			}
			if got := b.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if b.Truncated() != tt.truncated {
				t.Errorf("Truncated() = %v, want %v", b.Truncated(), tt.truncated)
			}
		})
	}
}
