package executor

import (
	"bytes"
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"claude-diagnose/internal/logging"
)

func TestLimitedWriterUnderLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := &LimitedWriter{W: &buf, N: 100}

	n, err := lw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if lw.Truncated {
		t.Error("Truncated = true under limit")
	}
	if buf.String() != "hello" {
		t.Errorf("buffer = %q", buf.String())
	}
}

func TestLimitedWriterOverLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := &LimitedWriter{W: &buf, N: 4}

	// exec.Cmd expects the full length consumed even when data is dropped.
	n, err := lw.Write([]byte("abcdef"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 6 {
		t.Errorf("n = %d, want 6", n)
	}
	if !lw.Truncated {
		t.Error("Truncated = false over limit")
	}
	if buf.String() != "abcd" {
		t.Errorf("buffer = %q, want abcd", buf.String())
	}

	n, _ = lw.Write([]byte("more"))
	if n != 4 {
		t.Errorf("n after cap = %d, want 4", n)
	}
	if buf.Len() != 4 {
		t.Errorf("buffer grew past cap: %d bytes", buf.Len())
	}
}

func TestRunStateString(t *testing.T) {
	tests := []struct {
		state RunState
		want  string
	}{
		{StateNotStarted, "not_started"},
		{StateRunning, "running"},
		{StateCompleted, "completed"},
		{StateTimedOut, "timed_out"},
		{StateFailed, "failed"},
		{RunState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// A tool that outlives its deadline must be gone when Run returns: SIGINT to
// the process group, then SIGKILL after the grace period. sleep ignores
// neither, so the run ends within the grace window with a timed_out state
// and no surviving child.
func TestRunKillsProcessGroupAtDeadline(t *testing.T) {
	r := NewRunner(1<<20, nil, logging.Discard())
	if !r.Available("sleep") {
		t.Skip("sleep not in allowed paths")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	raw, err := r.Run(ctx, "sleep", "60")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if raw.State != StateTimedOut {
		t.Errorf("State = %s, want %s", raw.State, StateTimedOut)
	}
	if elapsed > gracefulShutdownTimeout+2*time.Second {
		t.Errorf("Run returned after %v, past the grace window", elapsed)
	}
	// Signal 0 checks existence without delivering anything; the child must
	// already be reaped.
	if err := syscall.Kill(raw.PID, 0); err == nil {
		t.Errorf("PID %d still alive after the deadline kill", raw.PID)
	}
}

func TestRunCompleted(t *testing.T) {
	r := NewRunner(1<<20, nil, logging.Discard())
	if !r.Available("true") {
		t.Skip("true not in allowed paths")
	}

	raw, err := r.Run(context.Background(), "true")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if raw.State != StateCompleted {
		t.Errorf("State = %s, want %s", raw.State, StateCompleted)
	}
	if raw.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", raw.ExitCode)
	}
}

func TestClassifyStderr(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"sip refusal", "dtrace: system integrity protection is on, some features will not be available", ErrToolPermissionDenied},
		{"not permitted", "dtrace: failed to initialize dtrace: DTrace requires additional privileges", ErrToolPermissionDenied},
		{"root required", "fs_usage: must be run as root", ErrToolPermissionDenied},
		{"pid gone", "sample cannot examine process 4242 (no such process)", ErrProcessNotFound},
		{"lsof pid gone", "lsof: can't find process: 4242", ErrProcessNotFound},
		{"clean", "tracing... hit ctrl-c to stop", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyStderr(tt.stderr)
			if !errors.Is(got, tt.want) && !(got == nil && tt.want == nil) {
				t.Errorf("ClassifyStderr(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}
