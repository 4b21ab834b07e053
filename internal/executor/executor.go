// Package executor runs the external macOS diagnostic tools (ps, lsof,
// sample, dtrace, fs_usage, ...) with security checks, bounded output, and
// enforced deadlines. Some of these tools run until killed, so the deadline
// lives here, not in the tool.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/observer"
)

// RunState tracks one external invocation through its lifecycle.
type RunState int

const (
	StateNotStarted RunState = iota
	StateRunning
	StateCompleted
	StateTimedOut
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// RawOutput captures the stdout/stderr from an external tool.
type RawOutput struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool     // true if output was capped
	PID       int      // OS process ID of the spawned tool
	State     RunState // terminal state of the invocation
}

// CommandRunner abstracts external command execution for testability.
// Runner is the production implementation; tests inject fakes.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*RawOutput, error)
	Available(tool string) bool
}

// Runner executes macOS diagnostic tools with security controls.
type Runner struct {
	security       *SecurityChecker
	maxOutputBytes int64
	tracker        *observer.PIDTracker // may be nil
	log            zerolog.Logger
}

// NewRunner creates a Runner. The tracker, when non-nil, records every
// spawned child PID so the enumerator can exclude the tool's own
// subprocesses and the interrupt handler can verify nothing was left behind.
func NewRunner(maxOutputBytes int64, tracker *observer.PIDTracker, log zerolog.Logger) *Runner {
	return &Runner{
		security:       NewSecurityChecker(),
		maxOutputBytes: maxOutputBytes,
		tracker:        tracker,
		log:            log,
	}
}

// gracefulShutdownTimeout is how long we wait after SIGINT before SIGKILL.
const gracefulShutdownTimeout = 3 * time.Second

// Run executes a tool with security verification, output capping, and an
// explicit termination sequence. It uses exec.Command (not CommandContext)
// so we control the signals: on context cancellation or deadline, SIGINT
// goes to the whole process group first so tracers like dtrace can detach
// from the target and flush buffered output, then SIGKILL after a grace
// period. Partial output survives either way; the terminal state records
// whether the tool completed, timed out, or failed to run at all.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) (*RawOutput, error) {
	start := time.Now()

	binPath, err := r.security.ResolveBinary(tool)
	if err != nil {
		return nil, err
	}
	if err := r.security.VerifyBinary(binPath); err != nil {
		return nil, fmt.Errorf("binary verification for %q: %w", binPath, err)
	}

	// Setpgid puts the tool in its own process group so signals reach any
	// children it forks (dtrace spawns helpers).
	cmd := exec.Command(binPath, args...)
	cmd.Env = r.security.SanitizeEnv()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &LimitedWriter{W: &stdout, N: r.maxOutputBytes}
	cmd.Stderr = &stderr

	r.log.Debug().Str("tool", tool).Strs("args", args).Msg("spawning")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", tool, err)
	}

	raw := &RawOutput{
		PID:   cmd.Process.Pid,
		State: StateRunning,
	}
	if r.tracker != nil {
		r.tracker.Add(raw.PID, tool)
		defer r.tracker.Remove(raw.PID)
	}

	// done receives the error from cmd.Wait() when the child exits.
	// exited is closed once done has been written, allowing the signal
	// goroutine to observe process exit without consuming the error value.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		done <- err
		close(exited)
	}()

	// Watch for context cancellation: SIGINT -> grace -> SIGKILL.
	go func() {
		select {
		case <-ctx.Done():
			pgid := cmd.Process.Pid
			if err := syscall.Kill(-pgid, syscall.SIGINT); err != nil {
				_ = cmd.Process.Signal(syscall.SIGINT)
			}
			select {
			case <-exited:
				// Detached cleanly after SIGINT.
			case <-time.After(gracefulShutdownTimeout):
				_ = syscall.Kill(-pgid, syscall.SIGKILL)
				_ = cmd.Process.Signal(os.Kill)
			}
		case <-exited:
		}
	}()

	waitErr := <-done

	raw.Stdout = stdout.String()
	raw.Stderr = stderr.String()
	raw.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		raw.ExitCode = cmd.ProcessState.ExitCode()
	}
	if lw, ok := cmd.Stdout.(*LimitedWriter); ok && lw.Truncated {
		raw.Truncated = true
	}

	// Deadline/cancel takes priority; whatever output the tool managed to
	// flush before the kill is still returned.
	if ctx.Err() != nil {
		raw.State = StateTimedOut
		r.log.Debug().Str("tool", tool).Dur("ran", raw.Duration).Msg("killed at deadline, keeping partial output")
		return raw, nil
	}

	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); ok {
			// Non-zero exit is still a completed invocation; the caller
			// inspects ExitCode and Stderr.
			raw.State = StateCompleted
			return raw, nil
		}
		raw.State = StateFailed
		return raw, fmt.Errorf("execute %s: %w", tool, waitErr)
	}

	raw.State = StateCompleted
	return raw, nil
}

// Available checks if a tool binary exists in allowed paths.
func (r *Runner) Available(tool string) bool {
	_, err := r.security.ResolveBinary(tool)
	return err == nil
}

// LimitedWriter wraps a writer with a byte limit.
type LimitedWriter struct {
	W         *bytes.Buffer
	N         int64
	written   int64
	Truncated bool
}

func (lw *LimitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.N {
		lw.Truncated = true
		// Return len(p) to satisfy exec.Cmd which expects all bytes consumed.
		// The Truncated flag signals that data was discarded.
		return len(p), nil
	}
	remaining := lw.N - lw.written
	if int64(len(p)) > remaining {
		n, err := lw.W.Write(p[:remaining])
		lw.written += int64(n)
		lw.Truncated = true
		return len(p), err
	}
	n, err := lw.W.Write(p)
	lw.written += int64(n)
	return n, err
}
