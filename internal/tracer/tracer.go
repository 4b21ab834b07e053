// Package tracer captures per-syscall timing for a set of PIDs. The
// preferred tool is dtrace; on SIP-protected systems where dtrace refuses to
// attach, fs_usage serves as a coarser fallback. Tool selection is an
// explicit state machine recorded on the result.
package tracer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/model"
)

// CommandRunner is the subprocess contract the tracer needs.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*executor.RawOutput, error)
	Available(tool string) bool
}

// Selection states for one tracing session.
type State int

const (
	StateTryDynamicTracer State = iota
	StateFallbackFsUsage
	StateTracing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateTryDynamicTracer:
		return "try_dynamic_tracer"
	case StateFallbackFsUsage:
		return "fallback_fs_usage"
	case StateTracing:
		return "tracing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Tracer drives one tracing session.
type Tracer struct {
	runner CommandRunner
	cfg    config.Config
	log    zerolog.Logger
	euid   func() int // os.Geteuid, swapped in tests
}

// New creates a Tracer.
func New(runner CommandRunner, cfg config.Config, log zerolog.Logger) *Tracer {
	return &Tracer{runner: runner, cfg: cfg, log: log, euid: os.Geteuid}
}

// Trace captures syscalls for the given PIDs over duration. Both tracers
// unusable is a hard error; everything softer (dtrace refused by SIP, a
// timeout with partial output) degrades into the result. Root is required
// before any tracer starts.
func (t *Tracer) Trace(ctx context.Context, pids []int, duration time.Duration, focus string) (*model.TraceResult, error) {
	if len(pids) == 0 {
		return nil, fmt.Errorf("%w: no PIDs to trace", executor.ErrInvalidArgument)
	}
	if t.euid() != 0 {
		return nil, fmt.Errorf("%w: syscall tracing requires root (sudo)", executor.ErrToolPermissionDenied)
	}

	secs := int(duration / time.Second)
	if secs < 1 {
		secs = 1
	}

	state := StateTryDynamicTracer
	t.log.Debug().Ints("pids", pids).Int("seconds", secs).Str("focus", focus).
		Str("state", state.String()).Msg("starting trace session")

	result := &model.TraceResult{
		PIDs:            pids,
		DurationSeconds: secs,
		Focus:           focus,
	}

	fallbackReason, err := t.tryDtrace(ctx, pids, secs, focus, result)
	if err != nil {
		return nil, err
	}
	if fallbackReason == "" {
		t.log.Debug().Str("state", StateDone.String()).
			Int64("events", result.EventCount).Msg("trace session done")
		return result, nil
	}

	state = StateFallbackFsUsage
	result.FallbackReason = fallbackReason
	t.log.Debug().Str("state", state.String()).Str("reason", fallbackReason).
		Msg("dynamic tracer unusable, falling back")

	if err := t.runFsUsage(ctx, pids, duration, result); err != nil {
		t.log.Debug().Str("state", StateFailed.String()).Err(err).Msg("trace session failed")
		return nil, fmt.Errorf("both tracers failed (%s; %w)", fallbackReason, err)
	}

	t.log.Debug().Str("state", StateDone.String()).
		Int64("events", result.EventCount).Msg("trace session done")
	return result, nil
}

// tryDtrace preflights and, if usable, runs the dtrace session, filling the
// result. A non-empty fallbackReason means fs_usage should take over; a
// non-nil error aborts the whole session.
func (t *Tracer) tryDtrace(ctx context.Context, pids []int, secs int, focus string, result *model.TraceResult) (fallbackReason string, err error) {
	if !t.runner.Available(executor.ToolDtrace) {
		return "dtrace binary not found", nil
	}

	// Cheap probe before committing to a full session: SIP refusals and
	// privilege problems surface here within the quick-command window.
	probeCtx, cancel := context.WithTimeout(ctx, t.cfg.Durations.QuickCommand)
	probe, probeErr := t.runner.Run(probeCtx, executor.ToolDtrace, "-q", "-n", "BEGIN{exit(0);}")
	cancel()
	if probeErr != nil {
		return fmt.Sprintf("dtrace preflight failed: %v", probeErr), nil
	}
	if probe.ExitCode != 0 || probe.State != executor.StateCompleted {
		reason := strings.TrimSpace(probe.Stderr)
		if reason == "" {
			reason = fmt.Sprintf("dtrace preflight exited %d", probe.ExitCode)
		}
		return fmt.Sprintf("dtrace refused: %s", reason), nil
	}

	program := buildDtraceProgram(pids, secs, focus)
	runCtx, cancel := context.WithTimeout(ctx,
		time.Duration(secs)*time.Second+t.cfg.Durations.TraceGrace)
	defer cancel()

	t.log.Debug().Str("state", StateTracing.String()).Msg("dtrace session running")
	raw, runErr := t.runner.Run(runCtx, executor.ToolDtrace, "-q", "-n", program)
	if runErr != nil {
		return fmt.Sprintf("dtrace session failed: %v", runErr), nil
	}
	if raw.State == executor.StateFailed {
		return fmt.Sprintf("dtrace session failed: %s", strings.TrimSpace(raw.Stderr)), nil
	}
	if raw.ExitCode != 0 && strings.TrimSpace(raw.Stdout) == "" {
		if cls := executor.ClassifyStderr(raw.Stderr); cls != nil {
			return fmt.Sprintf("dtrace refused: %s", strings.TrimSpace(raw.Stderr)), nil
		}
		return fmt.Sprintf("dtrace exited %d with no output", raw.ExitCode), nil
	}

	acc := NewAccumulator(focus, t.cfg.Limits)
	parseDtraceOutput(raw.Stdout, acc)
	fillResult(result, model.TraceToolDtrace, acc)
	// The tick probe normally ends the session; hitting our deadline means
	// the capture was cut short.
	result.Partial = raw.State == executor.StateTimedOut || raw.Truncated
	return "", nil
}

// runFsUsage runs the fallback tracer. fs_usage never exits on its own, so
// the context deadline at the capture duration is the intended stop, not a
// failure.
func (t *Tracer) runFsUsage(ctx context.Context, pids []int, duration time.Duration, result *model.TraceResult) error {
	if !t.runner.Available(executor.ToolFsUsage) {
		return fmt.Errorf("%w: fs_usage binary not found", executor.ErrToolUnavailable)
	}

	args := []string{"-w", "-f", "filesys"}
	for _, pid := range pids {
		args = append(args, strconv.Itoa(pid))
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	t.log.Debug().Str("state", StateTracing.String()).Msg("fs_usage session running")
	raw, err := t.runner.Run(runCtx, executor.ToolFsUsage, args...)
	if err != nil {
		return fmt.Errorf("fs_usage: %w", err)
	}
	if raw.State == executor.StateFailed ||
		(raw.State == executor.StateCompleted && raw.ExitCode != 0 && strings.TrimSpace(raw.Stdout) == "") {
		if cls := executor.ClassifyStderr(raw.Stderr); cls != nil {
			return fmt.Errorf("fs_usage: %w", cls)
		}
		return fmt.Errorf("fs_usage exited %d: %s", raw.ExitCode, strings.TrimSpace(raw.Stderr))
	}

	singlePID := 0
	if len(pids) == 1 {
		singlePID = pids[0]
	}
	acc := NewAccumulator(result.Focus, t.cfg.Limits)
	parseFsUsageOutput(raw.Stdout, singlePID, acc)
	fillResult(result, model.TraceToolFsUsage, acc)
	result.Partial = raw.Truncated
	return nil
}

func fillResult(result *model.TraceResult, tool string, acc *Accumulator) {
	result.Tool = tool
	result.Stats = acc.Stats()
	result.IOOps, result.NetOps = acc.Ops()
	result.EventCount = acc.Events()
	result.ParseSkipped = acc.Skipped()
}
