// Resource inspection: per-PID lsof descriptor census plus a ps thread
// count. All lsof format assumptions live in this file.
package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/model"
)

// Inspector gathers per-PID descriptor and thread information.
type Inspector struct {
	runner     CommandRunner
	thresholds config.Thresholds
	limits     config.Limits
	log        zerolog.Logger
}

// NewInspector creates an Inspector with the given thresholds and caps.
func NewInspector(runner CommandRunner, cfg config.Config, log zerolog.Logger) *Inspector {
	return &Inspector{
		runner:     runner,
		thresholds: cfg.Thresholds,
		limits:     cfg.Limits,
		log:        log,
	}
}

// Inspect returns the descriptor census for pid. A PID that exited since
// enumeration yields ErrProcessNotFound (expected race, caller skips); a
// permission refusal yields ErrToolPermissionDenied (caller degrades to a
// low-severity diagnosis).
func (ins *Inspector) Inspect(ctx context.Context, pid int) (*model.ResourceSnapshot, error) {
	raw, err := ins.runner.Run(ctx, executor.ToolLsof, "-p", fmt.Sprintf("%d", pid))
	if err != nil {
		return nil, fmt.Errorf("descriptor listing for PID %d: %w", pid, err)
	}
	if raw.ExitCode != 0 {
		if cls := executor.ClassifyStderr(raw.Stderr); cls != nil {
			return nil, fmt.Errorf("descriptor listing for PID %d: %w", pid, cls)
		}
		// lsof exits 1 with empty output when the PID is gone.
		if strings.TrimSpace(raw.Stdout) == "" {
			return nil, fmt.Errorf("%w: PID %d exited during inspection", executor.ErrProcessNotFound, pid)
		}
	}

	snap := parseLsofOutput(raw.Stdout, pid, ins.limits)
	snap.FDLeakSuspected = snap.OpenFileCount > ins.thresholds.FDLeak
	snap.ThreadCount = ins.threadCount(ctx, pid)

	ins.log.Debug().
		Int("pid", pid).
		Int("fds", snap.OpenFileCount).
		Int("threads", snap.ThreadCount).
		Int("watched", snap.WatchedPathCount).
		Msg("resource inspection done")
	return snap, nil
}

// threadCount runs `ps -M -p pid` and counts data rows. Any failure yields
// zero; thread count is informational and never degrades the snapshot.
func (ins *Inspector) threadCount(ctx context.Context, pid int) int {
	raw, err := ins.runner.Run(ctx, executor.ToolPS, "-M", "-p", fmt.Sprintf("%d", pid))
	if err != nil || raw.ExitCode != 0 {
		return 0
	}
	lines := executor.Lines(raw.Stdout)
	if len(lines) <= 1 {
		return 0
	}
	return len(lines) - 1
}

// parseLsofOutput builds a snapshot from raw lsof output. Column layout:
// COMMAND PID USER FD TYPE DEVICE SIZE/OFF NODE NAME. The TYPE column
// classifies each descriptor; watched paths come from fsevents/kqueue
// lines; network connections from IPv4/IPv6 rows.
func parseLsofOutput(raw string, pid int, limits config.Limits) *model.ResourceSnapshot {
	snap := &model.ResourceSnapshot{
		PID:    pid,
		ByType: make(map[string]int),
	}

	watched := make(map[string]bool)
	lines := executor.Lines(raw)
	for i, line := range lines {
		if i == 0 && strings.HasPrefix(line, "COMMAND") {
			continue
		}
		snap.OpenFileCount++

		// fsevents/kqueue rows omit DEVICE/SIZE/NODE, so only the leading
		// columns are guaranteed present.
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		fdType := fields[4]
		snap.ByType[fdType]++
		name := fields[len(fields)-1]

		lower := strings.ToLower(line)
		if strings.Contains(lower, "fsevent") || strings.Contains(lower, "kqueue") {
			if strings.HasPrefix(name, "/") {
				watched[name] = true
			}
		}

		if fdType == "IPv4" || fdType == "IPv6" ||
			strings.Contains(line, "TCP") || strings.Contains(line, "UDP") {
			if len(snap.NetworkConnections) < limits.Connections {
				// NAME holds addr->addr (STATE); rejoin in case of spaces.
				connName := name
				if len(fields) >= 9 {
					connName = strings.Join(fields[8:], " ")
				}
				snap.NetworkConnections = append(snap.NetworkConnections, model.ConnectionInfo{
					Type: fdType,
					Name: connName,
				})
			}
		}
	}

	snap.WatchedPathCount = len(watched)
	for p := range watched {
		if len(snap.WatchedPaths) >= limits.WatchedPaths {
			break
		}
		snap.WatchedPaths = append(snap.WatchedPaths, p)
	}

	return snap
}
