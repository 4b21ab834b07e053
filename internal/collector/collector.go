// Package collector gathers live OS state for the Claude process family:
// the ps process listing, per-PID lsof descriptor censuses, and system
// memory pressure. Each collector is a thin subprocess invocation plus a
// parser pinned to the tool's output format.
package collector

import (
	"context"

	"claude-diagnose/internal/executor"
)

// CommandRunner abstracts external command execution for testability.
// executor.Runner is the production implementation; tests inject fakes
// with canned tool output.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*executor.RawOutput, error)
	Available(tool string) bool
}
