package collector

import (
	"context"
	"fmt"
	"strings"

	"claude-diagnose/internal/executor"
)

// fakeRunner serves canned tool output keyed by tool name, recording every
// invocation. Used across the collector tests to avoid real subprocesses.
type fakeRunner struct {
	outputs     map[string]*executor.RawOutput
	errs        map[string]error
	unavailable map[string]bool
	calls       []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs:     make(map[string]*executor.RawOutput),
		errs:        make(map[string]error),
		unavailable: make(map[string]bool),
	}
}

func (f *fakeRunner) stdout(tool, out string) {
	f.outputs[tool] = &executor.RawOutput{Stdout: out, State: executor.StateCompleted}
}

func (f *fakeRunner) Run(_ context.Context, tool string, args ...string) (*executor.RawOutput, error) {
	f.calls = append(f.calls, tool+" "+strings.Join(args, " "))
	if err, ok := f.errs[tool]; ok {
		return nil, err
	}
	if out, ok := f.outputs[tool]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", executor.ErrToolUnavailable, tool)
}

func (f *fakeRunner) Available(tool string) bool {
	return !f.unavailable[tool]
}
