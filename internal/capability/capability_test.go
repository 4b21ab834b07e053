package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
)

type fakeRunner struct {
	outputs     map[string]*executor.RawOutput
	errs        map[string]error
	unavailable map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs:     make(map[string]*executor.RawOutput),
		errs:        make(map[string]error),
		unavailable: make(map[string]bool),
	}
}

func (f *fakeRunner) Run(_ context.Context, tool string, _ ...string) (*executor.RawOutput, error) {
	if err, ok := f.errs[tool]; ok {
		return nil, err
	}
	if out, ok := f.outputs[tool]; ok {
		return out, nil
	}
	return nil, errors.New("no output for " + tool)
}

func (f *fakeRunner) Available(tool string) bool { return !f.unavailable[tool] }

func newTestProber(runner CommandRunner, goos string, euid int) *Prober {
	p := NewProber(runner, config.Default(), logging.Discard())
	p.goos = goos
	p.euid = func() int { return euid }
	return p
}

func checkByName(t *testing.T, checks []Check, name string) Check {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from %+v", name, checks)
	return Check{}
}

func TestProbeDarwinRoot(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[executor.ToolCsrutil] = &executor.RawOutput{
		Stdout: "System Integrity Protection status: enabled.\n",
		State:  executor.StateCompleted,
	}
	runner.outputs[executor.ToolDtrace] = &executor.RawOutput{State: executor.StateCompleted}

	checks := newTestProber(runner, "darwin", 0).Probe(context.Background())

	if c := checkByName(t, checks, "platform"); !c.OK {
		t.Errorf("platform check failed on darwin: %+v", c)
	}
	if c := checkByName(t, checks, "sip"); !strings.Contains(c.Detail, "enabled") {
		t.Errorf("sip check = %+v", c)
	}
	if c := checkByName(t, checks, "dtrace:usable"); !c.OK {
		t.Errorf("dtrace check = %+v", c)
	}
	for _, name := range executor.ToolNames() {
		if c := checkByName(t, checks, "tool:"+name); !c.OK {
			t.Errorf("tool check %s failed: %+v", name, c)
		}
	}
	if !AllOK(checks) {
		t.Errorf("AllOK = false for a healthy host: %+v", checks)
	}
}

func TestProbeNonDarwin(t *testing.T) {
	checks := newTestProber(newFakeRunner(), "linux", 501).Probe(context.Background())
	c := checkByName(t, checks, "platform")
	if c.OK {
		t.Errorf("platform check passed on linux: %+v", c)
	}
	if AllOK(checks) {
		t.Error("AllOK = true with a failing platform check")
	}
}

func TestProbeMissingTool(t *testing.T) {
	runner := newFakeRunner()
	runner.unavailable[executor.ToolSample] = true

	checks := newTestProber(runner, "darwin", 501).Probe(context.Background())
	c := checkByName(t, checks, "tool:sample")
	if c.OK {
		t.Errorf("missing tool reported OK: %+v", c)
	}
	if c.Remedy == "" {
		t.Error("missing tool check carries no remedy")
	}
}

func TestProbeNotRootSkipsDtraceProbe(t *testing.T) {
	checks := newTestProber(newFakeRunner(), "darwin", 501).Probe(context.Background())
	for _, c := range checks {
		if c.Name == "dtrace:usable" {
			t.Errorf("dtrace probe attempted without root: %+v", c)
		}
	}
	if c := checkByName(t, checks, "privileges"); !strings.Contains(c.Detail, "not root") {
		t.Errorf("privileges check = %+v", c)
	}
}

func TestProbeDtraceRefused(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[executor.ToolDtrace] = &executor.RawOutput{
		ExitCode: 1,
		Stderr:   "dtrace: system integrity protection is on",
		State:    executor.StateCompleted,
	}

	checks := newTestProber(runner, "darwin", 0).Probe(context.Background())
	c := checkByName(t, checks, "dtrace:usable")
	if c.OK {
		t.Errorf("refused dtrace reported usable: %+v", c)
	}
	if !strings.Contains(c.Detail, "integrity protection") {
		t.Errorf("detail = %q", c.Detail)
	}
}
