package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/model"
	"claude-diagnose/internal/observer"
)

const enumFixture = `  PID  PPID %CPU %MEM    RSS      VSZ STAT     ELAPSED COMMAND
  100     1 92.5  1.5 204800 40000000 R       01:02:03 /usr/local/bin/claude --resume
  200     1  0.1  0.2   1024  2000000 S          05:10 /usr/sbin/syslogd
  300   100 12.0  0.8  51200 30000000 S          42:00 node /Users/dev/.claude/local/node_modules/@anthropic-ai/claude-code/cli.js
`

const lsofFixture = `COMMAND   PID USER   FD     TYPE             DEVICE  SIZE/OFF     NODE NAME
claude    100 dev  txt      REG               1,13   1048576 12345678 /usr/local/bin/claude
claude    100 dev    3u     REG               1,13       512 12345679 /Users/dev/.claude/history.jsonl
claude    100 dev    4u   KQUEUE                                      count=2, state=0x8
claude    100 dev    5r  FSEVENT                                      /Users/dev/project
claude    100 dev    6u     IPv4 0x1122334455667788       0t0      TCP 192.168.1.5:52000->140.82.112.22:443 (ESTABLISHED)
`

const threadsFixture = `USER  PID   TT  %CPU STAT PRI     STIME     UTIME COMMAND
dev   100 s000   0.0 S    31T  0:00.10   0:00.20 claude
      100        0.0 S    31T  0:00.01   0:00.02
`

// fakeRunner serves canned responses per tool, FIFO when several are queued.
type fakeRunner struct {
	responses map[string][]response
	missing   map[string]bool
	calls     []string
}

type response struct {
	out *executor.RawOutput
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string][]response),
		missing:   make(map[string]bool),
	}
}

func (f *fakeRunner) enqueue(tool string, out *executor.RawOutput, err error) {
	f.responses[tool] = append(f.responses[tool], response{out, err})
}

func (f *fakeRunner) Run(_ context.Context, tool string, args ...string) (*executor.RawOutput, error) {
	f.calls = append(f.calls, tool)
	if f.missing[tool] {
		return nil, fmt.Errorf("%w: %s not found", executor.ErrToolUnavailable, tool)
	}
	queue := f.responses[tool]
	if len(queue) == 0 {
		return nil, fmt.Errorf("unexpected call to %s %v", tool, args)
	}
	f.responses[tool] = queue[1:]
	return queue[0].out, queue[0].err
}

func (f *fakeRunner) Available(tool string) bool { return !f.missing[tool] }

func completed(stdout string) *executor.RawOutput {
	return &executor.RawOutput{Stdout: stdout, State: executor.StateCompleted}
}

func newTestOrchestrator(runner CommandRunner) *Orchestrator {
	return NewWithRunner(runner, observer.NewPIDTracker(), config.Default(),
		"test", true, logging.Discard())
}

func TestRunBasic(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)
	runner.enqueue(executor.ToolMemoryPressure,
		completed("The system has 6000 pages free.\nSystem-wide memory free percentage: 61%\nnormal\n"), nil)

	report, err := newTestOrchestrator(runner).Run(context.Background(), Plan{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Target != "all" {
		t.Errorf("Target = %q", report.Target)
	}
	if len(report.Processes) != 2 {
		t.Fatalf("Processes = %+v, want PIDs 100 and 300", report.Processes)
	}
	if report.Processes[0].PID != 100 || report.Processes[1].PID != 300 {
		t.Errorf("PIDs = %d, %d", report.Processes[0].PID, report.Processes[1].PID)
	}
	if report.System == nil || report.System.Memory.PressureLevel != model.PressureNormal {
		t.Errorf("System = %+v", report.System)
	}
	if report.Summary.ProcessCount != 2 {
		t.Errorf("Summary.ProcessCount = %d", report.Summary.ProcessCount)
	}
	if report.Metadata.Tool != model.ToolName || report.Metadata.SchemaVersion != model.SchemaVersion {
		t.Errorf("Metadata identity: %+v", report.Metadata)
	}
	if report.Metadata.Overhead == nil {
		t.Error("Metadata.Overhead missing")
	}
	if report.Metadata.Generated == "" || report.Metadata.DurationMs < 0 {
		t.Errorf("Metadata timing: %+v", report.Metadata)
	}
}

func TestRunPIDFilter(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)
	runner.enqueue(executor.ToolMemoryPressure, completed("normal"), nil)

	report, err := newTestOrchestrator(runner).Run(context.Background(), Plan{PID: 300})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Target != "300" {
		t.Errorf("Target = %q", report.Target)
	}
	if len(report.Processes) != 1 || report.Processes[0].PID != 300 {
		t.Errorf("Processes = %+v", report.Processes)
	}
}

func TestRunPIDNotFound(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)

	// PID 200 is in the table but not a Claude process.
	_, err := newTestOrchestrator(runner).Run(context.Background(), Plan{PID: 200})
	if !errors.Is(err, executor.ErrProcessNotFound) {
		t.Errorf("err = %v, want ErrProcessNotFound", err)
	}
}

func TestRunDiscoveryFatal(t *testing.T) {
	runner := newFakeRunner()
	runner.missing[executor.ToolPS] = true

	_, err := newTestOrchestrator(runner).Run(context.Background(), Plan{})
	if !errors.Is(err, executor.ErrToolUnavailable) {
		t.Errorf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestRunInvalidPlan(t *testing.T) {
	_, err := newTestOrchestrator(newFakeRunner()).Run(context.Background(), Plan{PID: -5})
	if !errors.Is(err, executor.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRunDeepDegradations(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)
	// PID 100: full census. PID 300: exited between ps and lsof.
	runner.enqueue(executor.ToolLsof, completed(lsofFixture), nil)
	runner.enqueue(executor.ToolPS, completed(threadsFixture), nil)
	runner.enqueue(executor.ToolLsof, &executor.RawOutput{
		ExitCode: 1, State: executor.StateCompleted,
	}, nil)
	runner.enqueue(executor.ToolMemoryPressure, completed("normal"), nil)

	report, err := newTestOrchestrator(runner).Run(context.Background(), Plan{Deep: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Resources) != 1 || report.Resources[0].PID != 100 {
		t.Fatalf("Resources = %+v", report.Resources)
	}
	if report.Resources[0].OpenFileCount != 5 {
		t.Errorf("OpenFileCount = %d, want 5", report.Resources[0].OpenFileCount)
	}
	if !hasWarning(report, "resources", model.WarnProcessNotFound) {
		t.Errorf("missing process_not_found warning: %+v", report.Warnings)
	}
}

func TestRunDeepPermissionDenied(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)
	runner.enqueue(executor.ToolLsof, &executor.RawOutput{
		ExitCode: 1,
		Stderr:   "lsof: attempt to read process 100 failed: Operation not permitted",
		State:    executor.StateCompleted,
	}, nil)

	report, err := newTestOrchestrator(runner).Run(context.Background(), Plan{PID: 100, Deep: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasWarning(report, "resources", model.WarnPermissionDenied) {
		t.Errorf("missing permission_denied warning: %+v", report.Warnings)
	}

	found := false
	for _, d := range report.Diagnoses {
		if d.PID == 100 && d.Severity == model.SeverityLow {
			found = true
		}
	}
	if !found {
		t.Errorf("permission diagnosis not appended: %+v", report.Diagnoses)
	}
	// lsof unusable once means System still gets collected via the runner.
	if report.System == nil {
		t.Error("System missing")
	}
}

func TestRunSampleToolMissing(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)
	runner.enqueue(executor.ToolLsof, completed(lsofFixture), nil)
	runner.enqueue(executor.ToolPS, completed(threadsFixture), nil)
	runner.missing[executor.ToolSample] = true

	report, err := newTestOrchestrator(runner).Run(context.Background(),
		Plan{PID: 100, Sample: true, SampleDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Sample != nil {
		t.Errorf("Sample = %+v, want nil", report.Sample)
	}
	if !hasWarning(report, "sample", model.WarnToolUnavailable) {
		t.Errorf("missing tool_unavailable warning: %+v", report.Warnings)
	}
}

func TestRunSamplePicksBusiestPID(t *testing.T) {
	// No --pid: the 92.5% CPU parent at PID 100 is the sampling target, not
	// the 12% child.
	samplePath := "/tmp/claude_sample_100.txt"
	fixture := `Sampling completed. 100 samples taken over 3 threads.
Call graph:
    100 Thread_1
      100 uv_run  (in node) + 1 [0x1]
Total number in stack (recursive counted multiple, when >=5):
`
	if err := os.WriteFile(samplePath, []byte(fixture), 0o644); err != nil {
		t.Fatalf("fixture write: %v", err)
	}
	defer os.Remove(samplePath)

	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed(enumFixture), nil)
	runner.enqueue(executor.ToolLsof, completed(lsofFixture), nil)
	runner.enqueue(executor.ToolPS, completed(threadsFixture), nil)
	runner.enqueue(executor.ToolLsof, completed(lsofFixture), nil)
	runner.enqueue(executor.ToolPS, completed(threadsFixture), nil)
	runner.enqueue(executor.ToolSample, completed(""), nil)
	runner.enqueue(executor.ToolMemoryPressure, completed("normal"), nil)

	report, err := newTestOrchestrator(runner).Run(context.Background(),
		Plan{Sample: true, SampleDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Sample == nil {
		t.Fatalf("Sample missing; warnings: %+v", report.Warnings)
	}
	if report.Sample.PID != 100 {
		t.Errorf("sampled PID %d, want 100 (highest CPU)", report.Sample.PID)
	}
	if report.Sample.TotalSamples != 100 {
		t.Errorf("TotalSamples = %d", report.Sample.TotalSamples)
	}
}

func TestRunTraceNoProcesses(t *testing.T) {
	runner := newFakeRunner()
	runner.enqueue(executor.ToolPS, completed("  PID  PPID %CPU %MEM    RSS      VSZ STAT     ELAPSED COMMAND\n"), nil)
	runner.enqueue(executor.ToolMemoryPressure, completed("normal"), nil)

	report, err := newTestOrchestrator(runner).Run(context.Background(),
		Plan{Trace: true, TraceDuration: 10 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Trace != nil {
		t.Errorf("Trace = %+v, want nil", report.Trace)
	}
	if !hasWarning(report, "trace", model.WarnProcessNotFound) {
		t.Errorf("missing trace warning: %+v", report.Warnings)
	}
}

func hasWarning(r *model.DiagnosticReport, subsystem, code string) bool {
	for _, w := range r.Warnings {
		if w.Subsystem == subsystem && w.Code == code {
			return true
		}
	}
	return false
}
