// Package orchestrator runs the diagnostic pipeline: enumerate, inspect,
// sample, trace, diagnose, summarize. Everything is sequential; each stage
// degrades into warnings where it can and aborts only when the run has
// nothing left to report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/collector"
	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/model"
	"claude-diagnose/internal/observer"
	"claude-diagnose/internal/output"
	"claude-diagnose/internal/sampler"
	"claude-diagnose/internal/tracer"
)

// CommandRunner matches the executor contract; injected so tests run the
// whole pipeline against a fake.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*executor.RawOutput, error)
	Available(tool string) bool
}

// Orchestrator wires the pipeline components together for one invocation.
type Orchestrator struct {
	cfg      config.Config
	version  string
	log      zerolog.Logger
	progress *output.Progress
	tracker  *observer.PIDTracker

	enum    *collector.Enumerator
	inspect *collector.Inspector
	system  *collector.SystemInspector
	sampler *sampler.Sampler
	tracer  *tracer.Tracer
}

// New creates an Orchestrator with the production runner.
func New(cfg config.Config, version string, quiet bool, log zerolog.Logger) *Orchestrator {
	tracker := observer.NewPIDTracker()
	runner := executor.NewRunner(cfg.Limits.MaxOutputBytes, tracker, logging.Component(log, "executor"))
	return NewWithRunner(runner, tracker, cfg, version, quiet, log)
}

// NewWithRunner creates an Orchestrator around an injected runner.
func NewWithRunner(runner CommandRunner, tracker *observer.PIDTracker, cfg config.Config, version string, quiet bool, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		version:  version,
		log:      log,
		progress: output.NewProgress(quiet),
		tracker:  tracker,
		enum:     collector.NewEnumerator(runner, tracker, logging.Component(log, "collector")),
		inspect:  collector.NewInspector(runner, cfg, logging.Component(log, "collector")),
		system:   collector.NewSystemInspector(runner, logging.Component(log, "collector")),
		sampler:  sampler.New(runner, cfg, logging.Component(log, "sampler")),
		tracer:   tracer.New(runner, cfg, logging.Component(log, "tracer")),
	}
}

// Run executes the plan and assembles the report. Ctrl-C cancels the
// context, which kills any in-flight subprocess group; whatever was
// collected so far still lands in the report when the failing stage allows
// degradation.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*model.DiagnosticReport, error) {
	plan.Normalize()
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			o.progress.Step("received %v, stopping (partial report)", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	report := &model.DiagnosticReport{Target: "all"}
	if plan.PID != 0 {
		report.Target = fmt.Sprintf("%d", plan.PID)
	}

	o.progress.Step("discovering Claude processes")
	procs, err := o.enum.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("process discovery: %w", err)
	}
	if plan.PID != 0 {
		rec, found := findPID(procs, plan.PID)
		if !found {
			return nil, fmt.Errorf("%w: PID %d not found or not a Claude process",
				executor.ErrProcessNotFound, plan.PID)
		}
		procs = []model.ProcessRecord{rec}
	}
	report.Processes = procs
	o.progress.Step("found %d process(es)", len(procs))

	var extraDiagnoses []model.Diagnosis
	if plan.Deep {
		extraDiagnoses = o.runDeep(ctx, procs, report)
	}
	report.System = o.system.Inspect(ctx)

	if plan.Sample && len(procs) > 0 {
		o.runSample(ctx, plan, procs, report)
	}

	if plan.Trace {
		if err := o.runTrace(ctx, plan, procs, report); err != nil {
			return nil, err
		}
	}

	if plan.Flamegraph && report.Trace != nil {
		o.progress.Step("rendering flamegraph to %s", plan.FlamegraphPath)
		tree := tracer.BuildCallTree(report.Trace.Stats)
		folded := tracer.FoldedStacks(report.Trace.Stats)
		if err := output.WriteFlamegraph(tree, "claude syscalls", plan.FlamegraphPath, folded); err != nil {
			o.warn(report, "flamegraph", model.WarnPartialCapture, err.Error())
		}
	}

	report.Diagnoses = append(model.Diagnose(report, o.cfg.Thresholds), extraDiagnoses...)
	report.Summary = model.BuildSummary(report)
	o.fillMetadata(ctx, report, start)

	o.log.Debug().
		Int("processes", len(report.Processes)).
		Int("diagnoses", len(report.Diagnoses)).
		Str("status", report.Summary.Status).
		Msg("pipeline done")
	return report, nil
}

// runDeep inspects descriptors per PID. A PID that exited mid-run is an
// expected race; a permission refusal degrades to a low diagnosis; a missing
// lsof skips the whole section.
func (o *Orchestrator) runDeep(ctx context.Context, procs []model.ProcessRecord, report *model.DiagnosticReport) []model.Diagnosis {
	var diags []model.Diagnosis
	for _, p := range procs {
		o.progress.Step("inspecting resources of PID %d", p.PID)
		snap, err := o.inspect.Inspect(ctx, p.PID)
		switch {
		case err == nil:
			report.Resources = append(report.Resources, *snap)
		case errors.Is(err, executor.ErrProcessNotFound):
			o.warn(report, "resources", model.WarnProcessNotFound,
				fmt.Sprintf("PID %d exited during inspection", p.PID))
		case errors.Is(err, executor.ErrToolPermissionDenied):
			diags = append(diags, model.PermissionDiagnosis(p.PID))
			o.warn(report, "resources", model.WarnPermissionDenied,
				fmt.Sprintf("descriptor inspection refused for PID %d", p.PID))
		case errors.Is(err, executor.ErrToolUnavailable):
			o.warn(report, "resources", model.WarnToolUnavailable, err.Error())
			return diags
		default:
			o.warn(report, "resources", model.WarnParseErrors, err.Error())
		}
	}
	return diags
}

// runSample samples the requested PID, or the busiest family member.
func (o *Orchestrator) runSample(ctx context.Context, plan Plan, procs []model.ProcessRecord, report *model.DiagnosticReport) {
	target := plan.PID
	if target == 0 {
		target = busiestPID(procs)
	}

	o.progress.Step("sampling PID %d for %s", target, plan.SampleDuration)
	res, err := o.sampler.Run(ctx, target, plan.SampleDuration)
	switch {
	case err == nil:
		report.Sample = res
		if res.Partial {
			o.warn(report, "sample", model.WarnPartialCapture,
				fmt.Sprintf("sampling of PID %d ended early, results are partial", target))
		}
	case errors.Is(err, executor.ErrToolUnavailable):
		o.warn(report, "sample", model.WarnToolUnavailable, err.Error())
	case errors.Is(err, executor.ErrProcessNotFound):
		o.warn(report, "sample", model.WarnProcessNotFound, err.Error())
	case errors.Is(err, executor.ErrParse):
		o.warn(report, "sample", model.WarnParseErrors, err.Error())
	default:
		o.warn(report, "sample", model.WarnPartialCapture, err.Error())
	}
}

// runTrace traces the requested PID or the whole family in one session.
// Tracing failures are fatal: the user asked for data only a tracer can
// produce.
func (o *Orchestrator) runTrace(ctx context.Context, plan Plan, procs []model.ProcessRecord, report *model.DiagnosticReport) error {
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	if len(pids) == 0 {
		o.warn(report, "trace", model.WarnProcessNotFound, "no processes to trace")
		return nil
	}

	o.progress.Step("tracing %d PID(s) for %s", len(pids), plan.TraceDuration)
	res, err := o.tracer.Trace(ctx, pids, plan.TraceDuration, plan.Focus())
	if err != nil {
		return fmt.Errorf("syscall tracing: %w", err)
	}

	report.Trace = res
	if res.FallbackReason != "" {
		o.warn(report, "trace", model.WarnFallback, res.FallbackReason)
	}
	if res.Partial {
		o.warn(report, "trace", model.WarnPartialCapture, "trace capture ended early")
	}
	if res.EventCount == 0 && res.ParseSkipped > 0 {
		o.warn(report, "trace", model.WarnParseErrors,
			fmt.Sprintf("no events parsed, %d lines skipped", res.ParseSkipped))
	}
	return nil
}

func (o *Orchestrator) fillMetadata(ctx context.Context, report *model.DiagnosticReport, start time.Time) {
	hostname, kernel, platform := collector.HostInfo(ctx)
	overhead := o.tracker.Overhead()
	report.Metadata = model.Metadata{
		Tool:          model.ToolName,
		Version:       o.version,
		SchemaVersion: model.SchemaVersion,
		Generated:     time.Now().UTC().Format(time.RFC3339),
		Hostname:      hostname,
		OSVersion:     kernel,
		Platform:      platform,
		DurationMs:    time.Since(start).Milliseconds(),
		Overhead: &model.Overhead{
			CPUUserMs:    overhead.CPUUserMs,
			CPUSystemMs:  overhead.CPUSystemMs,
			MaxRSSBytes:  overhead.MaxRSSBytes,
			Subprocesses: overhead.Subprocesses,
		},
	}
}

func (o *Orchestrator) warn(report *model.DiagnosticReport, subsystem, code, msg string) {
	o.log.Debug().Str("subsystem", subsystem).Str("code", code).Msg(msg)
	report.Warnings = append(report.Warnings, model.Warning{
		Subsystem: subsystem,
		Code:      code,
		Message:   msg,
	})
}

func findPID(procs []model.ProcessRecord, pid int) (model.ProcessRecord, bool) {
	for _, p := range procs {
		if p.PID == pid {
			return p, true
		}
	}
	return model.ProcessRecord{}, false
}

// busiestPID picks the sampling target when none was requested: the family
// member with the highest CPU share, PID order breaking ties.
func busiestPID(procs []model.ProcessRecord) int {
	sorted := append([]model.ProcessRecord(nil), procs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CPUPercent > sorted[j].CPUPercent
	})
	return sorted[0].PID
}
