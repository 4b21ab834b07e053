package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"claude-diagnose/internal/capability"
	"claude-diagnose/internal/collector"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/model"
	"claude-diagnose/internal/orchestrator"
)

// Per-tool deadlines. Sampling and tracing get the requested capture window
// plus the startup grace and a margin for parsing; the rest are quick.
const (
	diagnoseTimeout = 2 * time.Minute
	listTimeout     = 30 * time.Second
	doctorTimeout   = 30 * time.Second
	handlerMargin   = 10 * time.Second
)

func (s *Server) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.NewWithRunner(s.runner, s.tracker, s.cfg, s.version, true, s.log)
}

// handleDiagnose runs the standard pipeline and returns the JSON report.
func (s *Server) handleDiagnose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
	defer cancel()

	args := getArgs(request)
	plan := orchestrator.Plan{
		PID:            intArg(args, "pid", 0),
		Deep:           boolArg(args, "deep"),
		Sample:         boolArg(args, "sample"),
		SampleDuration: durationArg(args, "sample_duration", s.cfg.Durations.Sample),
		Quiet:          true,
	}

	report, err := s.newOrchestrator().Run(ctx, plan)
	if err != nil {
		return errResult(fmt.Sprintf("diagnosis failed: %v", err)), nil
	}
	return jsonResult(report)
}

// handleListProcesses enumerates the family without the rest of the
// pipeline.
func (s *Server) handleListProcesses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	enum := collector.NewEnumerator(s.runner, s.tracker, logging.Component(s.log, "collector"))
	procs, err := enum.List(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("process discovery failed: %v", err)), nil
	}
	if procs == nil {
		procs = []model.ProcessRecord{}
	}
	return jsonResult(procs)
}

// handleSampleProcess samples one PID and returns the sample result only.
func (s *Server) handleSampleProcess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pid := intArg(args, "pid", 0)
	if pid <= 0 {
		return errResult("pid is required and must be positive"), nil
	}
	duration := durationArg(args, "duration", s.cfg.Durations.Sample)

	ctx, cancel := context.WithTimeout(ctx, duration+s.cfg.Durations.SampleGrace+handlerMargin)
	defer cancel()

	report, err := s.newOrchestrator().Run(ctx, orchestrator.Plan{
		PID:            pid,
		Sample:         true,
		SampleDuration: duration,
		Quiet:          true,
	})
	if err != nil {
		return errResult(fmt.Sprintf("sampling failed: %v", err)), nil
	}
	if report.Sample == nil {
		// Degraded into a warning (tool missing, process exited); surface the
		// reason instead of an empty object.
		for _, w := range report.Warnings {
			if w.Subsystem == "sample" {
				return errResult(fmt.Sprintf("sampling failed: %s", w.Message)), nil
			}
		}
		return errResult("sampling produced no data"), nil
	}
	return jsonResult(report.Sample)
}

// handleTraceSyscalls traces one PID or the whole family. Privilege and
// tracer failures are tool errors, mirroring the CLI's exit-1 behavior.
func (s *Server) handleTraceSyscalls(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	duration := durationArg(args, "duration", s.cfg.Durations.Trace)

	ctx, cancel := context.WithTimeout(ctx, duration+s.cfg.Durations.TraceGrace+handlerMargin)
	defer cancel()

	plan := orchestrator.Plan{
		PID:           intArg(args, "pid", 0),
		Trace:         true,
		TraceDuration: duration,
		Quiet:         true,
	}
	switch stringArg(args, "focus", "all") {
	case "io":
		plan.IO = true
	case "network":
		plan.Network = true
	}

	report, err := s.newOrchestrator().Run(ctx, plan)
	if err != nil {
		return errResult(fmt.Sprintf("tracing failed: %v", err)), nil
	}
	if report.Trace == nil {
		return errResult("no processes to trace"), nil
	}
	return jsonResult(report.Trace)
}

// handleDoctor returns the capability probe results.
func (s *Server) handleDoctor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	prober := capability.NewProber(s.runner, s.cfg, logging.Component(s.log, "capability"))
	return jsonResult(prober.Probe(ctx))
}

// getArgs safely extracts the arguments map from a CallToolRequest.
// Returns an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// intArg extracts a numeric argument; JSON numbers arrive as float64.
func intArg(args map[string]interface{}, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	f, ok := val.(float64)
	if !ok {
		return defaultVal
	}
	return int(f)
}

func boolArg(args map[string]interface{}, key string) bool {
	val, ok := args[key]
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

// durationArg extracts a duration given in whole seconds.
func durationArg(args map[string]interface{}, key string, defaultVal time.Duration) time.Duration {
	secs := intArg(args, key, 0)
	if secs <= 0 {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

// jsonResult marshals v as indented JSON text content.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(data)), nil
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true).
// This is returned as a tool-level error, not a transport-level JSON-RPC error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}
