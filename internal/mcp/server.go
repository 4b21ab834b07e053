// Package mcp exposes the diagnostic pipeline as MCP tools over stdio, so
// agents and UI frontends can run diagnoses without shelling out to the CLI.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/model"
	"claude-diagnose/internal/observer"
	"claude-diagnose/internal/orchestrator"
)

// Server wraps the MCP server instance. One runner and PID tracker are
// shared across tool calls so the overhead accounting covers the whole
// session.
type Server struct {
	mcpServer *server.MCPServer
	cfg       config.Config
	version   string
	log       zerolog.Logger
	runner    orchestrator.CommandRunner
	tracker   *observer.PIDTracker
}

// NewServer creates a new MCP server with registered tools.
func NewServer(cfg config.Config, version string, log zerolog.Logger) *Server {
	tracker := observer.NewPIDTracker()
	runner := executor.NewRunner(cfg.Limits.MaxOutputBytes, tracker, logging.Component(log, "executor"))

	s := &Server{
		mcpServer: server.NewMCPServer(model.ToolName, version, server.WithLogging()),
		cfg:       cfg,
		version:   version,
		log:       log,
		runner:    runner,
		tracker:   tracker,
	}
	s.registerTools()
	return s
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools adds all supported tools to the server.
func (s *Server) registerTools() {
	diagnoseTool := mcp.NewTool("diagnose",
		mcp.WithDescription("Run a diagnostic pass over Claude Code CLI processes: discovery, resource inspection, optional stack sampling, declarative diagnosis. Returns the full JSON report. No root required."),
		mcp.WithNumber("pid",
			mcp.Description("Target a single PID; omit to cover the whole process family"),
		),
		mcp.WithBoolean("deep",
			mcp.Description("Include per-PID descriptor inspection (lsof) and memory pressure"),
		),
		mcp.WithBoolean("sample",
			mcp.Description("Include stack sampling of the busiest process (implies deep)"),
		),
		mcp.WithNumber("sample_duration",
			mcp.Description("Sampling duration in seconds (default 5)"),
		),
	)
	s.mcpServer.AddTool(diagnoseTool, s.handleDiagnose)

	listTool := mcp.NewTool("list_processes",
		mcp.WithDescription("List Claude Code CLI family processes with CPU, memory, and uptime. Fast (~1s)."),
	)
	s.mcpServer.AddTool(listTool, s.handleListProcesses)

	sampleTool := mcp.NewTool("sample_process",
		mcp.WithDescription("Capture call stacks of one Claude process via the macOS sample tool and return hot functions and detected patterns (event-loop spin, GC pressure, FSEvents storm)."),
		mcp.WithNumber("pid",
			mcp.Required(),
			mcp.Description("PID to sample (must be a Claude family member)"),
		),
		mcp.WithNumber("duration",
			mcp.Description("Sampling duration in seconds (default 5)"),
		),
	)
	s.mcpServer.AddTool(sampleTool, s.handleSampleProcess)

	traceTool := mcp.NewTool("trace_syscalls",
		mcp.WithDescription("Trace syscalls of Claude processes via dtrace (fs_usage fallback under SIP). Requires root; refusals come back as tool errors."),
		mcp.WithNumber("pid",
			mcp.Description("Target a single PID; omit to trace the whole family in one session"),
		),
		mcp.WithNumber("duration",
			mcp.Description("Trace duration in seconds (default 10)"),
		),
		mcp.WithString("focus",
			mcp.Description("Restrict the capture to one syscall category"),
			mcp.DefaultString("all"),
			mcp.Enum("all", "io", "network"),
		),
	)
	s.mcpServer.AddTool(traceTool, s.handleTraceSyscalls)

	doctorTool := mcp.NewTool("doctor",
		mcp.WithDescription("Probe host capabilities: platform, diagnostic tool availability, privileges, SIP status. Use before trace_syscalls to learn what will work."),
	)
	s.mcpServer.AddTool(doctorTool, s.handleDoctor)
}
