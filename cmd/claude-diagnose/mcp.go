package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/mcp"
)

// newMCPCmd builds the mcp subcommand.
func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start Model Context Protocol (MCP) server",
		Long: `Starts a JSON-RPC server implementing the Model Context Protocol (MCP).
This allows AI agents (e.g., Claude Desktop, Cursor) to diagnose Claude Code
CLI processes interactively.

Communication happens over standard input/output (stdio).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log := logging.Init(flags.verbose)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcp.NewServer(cfg, version, log)
			return srv.Start(ctx)
		},
	}
}
