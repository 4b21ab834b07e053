// claude-diagnose — deep diagnostics for Claude Code CLI processes on macOS.
//
// Wraps the platform's observation tools (ps, lsof, sample, dtrace,
// fs_usage) and turns their output into a structured diagnostic report for
// humans, scripts, and AI agents.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"claude-diagnose/internal/capability"
	"claude-diagnose/internal/config"
	diffpkg "claude-diagnose/internal/diff"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/model"
	"claude-diagnose/internal/observer"
	"claude-diagnose/internal/orchestrator"
	"claude-diagnose/internal/output"
)

var version = "0.1.0"

const defaultFlamegraphPath = "claude-flamegraph.svg"

// rootFlags holds the raw flag values before they become a validated plan.
type rootFlags struct {
	pid            string
	deep           bool
	sample         bool
	sampleDuration int
	dtrace         bool
	duration       int
	io             bool
	network        bool
	flamegraph     bool
	outPath        string
	jsonOut        bool
	quiet          bool
	verbose        bool
	configPath     string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps errors to exit codes: 0 report produced,
// 1 required subsystem failed, 2 invalid arguments.
func run(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, executor.ErrInvalidArgument) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "claude-diagnose",
		Short: "Deep diagnostics for Claude Code CLI processes",
		Long: `claude-diagnose — deep diagnostics for Claude Code CLI processes on macOS.

Discovers the Claude process family, inspects descriptors and watched paths,
samples call stacks, traces syscalls (dtrace, with fs_usage fallback under
SIP), and diagnoses common failure modes: fd leaks, FSEvents storms,
event-loop spin, GC pressure. Reports render for terminals or as JSON.

Resource inspection and sampling need no privileges; syscall tracing
(-D, --flamegraph) requires root.`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd.Context(), flags)
		},
	}

	rootCmd.Flags().StringVar(&flags.pid, "pid", "", "Target a single PID (must be a Claude process)")
	rootCmd.Flags().BoolVarP(&flags.deep, "deep", "d", false, "Inspect descriptors, watched paths, and connections")
	rootCmd.Flags().BoolVarP(&flags.sample, "sample", "s", false, "Sample call stacks of the busiest process (implies --deep)")
	rootCmd.Flags().IntVar(&flags.sampleDuration, "sample-duration", 0, "Sampling duration in seconds (default 5)")
	rootCmd.Flags().BoolVarP(&flags.dtrace, "dtrace", "D", false, "Trace syscalls (requires root)")
	rootCmd.Flags().IntVar(&flags.duration, "duration", 0, "Trace duration in seconds (default 10)")
	rootCmd.Flags().BoolVar(&flags.io, "io", false, "Restrict tracing to file I/O syscalls")
	rootCmd.Flags().BoolVar(&flags.network, "network", false, "Restrict tracing to network syscalls")
	rootCmd.Flags().BoolVar(&flags.flamegraph, "flamegraph", false, "Render a syscall flamegraph SVG (implies --dtrace)")
	rootCmd.Flags().StringVarP(&flags.outPath, "output", "o", "", "Flamegraph output path (default "+defaultFlamegraphPath+")")
	rootCmd.Flags().BoolVarP(&flags.jsonOut, "json", "j", false, "Emit the JSON report on stdout")
	rootCmd.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress progress output on stderr")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.config/claude-diagnose/config.toml)")

	// Unknown flags and unparsable values are argument errors, same as a
	// plan that fails validation.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", executor.ErrInvalidArgument, err)
	})

	rootCmd.AddCommand(
		newDoctorCmd(&flags),
		newDiffCmd(),
		newMCPCmd(&flags),
		newVersionCmd(),
	)
	return rootCmd
}

// buildPlan turns flag values into a run plan. Durations left at zero fall
// back to the configured defaults.
func buildPlan(flags rootFlags, cfg config.Config) (orchestrator.Plan, error) {
	plan := orchestrator.Plan{
		Deep:           flags.deep,
		Sample:         flags.sample,
		SampleDuration: cfg.Durations.Sample,
		Trace:          flags.dtrace,
		TraceDuration:  cfg.Durations.Trace,
		IO:             flags.io,
		Network:        flags.network,
		Flamegraph:     flags.flamegraph,
		FlamegraphPath: flags.outPath,
		JSON:           flags.jsonOut,
		Quiet:          flags.quiet,
	}

	if flags.pid != "" {
		pid, err := strconv.Atoi(flags.pid)
		if err != nil {
			return plan, fmt.Errorf("%w: pid %q is not a number", executor.ErrInvalidArgument, flags.pid)
		}
		plan.PID = pid
	}
	if flags.sampleDuration != 0 {
		plan.SampleDuration = time.Duration(flags.sampleDuration) * time.Second
	}
	if flags.duration != 0 {
		plan.TraceDuration = time.Duration(flags.duration) * time.Second
	}
	if plan.Flamegraph && plan.FlamegraphPath == "" {
		plan.FlamegraphPath = defaultFlamegraphPath
	}

	plan.Normalize()
	return plan, plan.Validate()
}

// runDiagnose is the root command: one diagnostic pass, then the report.
func runDiagnose(ctx context.Context, flags rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	plan, err := buildPlan(flags, cfg)
	if err != nil {
		return err
	}
	log := logging.Init(flags.verbose)

	orch := orchestrator.New(cfg, version, flags.quiet, log)
	report, err := orch.Run(ctx, plan)
	if err != nil {
		return err
	}

	return writeReport(os.Stdout, plan, report)
}

// writeReport picks the output form. The human renderer handles the empty
// case itself; JSON mode swaps an all-empty report for the short no-matches
// object so scripts get a single field to check.
func writeReport(w io.Writer, plan orchestrator.Plan, report *model.DiagnosticReport) error {
	if !plan.JSON {
		output.WriteHumanReport(w, report)
		return nil
	}
	if plan.PID == 0 && len(report.Processes) == 0 {
		return output.WriteNoProcessesJSON(w)
	}
	return output.WriteJSON(w, report)
}

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Probe host capabilities for diagnostics",
		Long:  "Check platform, diagnostic tool availability, privileges, and SIP status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log := logging.Init(flags.verbose)
			runner := executor.NewRunner(cfg.Limits.MaxOutputBytes,
				observer.NewPIDTracker(), logging.Component(log, "executor"))

			prober := capability.NewProber(runner, cfg, logging.Component(log, "capability"))
			checks := prober.Probe(cmd.Context())
			if jsonOut {
				return output.WriteDoctorJSON(os.Stdout, checks)
			}
			output.WriteDoctorReport(os.Stdout, checks)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "Emit the checks as JSON")
	return cmd
}

func newDiffCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "diff <baseline.json> <current.json>",
		Short: "Compare two diagnostic reports",
		Long:  "Show per-process metric deltas, descriptor growth, and issues that appeared or resolved between two runs.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := diffpkg.LoadReport(args[0])
			if err != nil {
				return fmt.Errorf("load baseline: %w", err)
			}
			current, err := diffpkg.LoadReport(args[1])
			if err != nil {
				return fmt.Errorf("load current: %w", err)
			}

			result := diffpkg.Compare(baseline, current)
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Print(diffpkg.FormatDiff(result))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "Emit the diff as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", model.ToolName, version)
		},
	}
}
