// Package capability probes what the host lets the diagnoser do: platform,
// tool availability, privileges, and System Integrity Protection. The doctor
// subcommand renders the probe results; the tracer reuses the SIP and root
// checks for its preflight.
package capability

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
)

// Check is one probe result.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
	Remedy string `json:"remedy,omitempty"`
}

// CommandRunner is the subprocess contract the prober needs.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*executor.RawOutput, error)
	Available(tool string) bool
}

// Prober runs capability checks.
type Prober struct {
	runner CommandRunner
	cfg    config.Config
	log    zerolog.Logger
	goos   string     // runtime.GOOS, swapped in tests
	euid   func() int // os.Geteuid, swapped in tests
}

// NewProber creates a Prober.
func NewProber(runner CommandRunner, cfg config.Config, log zerolog.Logger) *Prober {
	return &Prober{runner: runner, cfg: cfg, log: log, goos: runtime.GOOS, euid: os.Geteuid}
}

// Probe runs every check and returns them in display order.
func (p *Prober) Probe(ctx context.Context) []Check {
	checks := []Check{p.platformCheck(), p.privilegeCheck()}
	checks = append(checks, p.toolChecks()...)
	checks = append(checks, p.sipCheck(ctx))
	if c, ok := p.dtraceCheck(ctx); ok {
		checks = append(checks, c)
	}
	return checks
}

func (p *Prober) platformCheck() Check {
	c := Check{Name: "platform", Detail: p.goos}
	if p.goos == "darwin" {
		c.OK = true
	} else {
		c.Remedy = "the diagnostic toolchain (sample, dtrace, fs_usage) is macOS-only"
	}
	return c
}

func (p *Prober) privilegeCheck() Check {
	euid := p.euid()
	c := Check{Name: "privileges", Detail: fmt.Sprintf("euid %d", euid)}
	if euid == 0 {
		c.OK = true
		c.Detail = "running as root"
	} else {
		c.OK = true // not an error; tracing is the only root-gated feature
		c.Detail = "not root; syscall tracing (-D, --flamegraph) unavailable"
		c.Remedy = "re-run with sudo for tracing"
	}
	return c
}

func (p *Prober) toolChecks() []Check {
	checks := make([]Check, 0, len(executor.ToolNames()))
	for _, name := range executor.ToolNames() {
		spec := executor.Registry[name]
		c := Check{Name: "tool:" + name}
		if p.runner.Available(name) {
			c.OK = true
			c.Detail = spec.Purpose
		} else {
			c.Detail = "not found in allowed system paths"
			c.Remedy = spec.Remedy
		}
		checks = append(checks, c)
	}
	return checks
}

// sipCheck reads SIP status via csrutil. Unknown status is reported, not
// failed; the tracer discovers the truth at preflight anyway.
func (p *Prober) sipCheck(ctx context.Context) Check {
	c := Check{Name: "sip"}
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Durations.QuickCommand)
	defer cancel()

	raw, err := p.runner.Run(probeCtx, executor.ToolCsrutil, "status")
	if err != nil || raw.ExitCode != 0 {
		c.OK = true
		c.Detail = "status unknown"
		return c
	}

	out := strings.ToLower(raw.Stdout)
	switch {
	case strings.Contains(out, "disabled"):
		c.OK = true
		c.Detail = "disabled (dtrace can attach to any process)"
	case strings.Contains(out, "enabled"):
		c.OK = true
		c.Detail = "enabled (dtrace may fall back to fs_usage)"
		c.Remedy = "expected on stock macOS; fs_usage fallback covers file I/O"
	default:
		c.OK = true
		c.Detail = "status unknown"
	}
	return c
}

// dtraceCheck verifies dtrace actually works with a BEGIN probe. Only
// attempted as root; without privileges the probe would only measure the
// privilege check.
func (p *Prober) dtraceCheck(ctx context.Context) (Check, bool) {
	if p.euid() != 0 || !p.runner.Available(executor.ToolDtrace) {
		return Check{}, false
	}

	c := Check{Name: "dtrace:usable"}
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Durations.QuickCommand)
	defer cancel()

	raw, err := p.runner.Run(probeCtx, executor.ToolDtrace, "-q", "-n", "BEGIN{exit(0);}")
	switch {
	case err != nil:
		c.Detail = err.Error()
		c.Remedy = executor.Registry[executor.ToolDtrace].Remedy
	case raw.ExitCode != 0:
		c.Detail = strings.TrimSpace(raw.Stderr)
		c.Remedy = executor.Registry[executor.ToolDtrace].Remedy
	default:
		c.OK = true
		c.Detail = "BEGIN probe ran"
	}
	return c, true
}

// AllOK reports whether every check passed.
func AllOK(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}
