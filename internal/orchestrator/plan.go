package orchestrator

import (
	"fmt"
	"time"

	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/tracer"
)

// Plan is the validated run request assembled from CLI flags or MCP
// arguments. Zero PID means all family members.
type Plan struct {
	PID            int
	Deep           bool
	Sample         bool
	SampleDuration time.Duration
	Trace          bool
	TraceDuration  time.Duration
	IO             bool
	Network        bool
	Flamegraph     bool
	FlamegraphPath string
	JSON           bool
	Quiet          bool
}

// Normalize applies the flag implications: sampling needs the resource
// context of deep mode, a flamegraph needs trace data.
func (p *Plan) Normalize() {
	if p.Sample {
		p.Deep = true
	}
	if p.Flamegraph {
		p.Trace = true
	}
}

// Focus returns the trace focus derived from the --io/--network flags.
func (p *Plan) Focus() string {
	switch {
	case p.IO:
		return tracer.FocusIO
	case p.Network:
		return tracer.FocusNetwork
	}
	return tracer.FocusAll
}

// Validate rejects impossible requests before any subprocess spawns.
func (p *Plan) Validate() error {
	if p.PID < 0 {
		return fmt.Errorf("%w: pid must be positive, got %d", executor.ErrInvalidArgument, p.PID)
	}
	if p.IO && p.Network {
		return fmt.Errorf("%w: --io and --network are mutually exclusive", executor.ErrInvalidArgument)
	}
	if (p.IO || p.Network) && !p.Trace {
		return fmt.Errorf("%w: --io/--network require tracing (-D)", executor.ErrInvalidArgument)
	}
	if p.Sample && p.SampleDuration < time.Second {
		return fmt.Errorf("%w: sample duration must be at least 1s", executor.ErrInvalidArgument)
	}
	if p.Trace && p.TraceDuration < time.Second {
		return fmt.Errorf("%w: trace duration must be at least 1s", executor.ErrInvalidArgument)
	}
	if p.Flamegraph && p.FlamegraphPath == "" {
		return fmt.Errorf("%w: flamegraph output path is empty", executor.ErrInvalidArgument)
	}
	return nil
}
