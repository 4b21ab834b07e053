package orchestrator

import (
	"errors"
	"testing"
	"time"

	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/tracer"
)

func TestPlanNormalize(t *testing.T) {
	p := Plan{Sample: true, Flamegraph: true}
	p.Normalize()
	if !p.Deep {
		t.Error("sampling should imply deep inspection")
	}
	if !p.Trace {
		t.Error("flamegraph should imply tracing")
	}

	p = Plan{}
	p.Normalize()
	if p.Deep || p.Trace {
		t.Errorf("bare plan gained modes: %+v", p)
	}
}

func TestPlanFocus(t *testing.T) {
	tests := []struct {
		plan Plan
		want string
	}{
		{Plan{IO: true}, tracer.FocusIO},
		{Plan{Network: true}, tracer.FocusNetwork},
		{Plan{}, tracer.FocusAll},
	}
	for _, tt := range tests {
		if got := tt.plan.Focus(); got != tt.want {
			t.Errorf("Focus(%+v) = %q, want %q", tt.plan, got, tt.want)
		}
	}
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{"empty", Plan{}, false},
		{"negative pid", Plan{PID: -1}, true},
		{"io and network", Plan{Trace: true, TraceDuration: 10 * time.Second, IO: true, Network: true}, true},
		{"io without trace", Plan{IO: true}, true},
		{"short sample", Plan{Sample: true, SampleDuration: 500 * time.Millisecond}, true},
		{"short trace", Plan{Trace: true, TraceDuration: 0}, true},
		{"flamegraph no path", Plan{Flamegraph: true, Trace: true, TraceDuration: 10 * time.Second}, true},
		{"full", Plan{
			PID: 100, Deep: true,
			Sample: true, SampleDuration: 5 * time.Second,
			Trace: true, TraceDuration: 10 * time.Second, IO: true,
			Flamegraph: true, FlamegraphPath: "out.svg",
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr {
				if !errors.Is(err, executor.ErrInvalidArgument) {
					t.Errorf("Validate() = %v, want ErrInvalidArgument", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
