package collector

import (
	"context"
	"testing"

	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/model"
)

func TestParsePressureLevel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"normal",
			"The system has 2147483648 bytes of free memory\nSystem-wide memory free percentage: 54%\nStats: memory pressure level is normal\n",
			model.PressureNormal,
		},
		{
			"warn",
			"Stats: memory pressure level is warn\n",
			model.PressureWarning,
		},
		{
			"critical",
			"Stats: memory pressure level is critical\n",
			model.PressureCritical,
		},
		{"empty", "", model.PressureUnknown},
		{"unrecognized", "something else entirely", model.PressureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePressureLevel(tt.raw); got != tt.want {
				t.Errorf("ParsePressureLevel(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSystemInspect(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout(executor.ToolMemoryPressure, "Stats: memory pressure level is warn\n")

	ins := NewSystemInspector(runner, logging.Discard())
	info := ins.Inspect(context.Background())
	if info.Memory.PressureLevel != model.PressureWarning {
		t.Errorf("pressure = %q, want warn", info.Memory.PressureLevel)
	}
}

func TestSystemInspectToolMissing(t *testing.T) {
	runner := newFakeRunner() // memory_pressure not registered

	ins := NewSystemInspector(runner, logging.Discard())
	info := ins.Inspect(context.Background())
	if info.Memory.PressureLevel != model.PressureUnknown {
		t.Errorf("pressure = %q, want unknown", info.Memory.PressureLevel)
	}
}
