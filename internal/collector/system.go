// System inspection: memory pressure level from the memory_pressure tool
// (no API equivalent exists) plus free/total memory and host identity via
// gopsutil.
package collector

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/model"
)

// SystemInspector gathers host-level state relevant to the diagnosis.
type SystemInspector struct {
	runner CommandRunner
	log    zerolog.Logger
}

// NewSystemInspector creates a SystemInspector.
func NewSystemInspector(runner CommandRunner, log zerolog.Logger) *SystemInspector {
	return &SystemInspector{runner: runner, log: log}
}

// Inspect returns system memory state. Failures degrade to pressure_level
// "unknown" rather than erroring; memory pressure is context, not a
// required subsystem.
func (s *SystemInspector) Inspect(ctx context.Context) *model.SystemInfo {
	info := &model.SystemInfo{
		Memory: model.MemoryPressure{PressureLevel: model.PressureUnknown},
	}

	raw, err := s.runner.Run(ctx, executor.ToolMemoryPressure)
	if err == nil && raw.ExitCode == 0 {
		info.Memory.PressureLevel = ParsePressureLevel(raw.Stdout)
	} else if err != nil {
		s.log.Debug().Err(err).Msg("memory_pressure unavailable")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.Memory.FreeMemoryMB = int64(vm.Available / (1024 * 1024))
		info.Memory.TotalMemoryMB = int64(vm.Total / (1024 * 1024))
	}

	return info
}

// ParsePressureLevel extracts the pressure level from memory_pressure
// output. The tool prints a free-form status line containing "normal",
// "warn", or "critical".
func ParsePressureLevel(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "critical"):
		return model.PressureCritical
	case strings.Contains(lower, "warn"):
		return model.PressureWarning
	case strings.Contains(lower, "normal"):
		return model.PressureNormal
	}
	return model.PressureUnknown
}

// HostInfo returns hostname, kernel release, and platform for report
// metadata. Best-effort: empty strings on failure.
func HostInfo(ctx context.Context) (hostname, kernel, platform string) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", "", ""
	}
	return info.Hostname, info.KernelVersion, info.Platform
}
