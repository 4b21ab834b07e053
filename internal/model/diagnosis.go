package model

import (
	"fmt"
	"strings"

	"claude-diagnose/internal/config"
)

// Rule is one declarative diagnosis trigger evaluated over the assembled
// report. Rules are independent; each returns zero or more findings.
type Rule struct {
	Name     string
	Evaluate func(r *DiagnosticReport, t config.Thresholds) []Diagnosis
}

// Diagnose runs the default rule set in order. Ordering is part of the
// output contract: per-PID resource findings first, then sampled patterns,
// then trace and system findings.
func Diagnose(r *DiagnosticReport, t config.Thresholds) []Diagnosis {
	var out []Diagnosis
	for _, rule := range DefaultRules() {
		out = append(out, rule.Evaluate(r, t)...)
	}
	return out
}

// DefaultRules returns the built-in diagnosis rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "fd_count",
			Evaluate: func(r *DiagnosticReport, t config.Thresholds) []Diagnosis {
				var out []Diagnosis
				for _, res := range r.Resources {
					if res.OpenFileCount <= t.FDLeak {
						continue
					}
					out = append(out, Diagnosis{
						Severity:       SeverityHigh,
						Issue:          "High File Descriptor Count",
						Description:    fmt.Sprintf("Process has %d open file descriptors", res.OpenFileCount),
						Recommendation: "Possible fd leak - check for unclosed handles",
						PID:            res.PID,
					})
				}
				return out
			},
		},
		{
			Name: "watched_paths",
			Evaluate: func(r *DiagnosticReport, t config.Thresholds) []Diagnosis {
				var out []Diagnosis
				for _, res := range r.Resources {
					if res.WatchedPathCount <= t.WatchedPaths {
						continue
					}
					out = append(out, Diagnosis{
						Severity:       SeverityHigh,
						Issue:          "Excessive File Watching",
						Description:    fmt.Sprintf("Watching %d paths", res.WatchedPathCount),
						Recommendation: "Too many watched paths - add exclusions",
						PID:            res.PID,
					})
				}
				return out
			},
		},
		{
			Name: "sampled_patterns",
			Evaluate: func(r *DiagnosticReport, _ config.Thresholds) []Diagnosis {
				if r.Sample == nil {
					return nil
				}
				var out []Diagnosis
				for _, flag := range r.Sample.DetectedPatterns {
					if d, ok := patternDiagnoses[flag]; ok {
						d.PID = r.Sample.PID
						out = append(out, d)
					}
				}
				return out
			},
		},
		{
			Name: "crypto_activity",
			Evaluate: func(r *DiagnosticReport, _ config.Thresholds) []Diagnosis {
				if r.Sample == nil {
					return nil
				}
				for _, hf := range r.Sample.HotFunctions {
					if !containsAny(hf.Function, "CRYPTO", "SSL", "TLS") {
						continue
					}
					return []Diagnosis{{
						Severity:       SeverityLow,
						Issue:          "Cryptographic Operations",
						Description:    "Process is performing crypto/TLS operations",
						Recommendation: "Normal if establishing connections",
						PID:            r.Sample.PID,
					}}
				}
				return nil
			},
		},
		{
			Name: "trace_fallback",
			Evaluate: func(r *DiagnosticReport, _ config.Thresholds) []Diagnosis {
				if r.Trace == nil || r.Trace.FallbackReason == "" {
					return nil
				}
				return []Diagnosis{{
					Severity:       SeverityLow,
					Issue:          "Reduced Trace Precision",
					Description:    fmt.Sprintf("fs_usage fallback in use: %s", r.Trace.FallbackReason),
					Recommendation: "Informational - dtrace gives full syscall coverage",
				}}
			},
		},
		{
			Name: "empty_trace",
			Evaluate: func(r *DiagnosticReport, _ config.Thresholds) []Diagnosis {
				if r.Trace == nil || r.Trace.EventCount > 0 {
					return nil
				}
				return []Diagnosis{{
					Severity:       SeverityLow,
					Issue:          "No Syscall Data Captured",
					Description:    "The tracer captured no syscall events",
					Recommendation: "Process may have been idle during the capture window",
				}}
			},
		},
		{
			Name: "syscall_error_rate",
			Evaluate: func(r *DiagnosticReport, t config.Thresholds) []Diagnosis {
				if r.Trace == nil {
					return nil
				}
				var out []Diagnosis
				for _, st := range r.Trace.Stats {
					if st.Count <= t.SyscallErrorMinCount {
						continue
					}
					ratio := float64(st.ErrorCount) / float64(st.Count)
					if ratio <= t.SyscallErrorRatio {
						continue
					}
					out = append(out, Diagnosis{
						Severity: SeverityMedium,
						Issue:    "High Syscall Error Rate",
						Description: fmt.Sprintf("%s: %.0f%% of %d calls failed",
							st.Name, ratio*100, st.Count),
						Recommendation: "Check paths and permissions the process relies on",
					})
				}
				return out
			},
		},
		{
			Name: "aggregate_cpu",
			Evaluate: func(r *DiagnosticReport, t config.Thresholds) []Diagnosis {
				var total float64
				for _, p := range r.Processes {
					total += p.CPUPercent
				}
				if total <= t.AggregateCPUPct {
					return nil
				}
				return []Diagnosis{{
					Severity:       SeverityHigh,
					Issue:          "High Aggregate CPU",
					Description:    fmt.Sprintf("Claude processes are using %.1f%% CPU in total", total),
					Recommendation: "Consider restarting the busiest session",
				}}
			},
		},
		{
			Name: "memory_pressure",
			Evaluate: func(r *DiagnosticReport, _ config.Thresholds) []Diagnosis {
				if r.System == nil {
					return nil
				}
				var severity string
				switch r.System.Memory.PressureLevel {
				case PressureWarning:
					severity = SeverityMedium
				case PressureCritical:
					severity = SeverityHigh
				default:
					return nil
				}
				return []Diagnosis{{
					Severity:       severity,
					Issue:          "System Memory Pressure",
					Description:    fmt.Sprintf("Memory pressure level is %s", r.System.Memory.PressureLevel),
					Recommendation: "Close other applications or restart sessions",
				}}
			},
		},
	}
}

// patternDiagnoses maps sampled pattern flags to their findings.
var patternDiagnoses = map[PatternFlag]Diagnosis{
	PatternFSEventsStorm: {
		Severity:       SeverityMedium,
		Issue:          "FSEvents Activity",
		Description:    "Process is actively watching filesystem events",
		Recommendation: "Check .claude/settings.json for watchPaths config",
	},
	PatternEventLoopSpin: {
		Severity:       SeverityHigh,
		Issue:          "High Polling Activity",
		Description:    "Process spinning on event polling (kevent/poll)",
		Recommendation: "Likely a bug in event loop - consider restarting",
	},
	PatternGCPressure: {
		Severity:       SeverityMedium,
		Issue:          "Garbage Collection Pressure",
		Description:    "V8 garbage collector is running frequently",
		Recommendation: "Consider increasing --max-old-space-size",
	},
	PatternRunLoopSpin: {
		Severity:       SeverityHigh,
		Issue:          "CFRunLoop Spinning",
		Description:    "Core Foundation run loop is spinning excessively",
		Recommendation: "Indicates event loop issue - restart session",
	},
}

// PermissionDiagnosis is the degraded finding recorded when descriptor
// inspection was refused for a PID; the aggregator appends it directly since
// the refusal is not visible in report state.
func PermissionDiagnosis(pid int) Diagnosis {
	return Diagnosis{
		Severity:       SeverityLow,
		Issue:          "Insufficient Permissions",
		Description:    "Descriptor inspection was refused for this process",
		Recommendation: "Re-run with sudo for complete resource data",
		PID:            pid,
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
