package model

import (
	"strings"
	"testing"

	"claude-diagnose/internal/config"
)

func testThresholds() config.Thresholds {
	return config.Default().Thresholds
}

func TestDiagnoseFDLeak(t *testing.T) {
	r := &DiagnosticReport{
		Resources: []ResourceSnapshot{
			{PID: 100, OpenFileCount: 1500, FDLeakSuspected: true},
			{PID: 200, OpenFileCount: 40},
		},
	}
	diags := Diagnose(r, testThresholds())
	if len(diags) != 1 {
		t.Fatalf("diags = %+v, want 1", diags)
	}
	d := diags[0]
	if d.Severity != SeverityHigh || d.PID != 100 {
		t.Errorf("diag = %+v", d)
	}
	if !strings.Contains(d.Description, "1500") {
		t.Errorf("description = %q", d.Description)
	}
}

func TestDiagnoseWatchedPaths(t *testing.T) {
	r := &DiagnosticReport{
		Resources: []ResourceSnapshot{{PID: 100, WatchedPathCount: 250}},
	}
	diags := Diagnose(r, testThresholds())
	if len(diags) != 1 || diags[0].Issue != "Excessive File Watching" {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestDiagnosePatterns(t *testing.T) {
	r := &DiagnosticReport{
		Sample: &SampleResult{
			PID:              100,
			DetectedPatterns: []PatternFlag{PatternEventLoopSpin, PatternGCPressure},
		},
	}
	diags := Diagnose(r, testThresholds())
	if len(diags) != 2 {
		t.Fatalf("diags = %+v, want 2", diags)
	}
	if diags[0].Issue != "High Polling Activity" || diags[0].Severity != SeverityHigh {
		t.Errorf("diags[0] = %+v", diags[0])
	}
	if diags[1].Issue != "Garbage Collection Pressure" || diags[1].Severity != SeverityMedium {
		t.Errorf("diags[1] = %+v", diags[1])
	}
	for _, d := range diags {
		if d.PID != 100 {
			t.Errorf("pattern diagnosis missing PID: %+v", d)
		}
	}
}

func TestDiagnosePatternNoneIsClean(t *testing.T) {
	r := &DiagnosticReport{
		Sample: &SampleResult{PID: 100, DetectedPatterns: []PatternFlag{PatternNone}},
	}
	if diags := Diagnose(r, testThresholds()); len(diags) != 0 {
		t.Errorf("diags = %+v, want none", diags)
	}
}

func TestDiagnoseCryptoHotFunctions(t *testing.T) {
	r := &DiagnosticReport{
		Sample: &SampleResult{
			PID: 100,
			HotFunctions: []HotFunction{
				{Function: "uv_run", Samples: 500},
				{Function: "SSL_do_handshake", Samples: 80},
			},
			DetectedPatterns: []PatternFlag{PatternNone},
		},
	}
	diags := Diagnose(r, testThresholds())
	if len(diags) != 1 || diags[0].Issue != "Cryptographic Operations" || diags[0].Severity != SeverityLow {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestDiagnoseTraceFindings(t *testing.T) {
	r := &DiagnosticReport{
		Trace: &TraceResult{
			Tool:           TraceToolFsUsage,
			FallbackReason: "dtrace refused: system integrity protection",
			EventCount:     500,
			Stats: []SyscallStat{
				{Name: "open", Count: 200, ErrorCount: 150},
				{Name: "read", Count: 5000, ErrorCount: 10},
			},
		},
	}
	diags := Diagnose(r, testThresholds())

	var issues []string
	for _, d := range diags {
		issues = append(issues, d.Issue)
	}
	want := []string{"Reduced Trace Precision", "High Syscall Error Rate"}
	if len(issues) != len(want) {
		t.Fatalf("issues = %v, want %v", issues, want)
	}
	for i := range want {
		if issues[i] != want[i] {
			t.Errorf("issues[%d] = %q, want %q", i, issues[i], want[i])
		}
	}
}

func TestDiagnoseEmptyTrace(t *testing.T) {
	r := &DiagnosticReport{Trace: &TraceResult{Tool: TraceToolDtrace}}
	diags := Diagnose(r, testThresholds())
	if len(diags) != 1 || diags[0].Issue != "No Syscall Data Captured" {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestDiagnoseAggregateCPU(t *testing.T) {
	r := &DiagnosticReport{
		Processes: []ProcessRecord{
			{PID: 100, CPUPercent: 80},
			{PID: 200, CPUPercent: 45},
		},
	}
	diags := Diagnose(r, testThresholds())
	if len(diags) != 1 || diags[0].Issue != "High Aggregate CPU" {
		t.Fatalf("diags = %+v", diags)
	}
	if !strings.Contains(diags[0].Description, "125.0%") {
		t.Errorf("description = %q", diags[0].Description)
	}
}

func TestDiagnoseMemoryPressure(t *testing.T) {
	tests := []struct {
		level        string
		wantSeverity string
		wantCount    int
	}{
		{PressureNormal, "", 0},
		{PressureUnknown, "", 0},
		{PressureWarning, SeverityMedium, 1},
		{PressureCritical, SeverityHigh, 1},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			r := &DiagnosticReport{
				System: &SystemInfo{Memory: MemoryPressure{PressureLevel: tt.level}},
			}
			diags := Diagnose(r, testThresholds())
			if len(diags) != tt.wantCount {
				t.Fatalf("diags = %+v, want %d", diags, tt.wantCount)
			}
			if tt.wantCount == 1 && diags[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", diags[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestDiagnoseThresholdsInjected(t *testing.T) {
	th := testThresholds()
	th.FDLeak = 10
	r := &DiagnosticReport{
		Resources: []ResourceSnapshot{{PID: 100, OpenFileCount: 11}},
	}
	if diags := Diagnose(r, th); len(diags) != 1 {
		t.Errorf("lowered threshold not honored: %+v", diags)
	}
}
