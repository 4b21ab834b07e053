// Package diff compares two diagnostic reports and highlights regressions
// and improvements between runs, e.g. before and after restarting a session.
package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"claude-diagnose/internal/model"
)

// DiffReport contains the comparison between two diagnostic reports.
type DiffReport struct {
	Baseline          string         `json:"baseline"`
	Current           string         `json:"current"`
	ProcessCountDelta int            `json:"process_count_delta"`
	PressureChange    string         `json:"pressure_change,omitempty"`
	Changes           []MetricChange `json:"changes"`
	NewDiagnoses      []string       `json:"new_diagnoses"`
	ResolvedDiagnoses []string       `json:"resolved_diagnoses"`
	Regressions       int            `json:"regressions"`
	Improvements      int            `json:"improvements"`
}

// MetricChange represents a single metric difference between reports.
type MetricChange struct {
	Category     string  `json:"category"`
	Metric       string  `json:"metric"`
	OldValue     float64 `json:"old_value"`
	NewValue     float64 `json:"new_value"`
	Delta        float64 `json:"delta"`
	DeltaPct     float64 `json:"delta_pct"`
	Direction    string  `json:"direction"`    // "regression", "improvement", "unchanged"
	Significance string  `json:"significance"` // "high", "medium", "low"
}

// LoadReport reads and parses a JSON report file, rejecting reports from an
// incompatible tool version.
func LoadReport(path string) (*model.DiagnosticReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var report model.DiagnosticReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := model.ValidateSchema(&report); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &report, nil
}

// Compare computes differences between two reports. Per-process metrics are
// joined by PID; processes present in only one report show up through the
// process count delta and the diagnosis lists rather than as metric rows.
func Compare(baseline, current *model.DiagnosticReport) *DiffReport {
	diff := &DiffReport{
		Baseline:          baseline.Metadata.Generated,
		Current:           current.Metadata.Generated,
		ProcessCountDelta: len(current.Processes) - len(baseline.Processes),
		NewDiagnoses:      []string{},
		ResolvedDiagnoses: []string{},
	}

	addChange(diff, "summary", "total_cpu_pct", baseline.Summary.TotalCPU, current.Summary.TotalCPU, true)
	addChange(diff, "summary", "total_mem_pct", baseline.Summary.TotalMem, current.Summary.TotalMem, true)
	addChange(diff, "summary", "total_rss_mb",
		float64(baseline.Summary.TotalRSSMb), float64(current.Summary.TotalRSSMb), true)

	compareProcesses(diff, baseline, current)
	compareResources(diff, baseline, current)
	compareDiagnoses(diff, baseline, current)
	comparePressure(diff, baseline, current)

	for _, c := range diff.Changes {
		switch c.Direction {
		case "regression":
			diff.Regressions++
		case "improvement":
			diff.Improvements++
		}
	}

	return diff
}

func compareProcesses(diff *DiffReport, baseline, current *model.DiagnosticReport) {
	old := make(map[int]model.ProcessRecord, len(baseline.Processes))
	for _, p := range baseline.Processes {
		old[p.PID] = p
	}
	for _, p := range current.Processes {
		prev, ok := old[p.PID]
		if !ok {
			continue
		}
		cat := fmt.Sprintf("pid:%d", p.PID)
		addChange(diff, cat, "cpu_pct", prev.CPUPercent, p.CPUPercent, true)
		addChange(diff, cat, "mem_pct", prev.MemPercent, p.MemPercent, true)
		addChange(diff, cat, "rss_kb", float64(prev.RSSKb), float64(p.RSSKb), true)
	}
}

// compareResources tracks descriptor growth per surviving PID. A steadily
// growing fd count across runs is the strongest leak signal the tool has.
func compareResources(diff *DiffReport, baseline, current *model.DiagnosticReport) {
	old := make(map[int]model.ResourceSnapshot, len(baseline.Resources))
	for _, r := range baseline.Resources {
		old[r.PID] = r
	}
	for _, r := range current.Resources {
		prev, ok := old[r.PID]
		if !ok {
			continue
		}
		cat := fmt.Sprintf("pid:%d", r.PID)
		addChange(diff, cat, "open_fds", float64(prev.OpenFileCount), float64(r.OpenFileCount), true)
		addChange(diff, cat, "watched_paths", float64(prev.WatchedPathCount), float64(r.WatchedPathCount), true)
		addChange(diff, cat, "connections",
			float64(len(prev.NetworkConnections)), float64(len(r.NetworkConnections)), true)
	}
}

// compareDiagnoses reports findings that appeared or went away. Identity is
// the issue title plus the PID, so the same issue on a different process
// counts as new.
func compareDiagnoses(diff *DiffReport, baseline, current *model.DiagnosticReport) {
	key := func(d model.Diagnosis) string {
		if d.PID != 0 {
			return fmt.Sprintf("PID %d: %s", d.PID, d.Issue)
		}
		return d.Issue
	}

	old := make(map[string]bool, len(baseline.Diagnoses))
	for _, d := range baseline.Diagnoses {
		old[key(d)] = true
	}
	now := make(map[string]bool, len(current.Diagnoses))
	for _, d := range current.Diagnoses {
		now[key(d)] = true
		if !old[key(d)] {
			diff.NewDiagnoses = append(diff.NewDiagnoses, key(d))
		}
	}
	for k := range old {
		if !now[k] {
			diff.ResolvedDiagnoses = append(diff.ResolvedDiagnoses, k)
		}
	}
	sort.Strings(diff.NewDiagnoses)
	sort.Strings(diff.ResolvedDiagnoses)
}

func comparePressure(diff *DiffReport, baseline, current *model.DiagnosticReport) {
	if baseline.System == nil || current.System == nil {
		return
	}
	before := baseline.System.Memory.PressureLevel
	after := current.System.Memory.PressureLevel
	if before != after {
		diff.PressureChange = fmt.Sprintf("%s -> %s", before, after)
	}
}

func addChange(diff *DiffReport, category, metric string, oldVal, newVal float64, higherIsWorse bool) {
	delta := newVal - oldVal
	deltaPct := 0.0
	if oldVal != 0 {
		deltaPct = (delta / math.Abs(oldVal)) * 100
	}

	// Skip negligible changes
	if math.Abs(deltaPct) < 1.0 && math.Abs(delta) < 0.1 {
		return
	}

	direction := "unchanged"
	if higherIsWorse {
		if deltaPct > 5 {
			direction = "regression"
		} else if deltaPct < -5 {
			direction = "improvement"
		}
	} else {
		if deltaPct < -5 {
			direction = "regression"
		} else if deltaPct > 5 {
			direction = "improvement"
		}
	}

	significance := "low"
	absPct := math.Abs(deltaPct)
	if absPct >= 50 {
		significance = "high"
	} else if absPct >= 20 {
		significance = "medium"
	}

	diff.Changes = append(diff.Changes, MetricChange{
		Category:     category,
		Metric:       metric,
		OldValue:     oldVal,
		NewValue:     newVal,
		Delta:        delta,
		DeltaPct:     deltaPct,
		Direction:    direction,
		Significance: significance,
	})
}

// FormatDiff returns a human-readable diff summary.
func FormatDiff(d *DiffReport) string {
	var sb strings.Builder

	sb.WriteString("=== Diagnostic Diff ===\n")
	sb.WriteString(fmt.Sprintf("Baseline: %s\n", d.Baseline))
	sb.WriteString(fmt.Sprintf("Current:  %s\n\n", d.Current))

	if d.ProcessCountDelta != 0 {
		sb.WriteString(fmt.Sprintf("Process count: %+d\n", d.ProcessCountDelta))
	}
	if d.PressureChange != "" {
		sb.WriteString(fmt.Sprintf("Memory pressure: %s\n", d.PressureChange))
	}
	sb.WriteString(fmt.Sprintf("Regressions: %d, Improvements: %d\n\n", d.Regressions, d.Improvements))

	if len(d.NewDiagnoses) > 0 {
		sb.WriteString("⚠ New issues:\n")
		for _, issue := range d.NewDiagnoses {
			sb.WriteString(fmt.Sprintf("  %s\n", issue))
		}
		sb.WriteString("\n")
	}
	if len(d.ResolvedDiagnoses) > 0 {
		sb.WriteString("✓ Resolved issues:\n")
		for _, issue := range d.ResolvedDiagnoses {
			sb.WriteString(fmt.Sprintf("  %s\n", issue))
		}
		sb.WriteString("\n")
	}

	// Show regressions first
	if d.Regressions > 0 {
		sb.WriteString("⚠ Regressions:\n")
		for _, c := range d.Changes {
			if c.Direction == "regression" {
				sb.WriteString(fmt.Sprintf("  [%s] %s/%s: %.2f → %.2f (%+.1f%%)\n",
					strings.ToUpper(c.Significance), c.Category, c.Metric,
					c.OldValue, c.NewValue, c.DeltaPct))
			}
		}
		sb.WriteString("\n")
	}

	if d.Improvements > 0 {
		sb.WriteString("✓ Improvements:\n")
		for _, c := range d.Changes {
			if c.Direction == "improvement" {
				sb.WriteString(fmt.Sprintf("  [%s] %s/%s: %.2f → %.2f (%+.1f%%)\n",
					strings.ToUpper(c.Significance), c.Category, c.Metric,
					c.OldValue, c.NewValue, c.DeltaPct))
			}
		}
	}

	return sb.String()
}
