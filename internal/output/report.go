package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"claude-diagnose/internal/model"
)

var (
	styleBanner  = lipgloss.NewStyle().Bold(true)
	styleSection = lipgloss.NewStyle().Bold(true)
	styleDim     = lipgloss.NewStyle().Faint(true)
	styleSub     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // cyan
	styleGood    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	styleBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
)

const bannerRule = "═══════════════════════════════════════════════════════════════════"

// WriteHumanReport renders the styled terminal report. Section order mirrors
// the JSON document: summary, issues, processes, sample, trace, warnings.
func WriteHumanReport(w io.Writer, r *model.DiagnosticReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleBanner.Render(bannerRule))
	fmt.Fprintln(w, styleBanner.Render("  CLAUDE CODE CLI DIAGNOSTIC REPORT"))
	fmt.Fprintln(w, styleBanner.Render(bannerRule))
	fmt.Fprintf(w, "  %s %s\n", styleDim.Render("Generated:"), r.Metadata.Generated)
	fmt.Fprintf(w, "  %s %s | %s %s %s\n",
		styleDim.Render("Host:"), r.Metadata.Hostname,
		styleDim.Render("OS:"), r.Metadata.Platform, r.Metadata.OSVersion)
	fmt.Fprintln(w)

	writeSummary(w, r)
	writeIssues(w, r)
	writeProcesses(w, r)
	writeSample(w, r)
	writeTrace(w, r)
	writeDegradation(w, r)

	fmt.Fprintln(w, styleBanner.Render(bannerRule))
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, r *model.DiagnosticReport) {
	fmt.Fprintln(w, styleSection.Render("SUMMARY"))
	fmt.Fprintf(w, "  Processes found: %d\n", r.Summary.ProcessCount)

	cpu := fmt.Sprintf("%.1f%%", r.Summary.TotalCPU)
	switch {
	case r.Summary.TotalCPU > 100:
		cpu = styleBad.Render(cpu)
	case r.Summary.TotalCPU > 50:
		cpu = styleWarn.Render(cpu)
	default:
		cpu = styleGood.Render(cpu)
	}
	fmt.Fprintf(w, "  Total CPU: %s\n", cpu)
	fmt.Fprintf(w, "  Total Memory: %.1f%%\n", r.Summary.TotalMem)
	fmt.Fprintf(w, "  Total RSS: %d MB\n", r.Summary.TotalRSSMb)

	if r.System != nil {
		level := r.System.Memory.PressureLevel
		switch level {
		case model.PressureNormal:
			level = styleGood.Render(level)
		case model.PressureWarning:
			level = styleWarn.Render(level)
		case model.PressureCritical:
			level = styleBad.Render(level)
		}
		fmt.Fprintf(w, "  System Memory Pressure: %s\n", level)
	}
	fmt.Fprintln(w)
}

func writeIssues(w io.Writer, r *model.DiagnosticReport) {
	if len(r.Summary.CriticalIssues) > 0 {
		fmt.Fprintln(w, styleBad.Bold(true).Render("CRITICAL ISSUES"))
		for _, issue := range r.Summary.CriticalIssues {
			fmt.Fprintf(w, "  %s %s\n", styleBad.Render("✗"), issue)
		}
		fmt.Fprintln(w)
	}
	if len(r.Summary.Warnings) > 0 {
		fmt.Fprintln(w, styleWarn.Bold(true).Render("WARNINGS"))
		for _, warning := range r.Summary.Warnings {
			fmt.Fprintf(w, "  %s %s\n", styleWarn.Render("⚠"), warning)
		}
		fmt.Fprintln(w)
	}

	for _, d := range r.Diagnoses {
		var tag string
		switch d.Severity {
		case model.SeverityHigh:
			tag = styleBad.Render("[HIGH]")
		case model.SeverityMedium:
			tag = styleWarn.Render("[MEDIUM]")
		default:
			tag = styleDim.Render("[LOW]")
		}
		fmt.Fprintf(w, "  %s %s\n", tag, d.Issue)
		fmt.Fprintf(w, "    %s\n", styleDim.Render(d.Description))
		fmt.Fprintf(w, "    Remedy: %s\n", d.Recommendation)
	}
	if len(r.Diagnoses) > 0 {
		fmt.Fprintln(w)
	}
}

func writeProcesses(w io.Writer, r *model.DiagnosticReport) {
	fmt.Fprintln(w, styleSection.Render("PROCESS DETAILS"))
	if len(r.Processes) == 0 {
		fmt.Fprintf(w, "  %s\n\n", styleDim.Render("no Claude processes found"))
		return
	}

	resources := make(map[int]model.ResourceSnapshot, len(r.Resources))
	for _, res := range r.Resources {
		resources[res.PID] = res
	}

	for _, p := range r.Processes {
		cpu := fmt.Sprintf("%.1f%% CPU", p.CPUPercent)
		switch {
		case p.CPUPercent > 80:
			cpu = styleBad.Render(cpu)
		case p.CPUPercent > 30:
			cpu = styleWarn.Render(cpu)
		}
		fmt.Fprintf(w, "\n  %s: %s, %.1f%% MEM, %d MB RSS, up %s\n",
			styleSection.Render(fmt.Sprintf("PID %d", p.PID)),
			cpu, p.MemPercent, p.RSSKb/1024, p.ElapsedTime)
		fmt.Fprintf(w, "  %s\n", styleDim.Render(truncate(p.Command, 80)))

		res, ok := resources[p.PID]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "    %s: %d open, %d threads\n",
			styleSub.Render("File Descriptors"), res.OpenFileCount, res.ThreadCount)
		if len(res.ByType) > 0 {
			fmt.Fprintf(w, "      Types: %s\n", formatTypeCounts(res.ByType))
		}
		if res.WatchedPathCount > 0 {
			fmt.Fprintf(w, "      Watched paths: %d\n", res.WatchedPathCount)
		}
		if len(res.NetworkConnections) > 0 {
			fmt.Fprintf(w, "      Network: %d connections\n", len(res.NetworkConnections))
		}
	}
	fmt.Fprintln(w)
}

func writeSample(w io.Writer, r *model.DiagnosticReport) {
	s := r.Sample
	if s == nil {
		return
	}
	header := fmt.Sprintf("STACK SAMPLE (PID %d, %ds, %d samples)", s.PID, s.DurationSeconds, s.TotalSamples)
	fmt.Fprintln(w, styleSection.Render(header))
	if s.Partial {
		fmt.Fprintf(w, "  %s\n", styleWarn.Render("DEGRADED: capture ended early, results are partial"))
	}
	if len(s.HotFunctions) > 0 {
		fmt.Fprintf(w, "  %s:\n", styleSub.Render("Hot Functions"))
		for i, hf := range s.HotFunctions {
			if i == 5 {
				break
			}
			fmt.Fprintf(w, "    %5d samples: %s\n", hf.Samples, hf.Function)
		}
	}
	fmt.Fprintln(w)
}

func writeTrace(w io.Writer, r *model.DiagnosticReport) {
	t := r.Trace
	if t == nil {
		return
	}
	header := fmt.Sprintf("SYSCALL TRACE (%s, %ds, %d events)", t.Tool, t.DurationSeconds, t.EventCount)
	fmt.Fprintln(w, styleSection.Render(header))
	if t.FallbackReason != "" {
		fmt.Fprintf(w, "  %s %s\n", styleWarn.Render("DEGRADED:"), t.FallbackReason)
	}
	if t.Partial {
		fmt.Fprintf(w, "  %s\n", styleWarn.Render("DEGRADED: capture ended early, results are partial"))
	}

	for i, st := range t.Stats {
		if i == 10 {
			fmt.Fprintf(w, "  %s\n", styleDim.Render(fmt.Sprintf("... %d more", len(t.Stats)-10)))
			break
		}
		fmt.Fprintf(w, "  %-16s %-8s %7d calls  %8dµs total  %7.1fµs avg",
			st.Name, st.Category, st.Count, st.TotalTimeUs, st.AvgTimeUs)
		if st.ErrorCount > 0 {
			fmt.Fprintf(w, "  %s", styleBad.Render(fmt.Sprintf("%d errors", st.ErrorCount)))
		}
		fmt.Fprintln(w)
	}

	if len(t.IOOps) > 0 {
		fmt.Fprintf(w, "  %s:\n", styleSub.Render("Recent file operations"))
		for _, op := range t.IOOps {
			fmt.Fprintf(w, "    %s %s\n", op.Syscall, styleDim.Render(op.Detail))
		}
	}
	if len(t.NetOps) > 0 {
		fmt.Fprintf(w, "  %s:\n", styleSub.Render("Recent network operations"))
		for _, op := range t.NetOps {
			fmt.Fprintf(w, "    %s %s\n", op.Syscall, styleDim.Render(op.Detail))
		}
	}
	fmt.Fprintln(w)
}

// writeDegradation lists skipped or degraded sections so the human report
// matches what the warnings array tells scripted consumers.
func writeDegradation(w io.Writer, r *model.DiagnosticReport) {
	if len(r.Warnings) == 0 {
		return
	}
	fmt.Fprintln(w, styleSection.Render("DEGRADED SECTIONS"))
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  %s %s: %s\n",
			styleWarn.Render("⚠"), warning.Subsystem, warning.Message)
	}
	fmt.Fprintln(w)
}

// formatTypeCounts renders the top descriptor types, highest count first.
func formatTypeCounts(byType map[string]int) string {
	type kv struct {
		name  string
		count int
	}
	sorted := make([]kv, 0, len(byType))
	for name, count := range byType {
		sorted = append(sorted, kv{name, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		parts[i] = fmt.Sprintf("%s:%d", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
