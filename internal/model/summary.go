package model

import "fmt"

// Report identity constants. SchemaVersion gates incompatible changes to the
// JSON contract; bump it when field meaning or shape changes.
const (
	ToolName      = "claude-diagnose"
	SchemaVersion = "1"
)

// ValidateSchema rejects reports written by an incompatible version.
func ValidateSchema(r *DiagnosticReport) error {
	if r.Metadata.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %q (want %q)",
			r.Metadata.SchemaVersion, SchemaVersion)
	}
	return nil
}

// BuildSummary computes the rollup over processes and diagnoses. Status is
// the worst severity present: any high finding makes the run critical, any
// medium degrades it.
func BuildSummary(r *DiagnosticReport) Summary {
	s := Summary{
		ProcessCount:   len(r.Processes),
		Status:         StatusOK,
		CriticalIssues: []string{},
		Warnings:       []string{},
	}

	for _, p := range r.Processes {
		s.TotalCPU += p.CPUPercent
		s.TotalMem += p.MemPercent
		s.TotalRSSMb += p.RSSKb / 1024
	}

	for _, d := range r.Diagnoses {
		switch d.Severity {
		case SeverityHigh:
			s.CriticalIssues = append(s.CriticalIssues, issueLine(d))
			s.Status = StatusCritical
		case SeverityMedium:
			s.Warnings = append(s.Warnings, issueLine(d))
			if s.Status == StatusOK {
				s.Status = StatusDegraded
			}
		}
	}
	return s
}

// issueLine renders one diagnosis for the summary lists. PID-scoped findings
// carry their target; system-wide ones stand alone.
func issueLine(d Diagnosis) string {
	if d.PID != 0 {
		return fmt.Sprintf("PID %d: %s", d.PID, d.Issue)
	}
	return d.Issue
}
