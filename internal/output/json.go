package output

import (
	"encoding/json"
	"fmt"
	"io"

	"claude-diagnose/internal/model"
)

// NoProcessesMessage is the answer when discovery matched nothing and no
// PID was requested. A run that found no Claude processes is still a
// successful run.
const NoProcessesMessage = "No Claude Code CLI processes found"

// WriteNoProcessesJSON emits the no-matches message as a minimal error
// object instead of a report whose sections are all empty.
func WriteNoProcessesJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(map[string]string{"error": NoProcessesMessage}); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteJSON serializes the report as indented JSON. Field names are the
// contract with the watch-mode monitor and the menu-bar UI.
func WriteJSON(w io.Writer, report *model.DiagnosticReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
