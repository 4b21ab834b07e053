package output

import (
	"encoding/json"
	"fmt"
	"io"

	"claude-diagnose/internal/capability"
)

// WriteDoctorReport renders the capability checks as a table.
func WriteDoctorReport(w io.Writer, checks []capability.Check) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleBanner.Render("  CAPABILITY CHECK"))
	fmt.Fprintln(w)

	for _, c := range checks {
		mark := styleGood.Render("✓")
		if !c.OK {
			mark = styleBad.Render("✗")
		}
		fmt.Fprintf(w, "  %s %-22s %s\n", mark, c.Name, c.Detail)
		if c.Remedy != "" {
			fmt.Fprintf(w, "    %s %s\n", styleDim.Render("remedy:"), c.Remedy)
		}
	}

	fmt.Fprintln(w)
	if capability.AllOK(checks) {
		fmt.Fprintf(w, "  %s all checks passed\n\n", styleGood.Render("✓"))
	} else {
		fmt.Fprintf(w, "  %s some capabilities are unavailable\n\n", styleWarn.Render("⚠"))
	}
}

// WriteDoctorJSON emits the checks as a JSON array.
func WriteDoctorJSON(w io.Writer, checks []capability.Check) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(checks); err != nil {
		return fmt.Errorf("encode doctor report: %w", err)
	}
	return nil
}
