// Package output renders the diagnostic report: progress on stderr, JSON or
// a styled human report on stdout, and the flamegraph artifacts.
package output

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Progress reports pipeline steps to stderr so a long capture never looks
// hung. It is the user-facing channel; debug detail goes to the logger.
type Progress struct {
	w     io.Writer
	quiet bool
	start time.Time
}

// NewProgress creates a Progress reporter writing to stderr. Quiet mode
// drops everything.
func NewProgress(quiet bool) *Progress {
	return &Progress{w: os.Stderr, quiet: quiet, start: time.Now()}
}

// Step prints one elapsed-stamped progress line.
func (p *Progress) Step(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	fmt.Fprintf(p.w, "[%s] %s\n", elapsed, fmt.Sprintf(format, args...))
}
