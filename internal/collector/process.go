// Process enumeration: wraps ps and filters rows to the Claude CLI process
// family. The matching rule here is a shared contract with the watch-mode
// monitor and the menu-bar UI; changes must be mirrored there.
package collector

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/model"
	"claude-diagnose/internal/observer"
)

// Fixed substrings that identify a Claude CLI install regardless of how the
// binary was invoked.
const (
	installPathToken = ".claude/local"
	vendorPathToken  = "@anthropic-ai/claude-code"
)

// Commands containing these names are never family members: the diagnostic
// tool itself, the watch-mode monitor, and search utilities that merely
// carry the pattern as an argument.
var (
	selfNames = []string{"claude-diagnose", "claude-trace"}
	grepRe    = regexp.MustCompile(`(^|[\s/])grep(\s|$)`)
)

// MatchesFamily reports whether a ps command field belongs to the Claude
// CLI family. Matching is anchored: the executable-position token must be
// `claude` (bare or path-prefixed), or the command must contain one of the
// fixed install-path substrings. The app name appearing only inside
// argument text (e.g. a project directory called claude) does not match.
func MatchesFamily(command string) bool {
	for _, name := range selfNames {
		if strings.Contains(command, name) {
			return false
		}
	}
	if grepRe.MatchString(command) {
		return false
	}

	first := executor.FirstToken(command)
	if first != "" && path.Base(first) == "claude" {
		return true
	}
	return strings.Contains(command, installPathToken) ||
		strings.Contains(command, vendorPathToken)
}

// Enumerator lists the Claude process family via ps.
type Enumerator struct {
	runner  CommandRunner
	tracker *observer.PIDTracker // may be nil
	log     zerolog.Logger
}

// NewEnumerator creates an Enumerator. The tracker excludes the tool's own
// subprocesses from results independent of name matching.
func NewEnumerator(runner CommandRunner, tracker *observer.PIDTracker, log zerolog.Logger) *Enumerator {
	return &Enumerator{runner: runner, tracker: tracker, log: log}
}

// psColumns is the fixed ps invocation; the parser below is pinned to this
// column order.
var psColumns = []string{"-Ao", "pid,ppid,pcpu,pmem,rss,vsz,state,etime,command"}

// List returns all family members. ps missing or exiting non-zero is fatal
// for the whole run: with no process table there is nothing to report on.
func (e *Enumerator) List(ctx context.Context) ([]model.ProcessRecord, error) {
	raw, err := e.runner.Run(ctx, executor.ToolPS, psColumns...)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	if raw.ExitCode != 0 {
		return nil, fmt.Errorf("%w: ps exited %d: %s",
			executor.ErrToolUnavailable, raw.ExitCode, strings.TrimSpace(raw.Stderr))
	}

	var records []model.ProcessRecord
	lines := executor.Lines(raw.Stdout)
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		rec, ok := parsePSRow(line)
		if !ok {
			continue
		}
		if !MatchesFamily(rec.Command) {
			continue
		}
		if e.tracker != nil && e.tracker.IsOwnPID(rec.PID) {
			continue
		}
		records = append(records, rec)
	}

	e.log.Debug().Int("matched", len(records)).Int("rows", len(lines)-1).Msg("process enumeration done")
	return records, nil
}

// Find returns the single family record for pid, or ErrProcessNotFound when
// the PID is absent from the table or not a family member.
func (e *Enumerator) Find(ctx context.Context, pid int) (model.ProcessRecord, error) {
	records, err := e.List(ctx)
	if err != nil {
		return model.ProcessRecord{}, err
	}
	for _, rec := range records {
		if rec.PID == pid {
			return rec, nil
		}
	}
	return model.ProcessRecord{}, fmt.Errorf(
		"%w: PID %d not found or not a Claude process", executor.ErrProcessNotFound, pid)
}

// parsePSRow parses one ps output row into a record. Rows with too few
// columns or non-numeric leading fields (e.g. a corrupted line near a
// buffer cap) are skipped.
func parsePSRow(line string) (model.ProcessRecord, bool) {
	cols := executor.SplitColumns(line, 9)
	if len(cols) < 9 {
		return model.ProcessRecord{}, false
	}

	pid, err1 := strconv.Atoi(cols[0])
	ppid, err2 := strconv.Atoi(cols[1])
	cpu, err3 := strconv.ParseFloat(cols[2], 64)
	mem, err4 := strconv.ParseFloat(cols[3], 64)
	rss, err5 := strconv.ParseInt(cols[4], 10, 64)
	vsz, err6 := strconv.ParseInt(cols[5], 10, 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return model.ProcessRecord{}, false
		}
	}

	return model.ProcessRecord{
		PID:         pid,
		PPID:        ppid,
		CPUPercent:  cpu,
		MemPercent:  mem,
		RSSKb:       rss,
		VSZKb:       vsz,
		State:       cols[6],
		ElapsedTime: cols[7],
		Command:     cols[8],
	}, true
}
