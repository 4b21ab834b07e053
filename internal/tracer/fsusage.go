package tracer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"claude-diagnose/internal/model"
)

// fs_usage line shape: `HH:MM:SS.ffffff  call  [args...]  elapsed[W]
// proc.tid`. The W marker flags a call that blocked; a bracketed token among
// the args is the errno of a failed call.
var (
	fsUsageTimeRe  = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\.(\d{1,6})$`)
	fsUsageErrnoRe = regexp.MustCompile(`\[\s*\d+\]`)
)

// parseFsUsageOutput folds fs_usage stdout into the accumulator. singlePID
// is attributed to every event when exactly one PID was traced; fs_usage
// reports proc.tid, not pid, so multi-target traces carry PID 0.
func parseFsUsageOutput(raw string, singlePID int, acc *Accumulator) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ev, ok := parseFsUsageLine(line, singlePID)
		if !ok {
			acc.Skip()
			continue
		}
		acc.Add(ev)
	}
}

func parseFsUsageLine(line string, singlePID int) (model.TraceEvent, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return model.TraceEvent{}, false
	}

	ts, ok := parseFsUsageTimestamp(fields[0])
	if !ok {
		return model.TraceEvent{}, false
	}

	// Last field is proc.tid, second to last the elapsed seconds with an
	// optional W suffix.
	elapsed := strings.TrimSuffix(fields[len(fields)-2], "W")
	secs, err := strconv.ParseFloat(elapsed, 64)
	if err != nil {
		return model.TraceEvent{}, false
	}

	// The errno token may split across fields ("[ 2]"), so test the joined
	// argument text.
	args := fields[2 : len(fields)-2]
	argText := strings.Join(args, " ")
	isError := fsUsageErrnoRe.MatchString(argText)

	return model.TraceEvent{
		TimestampUs: ts,
		PID:         singlePID,
		SyscallName: NormalizeSyscallName(fields[1]),
		DurationUs:  int64(math.Round(secs * 1e6)),
		ArgsSummary: argText,
		IsError:     isError,
	}, true
}

// parseFsUsageTimestamp converts HH:MM:SS.ffffff to µs since midnight.
func parseFsUsageTimestamp(tok string) (int64, bool) {
	m := fsUsageTimeRe.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.ParseInt(m[1], 10, 64)
	min, _ := strconv.ParseInt(m[2], 10, 64)
	s, _ := strconv.ParseInt(m[3], 10, 64)
	frac := m[4]
	for len(frac) < 6 {
		frac += "0"
	}
	us, _ := strconv.ParseInt(frac, 10, 64)
	return ((h*60+min)*60+s)*1e6 + us, true
}
