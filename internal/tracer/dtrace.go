package tracer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"claude-diagnose/internal/model"
)

// pathDetailSyscalls get an extra entry probe printing the copied-in path
// argument; connect gets the same treatment with a sockaddr decode.
var pathDetailSyscalls = []string{"open", "stat", "access", "unlink"}

// buildDtraceProgram generates the D program for one tracing session. One
// line per completed syscall: `<ts_us> <pid> <name> <dur_us> <errno>`, plus
// `detail <name> <arg>` lines from the detail probes, terminated by a tick
// probe after the capture window.
func buildDtraceProgram(pids []int, durationSecs int, focus string) string {
	var b strings.Builder

	pred := pidPredicate(pids)
	entry, ret := probeSpecs(focus)

	fmt.Fprintf(&b, "%s\n/%s/\n{\n\tself->ts = timestamp;\n}\n\n", entry, pred)
	fmt.Fprintf(&b, "%s\n/self->ts/\n{\n", ret)
	b.WriteString("\tprintf(\"%d %d %s %d %d\\n\", timestamp / 1000, pid, probefunc, (timestamp - self->ts) / 1000, errno);\n")
	b.WriteString("\tself->ts = 0;\n}\n\n")

	if focus != FocusNetwork {
		for _, name := range pathDetailSyscalls {
			fmt.Fprintf(&b, "syscall::%s*:entry\n/%s/\n{\n\tprintf(\"detail %%s %%s\\n\", probefunc, copyinstr(arg0));\n}\n\n", name, pred)
		}
	}
	if focus != FocusIO {
		fmt.Fprintf(&b, "syscall::connect*:entry\n/%s/\n{\n", pred)
		b.WriteString("\tthis->sa = (struct sockaddr_in *)copyin(arg1, sizeof (struct sockaddr_in));\n")
		b.WriteString("\tprintf(\"detail %s %s:%d\\n\", probefunc, inet_ntoa(&this->sa->sin_addr), ntohs(this->sa->sin_port));\n}\n\n")
	}

	fmt.Fprintf(&b, "tick-%ds\n{\n\texit(0);\n}\n", durationSecs)
	return b.String()
}

// pidPredicate builds the multi-pid predicate for one session.
func pidPredicate(pids []int) string {
	terms := make([]string, len(pids))
	for i, pid := range pids {
		terms[i] = fmt.Sprintf("pid == %d", pid)
	}
	return strings.Join(terms, " || ")
}

// probeSpecs returns the entry and return probe lists for the focus. A
// focused session only instruments the syscalls in its category; `all`
// instruments everything.
func probeSpecs(focus string) (entry, ret string) {
	var names []string
	switch focus {
	case FocusIO:
		names = categoryNames(CategoryFile)
	case FocusNetwork:
		names = categoryNames(CategoryNetwork)
	default:
		return "syscall:::entry", "syscall:::return"
	}
	sort.Strings(names)
	entries := make([]string, len(names))
	returns := make([]string, len(names))
	for i, name := range names {
		entries[i] = fmt.Sprintf("syscall::%s*:entry", name)
		returns[i] = fmt.Sprintf("syscall::%s*:return", name)
	}
	return strings.Join(entries, ",\n"), strings.Join(returns, ",\n")
}

// parseDtraceOutput folds dtrace stdout into the accumulator. Detail lines
// arrive at syscall entry, ahead of the completion line for the same call,
// so the latest detail per name is held pending and attached to the next
// completion.
func parseDtraceOutput(raw string, acc *Accumulator) {
	pending := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		if fields[0] == "detail" {
			if len(fields) < 3 {
				acc.Skip()
				continue
			}
			name := NormalizeSyscallName(fields[1])
			pending[name] = strings.Join(fields[2:], " ")
			continue
		}

		if len(fields) != 5 {
			acc.Skip()
			continue
		}
		ts, err1 := strconv.ParseInt(fields[0], 10, 64)
		pid, err2 := strconv.Atoi(fields[1])
		dur, err3 := strconv.ParseInt(fields[3], 10, 64)
		errno, err4 := strconv.Atoi(fields[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			acc.Skip()
			continue
		}

		name := NormalizeSyscallName(fields[2])
		detail := pending[name]
		delete(pending, name)

		acc.Add(model.TraceEvent{
			TimestampUs: ts,
			PID:         pid,
			SyscallName: name,
			DurationUs:  dur,
			ArgsSummary: detail,
			IsError:     errno != 0,
		})
	}
}
