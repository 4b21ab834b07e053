package tracer

import (
	"sort"
	"strings"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/model"
)

// Trace focus values, shared with the CLI flags and the JSON contract.
const (
	FocusAll     = "all"
	FocusIO      = "io"
	FocusNetwork = "network"
)

// NormalizeSyscallName removes tool-specific decoration so dtrace and
// fs_usage spellings of the same call aggregate together: leading
// underscores, the _nocancel variant suffix, and the 64-bit ABI suffix.
func NormalizeSyscallName(name string) string {
	name = strings.TrimPrefix(name, "__")
	name = strings.TrimSuffix(name, "_nocancel")
	name = strings.TrimSuffix(name, "64")
	return name
}

// Accumulator folds trace events into per-syscall stats and bounded op
// samples. Focus filtering happens here so both tracers share it.
type Accumulator struct {
	focus   string
	limits  config.Limits
	stats   map[string]*model.SyscallStat
	ioOps   []model.OpSample
	netOps  []model.OpSample
	events  int64
	skipped int64
}

// NewAccumulator creates an Accumulator for the given focus.
func NewAccumulator(focus string, limits config.Limits) *Accumulator {
	return &Accumulator{
		focus:  focus,
		limits: limits,
		stats:  make(map[string]*model.SyscallStat),
	}
}

// Add folds one event in. Events outside the focus category are dropped
// entirely so a focused trace never reports off-focus stats.
func (a *Accumulator) Add(ev model.TraceEvent) {
	name := NormalizeSyscallName(ev.SyscallName)
	cat := Categorize(name)
	switch a.focus {
	case FocusIO:
		if cat != CategoryFile {
			return
		}
	case FocusNetwork:
		if cat != CategoryNetwork {
			return
		}
	}

	a.events++
	st, ok := a.stats[name]
	if !ok {
		st = &model.SyscallStat{Name: name, Category: cat}
		a.stats[name] = st
	}
	st.Count++
	st.TotalTimeUs += ev.DurationUs
	if ev.IsError {
		st.ErrorCount++
	}

	if ev.ArgsSummary == "" {
		return
	}
	switch cat {
	case CategoryFile:
		a.ioOps = appendBounded(a.ioOps, model.OpSample{Syscall: name, Detail: ev.ArgsSummary}, a.limits.OpSamples)
	case CategoryNetwork:
		a.netOps = appendBounded(a.netOps, model.OpSample{Syscall: name, Detail: ev.ArgsSummary}, a.limits.OpSamples)
	}
}

// appendBounded keeps the most recent max entries.
func appendBounded(ops []model.OpSample, op model.OpSample, max int) []model.OpSample {
	ops = append(ops, op)
	if max > 0 && len(ops) > max {
		ops = ops[1:]
	}
	return ops
}

// Skip counts a malformed line.
func (a *Accumulator) Skip() { a.skipped++ }

// Events returns the number of folded events.
func (a *Accumulator) Events() int64 { return a.events }

// Skipped returns the number of malformed lines.
func (a *Accumulator) Skipped() int64 { return a.skipped }

// Stats returns the aggregates ordered by total time descending, name
// ascending on ties. Every stat has Count > 0 and AvgTimeUs equal to
// TotalTimeUs / Count.
func (a *Accumulator) Stats() []model.SyscallStat {
	out := make([]model.SyscallStat, 0, len(a.stats))
	for _, st := range a.stats {
		s := *st
		s.AvgTimeUs = float64(s.TotalTimeUs) / float64(s.Count)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTimeUs != out[j].TotalTimeUs {
			return out[i].TotalTimeUs > out[j].TotalTimeUs
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Ops returns the retained I/O and network operation samples.
func (a *Accumulator) Ops() (io, net []model.OpSample) {
	return a.ioOps, a.netOps
}
