package observer

import (
	"syscall"
)

// OverheadSummary captures the tool's own resource consumption during one
// run: its CPU time plus the CPU time of every tool it spawned, and peak
// RSS. Included in report metadata so consumers can judge observer effect.
type OverheadSummary struct {
	CPUUserMs    int64 `json:"cpu_user_ms"`
	CPUSystemMs  int64 `json:"cpu_system_ms"`
	MaxRSSBytes  int64 `json:"max_rss_bytes"`
	Subprocesses int   `json:"subprocesses"`
}

// Overhead reads getrusage for self and reaped children and returns the
// combined cost. Call after all subprocesses have been waited on; children
// still running are not yet accounted by RUSAGE_CHILDREN.
func (t *PIDTracker) Overhead() OverheadSummary {
	var self, children syscall.Rusage
	_ = syscall.Getrusage(syscall.RUSAGE_SELF, &self)
	_ = syscall.Getrusage(syscall.RUSAGE_CHILDREN, &children)

	return OverheadSummary{
		CPUUserMs:    timevalMs(self.Utime) + timevalMs(children.Utime),
		CPUSystemMs:  timevalMs(self.Stime) + timevalMs(children.Stime),
		MaxRSSBytes:  maxInt64(int64(self.Maxrss), int64(children.Maxrss)),
		Subprocesses: t.SpawnCount(),
	}
}

func timevalMs(tv syscall.Timeval) int64 {
	return int64(tv.Sec)*1000 + int64(tv.Usec)/1000
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
