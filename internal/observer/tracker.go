// Package observer tracks claude-diagnose's own footprint: which child
// tool PIDs it spawned (so the enumerator never reports them as Claude
// processes and the interrupt handler knows what to reap) and how much
// CPU/memory the run itself cost.
package observer

import (
	"os"
	"sync"
)

// PIDTracker is a thread-safe registry of the tool's own PID and all child
// diagnostic-tool PIDs spawned during the run.
type PIDTracker struct {
	mu       sync.RWMutex
	selfPID  int
	children map[int]string // pid -> tool name
	spawned  int            // total children over the run, including exited
}

// NewPIDTracker creates a PIDTracker seeded with the current process PID.
func NewPIDTracker() *PIDTracker {
	return &PIDTracker{
		selfPID:  os.Getpid(),
		children: make(map[int]string),
	}
}

// SelfPID returns the tool's own process ID.
func (t *PIDTracker) SelfPID() int {
	return t.selfPID
}

// Add registers a child process PID with its tool name.
func (t *PIDTracker) Add(pid int, tool string) {
	t.mu.Lock()
	t.children[pid] = tool
	t.spawned++
	t.mu.Unlock()
}

// Remove unregisters a child process PID after it exits.
func (t *PIDTracker) Remove(pid int) {
	t.mu.Lock()
	delete(t.children, pid)
	t.mu.Unlock()
}

// IsOwnPID returns true if pid is the tool itself or any tracked child.
func (t *PIDTracker) IsOwnPID(pid int) bool {
	if pid == t.selfPID {
		return true
	}
	t.mu.RLock()
	_, ok := t.children[pid]
	t.mu.RUnlock()
	return ok
}

// LivePIDs returns the currently tracked child PIDs. Non-empty after the
// run finishes means a subprocess was left behind.
func (t *PIDTracker) LivePIDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pids := make([]int, 0, len(t.children))
	for pid := range t.children {
		pids = append(pids, pid)
	}
	return pids
}

// SpawnCount returns the total number of children spawned during the run.
func (t *PIDTracker) SpawnCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.spawned
}
