// Package model defines all data types for the claude-diagnose report.
// These types are the JSON contract consumed by the watch-mode monitor and
// the menu-bar UI; field names must stay stable across releases.
// Schema version: 1
package model

// --- Report: top-level output ---

// DiagnosticReport is the complete output document for one invocation.
// Optional sections are nil when their subsystem was not requested or was
// skipped; every skip is mirrored in Warnings so scripted consumers can
// detect degradation without guessing.
type DiagnosticReport struct {
	Metadata  Metadata           `json:"metadata"`
	Target    string             `json:"target"` // "all" or a single PID
	Processes []ProcessRecord    `json:"processes"`
	Resources []ResourceSnapshot `json:"resources,omitempty"`
	Sample    *SampleResult      `json:"sample,omitempty"`
	Trace     *TraceResult       `json:"trace,omitempty"`
	System    *SystemInfo        `json:"system,omitempty"`
	Diagnoses []Diagnosis        `json:"diagnoses"`
	Summary   Summary            `json:"summary"`
	Warnings  []Warning          `json:"warnings,omitempty"`
}

// Metadata identifies the diagnostic run.
type Metadata struct {
	Tool          string    `json:"tool"`
	Version       string    `json:"version"`
	SchemaVersion string    `json:"schema_version"`
	Generated     string    `json:"generated"` // RFC3339
	Hostname      string    `json:"hostname"`
	OSVersion     string    `json:"os_version"` // kernel release
	Platform      string    `json:"platform"`
	DurationMs    int64     `json:"duration_ms"`
	Overhead      *Overhead `json:"overhead,omitempty"`
}

// Overhead captures the tool's own resource cost for the run.
type Overhead struct {
	CPUUserMs    int64 `json:"cpu_user_ms"`
	CPUSystemMs  int64 `json:"cpu_system_ms"`
	MaxRSSBytes  int64 `json:"max_rss_bytes"`
	Subprocesses int   `json:"subprocesses"`
}

// --- Processes ---

// ProcessRecord is one parsed ps row for a family member. Identity is the
// OS pid, which may be reused after exit; records never outlive one run.
type ProcessRecord struct {
	PID         int     `json:"pid"`
	PPID        int     `json:"ppid"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	RSSKb       int64   `json:"rss_kb"`
	VSZKb       int64   `json:"vsz_kb"`
	State       string  `json:"state"`
	ElapsedTime string  `json:"elapsed_time"`
	Command     string  `json:"command"`
}

// --- Resource inspection ---

// ConnectionInfo is one open network socket from the descriptor listing.
type ConnectionInfo struct {
	Type string `json:"type"` // lsof TYPE column: IPv4, IPv6
	Name string `json:"name"` // lsof NAME column: addr->addr (STATE)
}

// ResourceSnapshot is the per-PID descriptor census.
type ResourceSnapshot struct {
	PID                int              `json:"pid"`
	OpenFileCount      int              `json:"open_file_count"`
	ThreadCount        int              `json:"thread_count"`
	ByType             map[string]int   `json:"by_type,omitempty"`
	WatchedPathCount   int              `json:"watched_path_count"`
	WatchedPaths       []string         `json:"watched_paths,omitempty"`
	NetworkConnections []ConnectionInfo `json:"network_connections,omitempty"`
	FDLeakSuspected    bool             `json:"fd_leak_suspected"`
}

// --- Stack sampling ---

// PatternFlag names a known pathological pattern in sampled stacks.
type PatternFlag string

const (
	PatternNone          PatternFlag = "None"
	PatternFSEventsStorm PatternFlag = "FSEventsStorm"
	PatternEventLoopSpin PatternFlag = "EventLoopSpin"
	PatternGCPressure    PatternFlag = "GCPressure"
	PatternRunLoopSpin   PatternFlag = "RunLoopSpin"
)

// HotFunction is one ranked entry from the sampled call tree.
type HotFunction struct {
	Function string `json:"function"`
	Samples  int    `json:"samples"`
}

// SampleResult is the outcome of one sampling run against one PID.
type SampleResult struct {
	PID              int           `json:"pid"`
	DurationSeconds  int           `json:"duration_seconds"`
	ThreadCount      int           `json:"thread_count"`
	TotalSamples     int           `json:"total_samples"`
	HotFunctions     []HotFunction `json:"hot_functions"`
	DetectedPatterns []PatternFlag `json:"detected_patterns"`
	Partial          bool          `json:"partial,omitempty"`
	SampleFile       string        `json:"sample_file,omitempty"`
}

// --- Syscall tracing ---

// TraceEvent is the atomic unit parsed from one tracer output line.
// Ephemeral: consumed into SyscallStat accumulation and op samples,
// never serialized.
type TraceEvent struct {
	TimestampUs int64
	PID         int
	SyscallName string
	DurationUs  int64
	ArgsSummary string
	IsError     bool
}

// SyscallStat is the per-syscall aggregate. Invariant: AvgTimeUs equals
// TotalTimeUs / Count, and no stat exists with Count == 0.
type SyscallStat struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Count       int64   `json:"count"`
	TotalTimeUs int64   `json:"total_time_us"`
	AvgTimeUs   float64 `json:"avg_time_us"`
	ErrorCount  int64   `json:"error_count"`
}

// OpSample is one retained raw operation shown in the report.
type OpSample struct {
	Syscall string `json:"syscall"`
	Detail  string `json:"detail"` // path for I/O ops, address for network ops
}

// Tracer tool names recorded on TraceResult.
const (
	TraceToolDtrace  = "dtrace"
	TraceToolFsUsage = "fs_usage"
)

// TraceResult is the aggregated outcome of one tracing session.
type TraceResult struct {
	PIDs            []int         `json:"pids"`
	DurationSeconds int           `json:"duration_seconds"`
	Tool            string        `json:"tool"`
	FallbackReason  string        `json:"fallback_reason,omitempty"`
	Focus           string        `json:"focus"` // all | io | network
	Stats           []SyscallStat `json:"stats"`
	IOOps           []OpSample    `json:"io_ops,omitempty"`
	NetOps          []OpSample    `json:"net_ops,omitempty"`
	EventCount      int64         `json:"event_count"`
	ParseSkipped    int64         `json:"parse_skipped,omitempty"`
	Partial         bool          `json:"partial,omitempty"`
}

// CallTreeNode is one frame of the flamegraph tree. The tree is fixed at two
// levels below the root (category, then syscall) so it is acyclic by
// construction; leaf SelfWeight is the syscall's call count, not its time.
type CallTreeNode struct {
	Label      string          `json:"label"`
	Category   string          `json:"category,omitempty"`
	SelfWeight int64           `json:"self_weight"`
	Children   []*CallTreeNode `json:"children,omitempty"`
}

// --- Diagnoses and degradation ---

// Severity levels for diagnoses.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Diagnosis is one synthesized finding with a remedy.
type Diagnosis struct {
	Severity       string `json:"severity"`
	Issue          string `json:"issue"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	PID            int    `json:"pid,omitempty"`
}

// Warning codes for the top-level degradation list.
const (
	WarnToolUnavailable  = "tool_unavailable"
	WarnPermissionDenied = "permission_denied"
	WarnProcessNotFound  = "process_not_found"
	WarnParseErrors      = "parse_errors"
	WarnPartialCapture   = "partial_capture"
	WarnFallback         = "fallback"
)

// Warning records a degraded or skipped section so scripted consumers can
// detect it without diffing the report shape.
type Warning struct {
	Subsystem string `json:"subsystem"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// --- System ---

// SystemInfo describes host-level state relevant to the diagnosis.
type SystemInfo struct {
	Memory MemoryPressure `json:"memory"`
}

// Memory pressure levels reported by the system.
const (
	PressureNormal   = "normal"
	PressureWarning  = "warning"
	PressureCritical = "critical"
	PressureUnknown  = "unknown"
)

// MemoryPressure is the system-wide memory state.
type MemoryPressure struct {
	PressureLevel string `json:"pressure_level"`
	FreeMemoryMB  int64  `json:"free_memory_mb"`
	TotalMemoryMB int64  `json:"total_memory_mb"`
}

// --- Summary ---

// Overall report status, derived from the worst diagnosis severity.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// Summary is the pre-computed rollup for quick consumption.
type Summary struct {
	ProcessCount   int      `json:"process_count"`
	TotalCPU       float64  `json:"total_cpu_percent"`
	TotalMem       float64  `json:"total_mem_percent"`
	TotalRSSMb     int64    `json:"total_rss_mb"`
	Status         string   `json:"status"`
	CriticalIssues []string `json:"critical_issues"`
	Warnings       []string `json:"warnings"`
}
