package executor

// Tool names used across the diagnostic pipeline. Every external invocation
// goes through one of these so the capability doctor and the security
// checker see the same inventory.
const (
	ToolPS             = "ps"
	ToolLsof           = "lsof"
	ToolSample         = "sample"
	ToolDtrace         = "dtrace"
	ToolFsUsage        = "fs_usage"
	ToolMemoryPressure = "memory_pressure"
	ToolCsrutil        = "csrutil"
)

// ToolSpec describes one external tool: what it is for, whether it needs
// root, and what to tell the user when it cannot run.
type ToolSpec struct {
	Name      string
	Binary    string
	NeedsRoot bool
	Purpose   string
	Remedy    string
}

// Registry maps tool name to its specification. All of these ship with
// macOS; a missing entry usually means a stripped-down or non-darwin host.
var Registry = map[string]*ToolSpec{
	ToolPS: {
		Name: ToolPS, Binary: "ps",
		Purpose: "process enumeration",
		Remedy:  "ps ships with macOS; check PATH and /bin",
	},
	ToolLsof: {
		Name: ToolLsof, Binary: "lsof",
		Purpose: "file descriptor and socket inspection",
		Remedy:  "lsof ships with macOS under /usr/sbin",
	},
	ToolSample: {
		Name: ToolSample, Binary: "sample",
		Purpose: "stack sampling",
		Remedy:  "sample requires the macOS command line tools (xcode-select --install)",
	},
	ToolDtrace: {
		Name: ToolDtrace, Binary: "dtrace", NeedsRoot: true,
		Purpose: "syscall tracing",
		Remedy:  "run with sudo; SIP may still block tracing of protected binaries",
	},
	ToolFsUsage: {
		Name: ToolFsUsage, Binary: "fs_usage", NeedsRoot: true,
		Purpose: "filesystem event tracing (dtrace fallback)",
		Remedy:  "run with sudo",
	},
	ToolMemoryPressure: {
		Name: ToolMemoryPressure, Binary: "memory_pressure",
		Purpose: "system memory pressure level",
		Remedy:  "memory_pressure ships with macOS under /usr/bin",
	},
	ToolCsrutil: {
		Name: ToolCsrutil, Binary: "csrutil",
		Purpose: "System Integrity Protection status",
		Remedy:  "csrutil ships with macOS under /usr/bin",
	},
}

// ToolNames returns the registry keys in a stable order for display.
func ToolNames() []string {
	return []string{
		ToolPS,
		ToolLsof,
		ToolSample,
		ToolDtrace,
		ToolFsUsage,
		ToolMemoryPressure,
		ToolCsrutil,
	}
}
