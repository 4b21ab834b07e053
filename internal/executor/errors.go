package executor

import (
	"errors"
	"strings"
)

// Sentinel errors for external tool failures. Callers classify with errors.Is
// and decide whether to skip a section, fall back, or abort the run.
var (
	// ErrToolUnavailable means the required binary is missing from the
	// allowed paths.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrToolPermissionDenied means the tool exists but refused to run,
	// typically due to missing root privileges or System Integrity
	// Protection.
	ErrToolPermissionDenied = errors.New("tool permission denied")

	// ErrProcessNotFound means the target PID exited between enumeration
	// and inspection. Expected race, non-fatal.
	ErrProcessNotFound = errors.New("process not found")

	// ErrParse means tool output did not match the expected shape at all
	// (zero lines parsed when some were expected).
	ErrParse = errors.New("output parse failed")

	// ErrPartialCapture means a timeout or early process exit truncated a
	// sampling or tracing session. Partial output is still usable.
	ErrPartialCapture = errors.New("partial capture")

	// ErrInvalidArgument means CLI input validation failed before any
	// subprocess was spawned.
	ErrInvalidArgument = errors.New("invalid argument")
)

// permissionPhrases are stderr fragments that indicate a privilege or SIP
// refusal rather than a generic failure. Pinned to real dtrace/lsof/sample
// messages on recent macOS releases.
var permissionPhrases = []string{
	"system integrity protection",
	"dtrace cannot control executables signed with restricted entitlements",
	"operation not permitted",
	"permission denied",
	"requires additional privileges",
	"must be run as root",
	"dtrace: failed to initialize",
}

// processGonePhrases indicate the target PID no longer exists.
var processGonePhrases = []string{
	"no such process",
	"process not found",
	"cannot examine process",
	"can't find process",
}

// ClassifyStderr maps tool stderr text to a sentinel error, or nil when the
// text carries no recognizable failure signature.
func ClassifyStderr(stderr string) error {
	lower := strings.ToLower(stderr)
	for _, p := range processGonePhrases {
		if strings.Contains(lower, p) {
			return ErrProcessNotFound
		}
	}
	for _, p := range permissionPhrases {
		if strings.Contains(lower, p) {
			return ErrToolPermissionDenied
		}
	}
	return nil
}
