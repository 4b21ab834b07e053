package executor

import (
	"regexp"
	"strings"
)

// Shared text helpers for tool-output parsing. The per-tool parsers live
// next to their components (collector, sampler, tracer) so every format
// assumption about one tool is in one file.

// ansiEscapeRe matches ANSI terminal escape sequences (e.g. color codes).
var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;]*[mGKHF]`)

// StripANSI removes ANSI terminal escape sequences from s.
func StripANSI(s string) string {
	return ansiEscapeRe.ReplaceAllString(s, "")
}

// SplitColumns splits a line into at most n whitespace-delimited columns;
// the final column keeps its internal whitespace. Used for listings like ps
// where the trailing command field contains spaces.
func SplitColumns(line string, n int) []string {
	cols := make([]string, 0, n)
	rest := strings.TrimSpace(line)
	for len(cols) < n-1 && rest != "" {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			break
		}
		cols = append(cols, rest[:idx])
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	if rest != "" {
		cols = append(cols, rest)
	}
	return cols
}

// Lines splits raw output into trimmed non-empty lines.
func Lines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// FirstToken returns the first whitespace-delimited token of s.
func FirstToken(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		return s[:idx]
	}
	return s
}
