// Call-graph parsing for the output of the macOS sample tool. The format is
// a header, a "Call graph:" section of count-prefixed frames indented with a
// `+ ! : |` ladder, and a binary-images trailer. Only the call graph section
// is parsed; everything else is scanned for the thread count line.
package sampler

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/model"
)

// callFrame is one parsed call graph line. Depth is the byte length of the
// indentation ladder; sample counts nest (a parent's count covers its whole
// subtree).
type callFrame struct {
	depth int
	count int
	name  string
}

var (
	// frameRe matches a ladder prefix, a sample count, and the frame text.
	frameRe = regexp.MustCompile(`^([ +!:|]*)(\d+)\s+(\S.*)$`)

	threadCountRe = regexp.MustCompile(`(\d+)\s+threads?`)

	// ioFrameRe needs word boundaries: a bare substring check would count
	// every Thread_NNN frame as a read.
	ioFrameRe = regexp.MustCompile(`\b(read|write|pread|pwrite|readv|writev)\b`)

	gcFrameRe = regexp.MustCompile(`GCRuntime|Scavenge|MarkCompact`)
)

// Pattern matcher bits. Each matcher accumulates samples over the subtrees
// rooted at matching frames; a frame under an already-matching ancestor is
// not counted again.
const (
	matchFSEvents = 1 << iota
	matchIO
	matchEventPoll
	matchGC
	matchRunLoop
)

var frameMatchers = []struct {
	bit   int
	match func(name string) bool
}{
	{matchFSEvents, func(n string) bool {
		return strings.Contains(n, "FSEvents") || strings.Contains(n, "fseventsd")
	}},
	{matchIO, ioFrameRe.MatchString},
	{matchEventPoll, func(n string) bool {
		return strings.Contains(n, "kevent") || strings.Contains(n, "poll")
	}},
	{matchGC, gcFrameRe.MatchString},
	{matchRunLoop, func(n string) bool { return strings.Contains(n, "CFRunLoop") }},
}

// profile is the digested call graph: totals, ranked leaves, and per-matcher
// subtree sample counts.
type profile struct {
	threadCount  int
	totalSamples int
	hot          []model.HotFunction
	byMatcher    map[int]int
}

// analyze parses sample tool output into a profile. topN bounds the hot
// function list.
func analyze(content string, topN int) *profile {
	p := &profile{byMatcher: make(map[int]int)}

	if m := threadCountRe.FindStringSubmatch(content); m != nil {
		p.threadCount, _ = strconv.Atoi(m[1])
	}

	frames := parseFrames(content)
	if len(frames) == 0 {
		return p
	}

	minDepth := frames[0].depth
	for _, f := range frames {
		if f.depth < minDepth {
			minDepth = f.depth
		}
	}

	// Ancestor stack carries the union of matcher bits seen on the path to
	// the current frame, so each matcher counts a subtree's samples exactly
	// once at its topmost matching frame.
	type ancestor struct {
		depth int
		bits  int
	}
	var stack []ancestor

	leafCounts := make(map[string]int)
	for i, f := range frames {
		if f.depth == minDepth {
			p.totalSamples += f.count
		}

		for len(stack) > 0 && stack[len(stack)-1].depth >= f.depth {
			stack = stack[:len(stack)-1]
		}
		inherited := 0
		if len(stack) > 0 {
			inherited = stack[len(stack)-1].bits
		}
		bits := 0
		for _, m := range frameMatchers {
			if m.match(f.name) {
				bits |= m.bit
			}
		}
		for _, m := range frameMatchers {
			if bits&m.bit != 0 && inherited&m.bit == 0 {
				p.byMatcher[m.bit] += f.count
			}
		}
		stack = append(stack, ancestor{depth: f.depth, bits: bits | inherited})

		isLeaf := i == len(frames)-1 || frames[i+1].depth <= f.depth
		if isLeaf {
			if name := functionName(f.name); name != "" {
				leafCounts[name] += f.count
			}
		}
	}

	p.hot = rankFunctions(leafCounts, topN)
	return p
}

// parseFrames extracts call graph frames. Parsing is bounded to the section
// between "Call graph:" and the stack totals trailer.
func parseFrames(content string) []callFrame {
	var frames []callFrame
	inGraph := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "Call graph:" {
			inGraph = true
			continue
		}
		if !inGraph {
			continue
		}
		if strings.HasPrefix(trimmed, "Total number in stack") ||
			strings.HasPrefix(trimmed, "Binary Images:") {
			break
		}
		m := frameRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		count, err := strconv.Atoi(m[2])
		if err != nil || count <= 0 {
			continue
		}
		frames = append(frames, callFrame{depth: len(m[1]), count: count, name: m[3]})
	}
	return frames
}

// functionName reduces frame text to a reportable symbol: the portion before
// the "(in <image>)" annotation. Synthetic thread roots and unresolved
// addresses are dropped.
func functionName(frame string) string {
	name := frame
	if cut, _, ok := strings.Cut(name, "  (in "); ok {
		name = cut
	} else if cut, _, ok := strings.Cut(name, " (in "); ok {
		name = cut
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "???" || strings.HasPrefix(name, "Thread_") {
		return ""
	}
	return name
}

// rankFunctions sorts leaf sample counts descending, name ascending on ties
// for stable output.
func rankFunctions(counts map[string]int, topN int) []model.HotFunction {
	ranked := make([]model.HotFunction, 0, len(counts))
	for name, n := range counts {
		ranked = append(ranked, model.HotFunction{Function: name, Samples: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Samples != ranked[j].Samples {
			return ranked[i].Samples > ranked[j].Samples
		}
		return ranked[i].Function < ranked[j].Function
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// patterns evaluates the pathological-pattern rules over the profile. The
// flags are independent booleans; an empty result collapses to PatternNone so
// consumers never see a missing field.
func (p *profile) patterns(t config.Thresholds) []model.PatternFlag {
	var flags []model.PatternFlag

	ioSamples := p.byMatcher[matchIO]
	if p.byMatcher[matchFSEvents] > 0 && ioSamples == 0 {
		flags = append(flags, model.PatternFSEventsStorm)
	}
	if p.byMatcher[matchEventPoll] > t.EventLoopSamples && ioSamples == 0 {
		flags = append(flags, model.PatternEventLoopSpin)
	}
	if p.totalSamples > 0 &&
		float64(p.byMatcher[matchGC])/float64(p.totalSamples) > t.GCSampleRatio {
		flags = append(flags, model.PatternGCPressure)
	}
	if p.byMatcher[matchRunLoop] > t.RunLoopSamples {
		flags = append(flags, model.PatternRunLoopSpin)
	}

	if len(flags) == 0 {
		flags = []model.PatternFlag{model.PatternNone}
	}
	return flags
}
