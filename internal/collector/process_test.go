package collector

import (
	"context"
	"errors"
	"testing"

	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/logging"
	"claude-diagnose/internal/observer"
)

func TestMatchesFamily(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"bare invocation", "claude", true},
		{"with flags", "claude --help", true},
		{"absolute path", "/usr/local/bin/claude --resume", true},
		{"relative path", "./claude chat", true},
		{"node vendor path", "node /opt/node_modules/@anthropic-ai/claude-code/cli.js", true},
		{"local install path", "/Users/dev/.claude/local/claude", true},

		{"grep for the pattern", "grep claude", false},
		{"grep path-prefixed", "/usr/bin/grep -r claude .", false},
		{"self exclusion", "claude-diagnose --deep", false},
		{"monitor exclusion", "claude-trace -w 5", false},
		{"app name only in argument", "code /Users/claude/project/file.js", false},
		{"project dir named claude", "vim /home/user/claude-notes.txt", false},
		{"unrelated process", "/usr/sbin/mDNSResponder", false},
		{"substring of another binary", "claudette --run", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesFamily(tt.command); got != tt.want {
				t.Errorf("MatchesFamily(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

// psFixture is captured `ps -Ao pid,ppid,pcpu,pmem,rss,vsz,state,etime,command`
// output, trimmed to the interesting rows.
const psFixture = `  PID  PPID  %CPU %MEM    RSS      VSZ STAT     ELAPSED COMMAND
  100     1  42.5  1.2 204800 40961024 R       01:02:03 /usr/local/bin/claude --help
  200   199   0.0  0.1   8192  4096000 S          05:10 vim /home/user/claude-notes.txt
  300     1   3.1  0.8 102400 30720000 S    01-02:03:04 node /opt/node_modules/@anthropic-ai/claude-code/cli.js
  400   300   0.0  0.0   1024  4096000 S          00:01 grep claude
  500     1   1.0  0.2  20480  8192000 S          12:34 claude
garbage line that does not parse
`

func TestEnumeratorList(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout(executor.ToolPS, psFixture)

	enum := NewEnumerator(runner, nil, logging.Discard())
	records, err := enum.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	wantPIDs := []int{100, 300, 500}
	if len(records) != len(wantPIDs) {
		t.Fatalf("got %d records, want %d: %+v", len(records), len(wantPIDs), records)
	}
	for i, want := range wantPIDs {
		if records[i].PID != want {
			t.Errorf("records[%d].PID = %d, want %d", i, records[i].PID, want)
		}
	}

	first := records[0]
	if first.PPID != 1 || first.CPUPercent != 42.5 || first.RSSKb != 204800 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Command != "/usr/local/bin/claude --help" {
		t.Errorf("command = %q", first.Command)
	}
	if first.ElapsedTime != "01:02:03" {
		t.Errorf("elapsed = %q", first.ElapsedTime)
	}
}

func TestEnumeratorExcludesOwnChildren(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout(executor.ToolPS, psFixture)

	tracker := observer.NewPIDTracker()
	tracker.Add(500, "sample")

	enum := NewEnumerator(runner, tracker, logging.Discard())
	records, err := enum.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, rec := range records {
		if rec.PID == 500 {
			t.Error("own child PID 500 leaked into enumeration")
		}
	}
}

func TestEnumeratorIdempotent(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout(executor.ToolPS, psFixture)
	enum := NewEnumerator(runner, nil, logging.Discard())

	a, err := enum.List(context.Background())
	if err != nil {
		t.Fatalf("first List: %v", err)
	}
	b, err := enum.List(context.Background())
	if err != nil {
		t.Fatalf("second List: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("runs differ: %d vs %d records", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("record %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestEnumeratorToolUnavailable(t *testing.T) {
	runner := newFakeRunner() // no ps output registered

	enum := NewEnumerator(runner, nil, logging.Discard())
	_, err := enum.List(context.Background())
	if !errors.Is(err, executor.ErrToolUnavailable) {
		t.Errorf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestEnumeratorNonZeroExit(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[executor.ToolPS] = &executor.RawOutput{
		ExitCode: 1,
		Stderr:   "ps: illegal option",
		State:    executor.StateCompleted,
	}

	enum := NewEnumerator(runner, nil, logging.Discard())
	_, err := enum.List(context.Background())
	if !errors.Is(err, executor.ErrToolUnavailable) {
		t.Errorf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestFind(t *testing.T) {
	runner := newFakeRunner()
	runner.stdout(executor.ToolPS, psFixture)
	enum := NewEnumerator(runner, nil, logging.Discard())

	rec, err := enum.Find(context.Background(), 100)
	if err != nil {
		t.Fatalf("Find(100): %v", err)
	}
	if rec.PID != 100 {
		t.Errorf("PID = %d, want 100", rec.PID)
	}

	// PID 200 exists in the table but is not a family member.
	_, err = enum.Find(context.Background(), 200)
	if !errors.Is(err, executor.ErrProcessNotFound) {
		t.Errorf("Find(200) err = %v, want ErrProcessNotFound", err)
	}

	_, err = enum.Find(context.Background(), 99999)
	if !errors.Is(err, executor.ErrProcessNotFound) {
		t.Errorf("Find(99999) err = %v, want ErrProcessNotFound", err)
	}
}
