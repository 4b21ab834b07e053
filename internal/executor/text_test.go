package executor

import (
	"reflect"
	"testing"
)

func TestStripANSI(t *testing.T) {
	in := "\x1b[1mPID\x1b[0m  \x1b[32mCOMMAND\x1b[0m"
	want := "PID  COMMAND"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI = %q, want %q", got, want)
	}
}

func TestSplitColumns(t *testing.T) {
	tests := []struct {
		name string
		line string
		n    int
		want []string
	}{
		{
			name: "command keeps internal whitespace",
			line: "  501   1  0.0  0.1  1234  5678 S 01:02 claude --help me",
			n:    9,
			want: []string{"501", "1", "0.0", "0.1", "1234", "5678", "S", "01:02", "claude --help me"},
		},
		{
			name: "fewer fields than requested",
			line: "a b",
			n:    4,
			want: []string{"a", "b"},
		},
		{
			name: "tabs mixed with spaces",
			line: "1\t2\tthree four",
			n:    3,
			want: []string{"1", "2", "three four"},
		},
		{
			name: "empty line",
			line: "   ",
			n:    3,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitColumns(tt.line, tt.n)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitColumns = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestLines(t *testing.T) {
	raw := "first\r\n\n  \nsecond\n"
	got := Lines(raw)
	want := []string{"first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lines = %#v, want %#v", got, want)
	}
}

func TestFirstToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"claude --help", "claude"},
		{"  /usr/local/bin/claude  ", "/usr/local/bin/claude"},
		{"single", "single"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstToken(tt.in); got != tt.want {
			t.Errorf("FirstToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
