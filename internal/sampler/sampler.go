// Package sampler captures and digests call stacks of a running process via
// the macOS sample tool.
package sampler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"claude-diagnose/internal/config"
	"claude-diagnose/internal/executor"
	"claude-diagnose/internal/model"
)

// CommandRunner is the subprocess contract the sampler needs.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) (*executor.RawOutput, error)
	Available(tool string) bool
}

// Sampler drives one sampling session per PID.
type Sampler struct {
	runner   CommandRunner
	cfg      config.Config
	log      zerolog.Logger
	readFile func(string) ([]byte, error) // os.ReadFile, swapped in tests
}

// New creates a Sampler.
func New(runner CommandRunner, cfg config.Config, log zerolog.Logger) *Sampler {
	return &Sampler{runner: runner, cfg: cfg, log: log, readFile: os.ReadFile}
}

// sampleFilePath is where the sample tool writes its report. The tool owns
// the file contents; we only read it back.
func sampleFilePath(pid int) string {
	return fmt.Sprintf("/tmp/claude_sample_%d.txt", pid)
}

// Run samples pid for the given duration and parses the written report. The
// subprocess deadline is duration plus the configured startup grace; if the
// target exits mid-sample or the tool overruns, whatever was written is
// still parsed and the result is marked partial. An error is returned only
// when no usable output exists.
func (s *Sampler) Run(ctx context.Context, pid int, duration time.Duration) (*model.SampleResult, error) {
	secs := int(duration / time.Second)
	if secs < 1 {
		secs = 1
	}
	file := sampleFilePath(pid)

	runCtx, cancel := context.WithTimeout(ctx, duration+s.cfg.Durations.SampleGrace)
	defer cancel()

	s.log.Debug().Int("pid", pid).Int("seconds", secs).Msg("sampling process")
	raw, err := s.runner.Run(runCtx, executor.ToolSample,
		strconv.Itoa(pid), strconv.Itoa(secs), "-file", file)

	var runErr error
	switch {
	case err != nil:
		runErr = fmt.Errorf("sample PID %d: %w", pid, err)
	case raw.State == executor.StateTimedOut:
		runErr = fmt.Errorf("%w: sample overran its deadline for PID %d",
			executor.ErrPartialCapture, pid)
	case raw.ExitCode != 0:
		if cls := executor.ClassifyStderr(raw.Stderr); cls != nil {
			runErr = fmt.Errorf("sample PID %d: %w", pid, cls)
		} else {
			runErr = fmt.Errorf("sample PID %d exited %d: %s",
				pid, raw.ExitCode, strings.TrimSpace(raw.Stderr))
		}
	}

	content, readErr := s.readFile(file)
	if len(bytes.TrimSpace(content)) == 0 {
		if runErr != nil {
			return nil, runErr
		}
		if readErr != nil {
			return nil, fmt.Errorf("read sample output for PID %d: %w", pid, readErr)
		}
		return nil, fmt.Errorf("%w: sample wrote no data for PID %d", executor.ErrParse, pid)
	}

	prof := analyze(string(content), s.cfg.Limits.HotFunctions)
	result := &model.SampleResult{
		PID:              pid,
		DurationSeconds:  secs,
		ThreadCount:      prof.threadCount,
		TotalSamples:     prof.totalSamples,
		HotFunctions:     prof.hot,
		DetectedPatterns: prof.patterns(s.cfg.Thresholds),
		Partial:          runErr != nil,
		SampleFile:       file,
	}

	if runErr != nil {
		s.log.Debug().Err(runErr).Int("pid", pid).Msg("sampling degraded to partial capture")
	}
	s.log.Debug().
		Int("pid", pid).
		Int("total_samples", result.TotalSamples).
		Int("threads", result.ThreadCount).
		Msg("sampling done")
	return result, nil
}
