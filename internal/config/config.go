// Package config loads diagnostic thresholds and limits from defaults, an
// optional config file, and environment overrides. Every heuristic constant
// the diagnoser uses lives here so tuning is a data change, not a code change.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Thresholds are the heuristic trigger points for diagnosis rules.
type Thresholds struct {
	// FDLeak is the open-descriptor high-water mark per process.
	FDLeak int `mapstructure:"fd_leak"`
	// WatchedPaths is the watched-path count considered excessive.
	WatchedPaths int `mapstructure:"watched_paths"`
	// EventLoopSamples is the kevent+poll sample count that flags event-loop spin.
	EventLoopSamples int `mapstructure:"event_loop_samples"`
	// RunLoopSamples is the CFRunLoop sample count that flags run-loop spin.
	RunLoopSamples int `mapstructure:"run_loop_samples"`
	// GCSampleRatio is the GC share of total samples that flags GC pressure.
	GCSampleRatio float64 `mapstructure:"gc_sample_ratio"`
	// AggregateCPUPct flags the process family exceeding one core in total.
	AggregateCPUPct float64 `mapstructure:"aggregate_cpu_pct"`
	// SyscallErrorRatio and SyscallErrorMinCount gate the failing-syscall rule.
	SyscallErrorRatio    float64 `mapstructure:"syscall_error_ratio"`
	SyscallErrorMinCount int64   `mapstructure:"syscall_error_min_count"`
}

// Limits bound what is retained and rendered from tool output.
type Limits struct {
	HotFunctions   int   `mapstructure:"hot_functions"`
	OpSamples      int   `mapstructure:"op_samples"`
	Connections    int   `mapstructure:"connections"`
	WatchedPaths   int   `mapstructure:"watched_paths"`
	MaxOutputBytes int64 `mapstructure:"max_output_bytes"`
}

// Durations are the default capture windows and tool grace periods.
type Durations struct {
	Sample       time.Duration `mapstructure:"sample"`
	Trace        time.Duration `mapstructure:"trace"`
	SampleGrace  time.Duration `mapstructure:"sample_grace"`
	TraceGrace   time.Duration `mapstructure:"trace_grace"`
	QuickCommand time.Duration `mapstructure:"quick_command"`
}

// Config is the full runtime configuration, decoded once at startup and
// passed by value to the components that need it.
type Config struct {
	Thresholds Thresholds `mapstructure:"thresholds"`
	Limits     Limits     `mapstructure:"limits"`
	Durations  Durations  `mapstructure:"durations"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Thresholds: Thresholds{
			FDLeak:               1000,
			WatchedPaths:         100,
			EventLoopSamples:     50,
			RunLoopSamples:       100,
			GCSampleRatio:        0.10,
			AggregateCPUPct:      100.0,
			SyscallErrorRatio:    0.5,
			SyscallErrorMinCount: 100,
		},
		Limits: Limits{
			HotFunctions:   10,
			OpSamples:      20,
			Connections:    20,
			WatchedPaths:   50,
			MaxOutputBytes: 10 * 1024 * 1024, // 10MB
		},
		Durations: Durations{
			Sample:       5 * time.Second,
			Trace:        10 * time.Second,
			SampleGrace:  10 * time.Second,
			TraceGrace:   5 * time.Second,
			QuickCommand: 2 * time.Second,
		},
	}
}

// Load reads configuration from the given file, or from
// ~/.config/claude-diagnose/config.toml when path is empty. A missing file is
// not an error; defaults plus CLAUDE_DIAGNOSE_* environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "claude-diagnose"))
		}
	}
	v.SetEnvPrefix("CLAUDE_DIAGNOSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file must exist; the default location may not.
		if path != "" {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("thresholds.fd_leak", cfg.Thresholds.FDLeak)
	v.SetDefault("thresholds.watched_paths", cfg.Thresholds.WatchedPaths)
	v.SetDefault("thresholds.event_loop_samples", cfg.Thresholds.EventLoopSamples)
	v.SetDefault("thresholds.run_loop_samples", cfg.Thresholds.RunLoopSamples)
	v.SetDefault("thresholds.gc_sample_ratio", cfg.Thresholds.GCSampleRatio)
	v.SetDefault("thresholds.aggregate_cpu_pct", cfg.Thresholds.AggregateCPUPct)
	v.SetDefault("thresholds.syscall_error_ratio", cfg.Thresholds.SyscallErrorRatio)
	v.SetDefault("thresholds.syscall_error_min_count", cfg.Thresholds.SyscallErrorMinCount)
	v.SetDefault("limits.hot_functions", cfg.Limits.HotFunctions)
	v.SetDefault("limits.op_samples", cfg.Limits.OpSamples)
	v.SetDefault("limits.connections", cfg.Limits.Connections)
	v.SetDefault("limits.watched_paths", cfg.Limits.WatchedPaths)
	v.SetDefault("limits.max_output_bytes", cfg.Limits.MaxOutputBytes)
	v.SetDefault("durations.sample", cfg.Durations.Sample)
	v.SetDefault("durations.trace", cfg.Durations.Trace)
	v.SetDefault("durations.sample_grace", cfg.Durations.SampleGrace)
	v.SetDefault("durations.trace_grace", cfg.Durations.TraceGrace)
	v.SetDefault("durations.quick_command", cfg.Durations.QuickCommand)
}
