package logger

import (
	"fmt"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// LogSource separates process housekeeping from order lifecycle records
type LogSource string

const (
	LogSourceInternal LogSource = "autobuy_internal"
	LogSourceOrder    LogSource = "autobuy_order"
)

// Component identifies which part of the system generated the log
type Component string

const (
	ComponentAPI       Component = "api"
	ComponentScheduler Component = "scheduler"
	ComponentTracker   Component = "tracker"
	ComponentBroker    Component = "broker"
	ComponentNotifier  Component = "notifier"
	ComponentEngine    Component = "engine"
	ComponentSettings  Component = "settings"
	ComponentLedger    Component = "ledger"
	ComponentRedis     Component = "redis"
	ComponentCLI       Component = "cli"
)

// Config holds the logging configuration for both tiers
type Config struct {
	Level  LogLevel  `json:"level"`
	Format LogFormat `json:"format"`

	// Console is always on in practice
	Console ConsoleConfig `json:"console"`

	// File adds rotating JSON-lines output
	File FileConfig `json:"file"`
}

// ConsoleConfig configures terminal output
type ConsoleConfig struct {
	Enabled       bool          `json:"enabled"`
	Color         bool          `json:"color"`          // text format only
	BufferSize    int           `json:"buffer_size"`    // bytes, default 64KB
	FlushInterval time.Duration `json:"flush_interval"` // default 100ms
}

// FileConfig configures rotating file output
type FileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
	// OrderPath receives a copy of every order lifecycle entry (optional)
	OrderPath string `json:"order_path,omitempty"`

	BufferSize    int           `json:"buffer_size"`    // entries, default 10000
	BatchSize     int           `json:"batch_size"`     // default 100
	BatchInterval time.Duration `json:"batch_interval"` // default 100ms
}

// DefaultConfig returns a default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Console: ConsoleConfig{
			Enabled:       true,
			Color:         true,
			BufferSize:    65536,
			FlushInterval: 100 * time.Millisecond,
		},
		File: FileConfig{
			Enabled:       false,
			Path:          "/var/log/autobuy/autobuy.log",
			MaxSizeMB:     50,
			MaxBackups:    5,
			MaxAgeDays:    30,
			Compress:      true,
			BufferSize:    10000,
			BatchSize:     100,
			BatchInterval: 100 * time.Millisecond,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	if c.Console.Enabled && c.Console.FlushInterval <= 0 {
		return fmt.Errorf("console flush interval must be > 0")
	}

	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB <= 0 {
			return fmt.Errorf("file max size must be > 0")
		}
		if c.File.BatchSize <= 0 || c.File.BatchInterval <= 0 {
			return fmt.Errorf("file batch size and interval must be > 0")
		}
	}

	return nil
}
