// Package logger provides the structured, multi-destination logger used by
// every autobuy component.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger is the main interface for logging throughout the application
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	DebugContext(ctx context.Context, msg string, args ...interface{})
	InfoContext(ctx context.Context, msg string, args ...interface{})
	WarnContext(ctx context.Context, msg string, args ...interface{})
	ErrorContext(ctx context.Context, msg string, args ...interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger

	// WithComponent returns a logger tagged with a component
	WithComponent(component Component) Logger

	// WithSource returns a logger tagged with a log source
	WithSource(source LogSource) Logger

	// Close flushes and closes all log destinations
	Close() error
}

// LogEntry is one line written by the file tier
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Component Component              `json:"component,omitempty"`
	Source    LogSource              `json:"log_source,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	OrderID   string                 `json:"order_id,omitempty"`
	JobID     string                 `json:"job_id,omitempty"`
	// TransactionID links the entry to a ledger transaction
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type contextKey string

const (
	orderIDKey contextKey = "order_id"
	jobIDKey   contextKey = "job_id"
)

// ContextWithOrderID tags ctx so every *Context log call carries the order id
func ContextWithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, orderIDKey, orderID)
}

// ContextWithJobID tags ctx with the scheduler job that is running
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// MultiLogger implements Logger by dispatching to the console and file tiers
type MultiLogger struct {
	config     *Config
	console    *ConsoleLogger
	file       *FileLogger
	baseFields map[string]interface{}
	component  Component
	source     LogSource
}

// NewLogger creates a multi-tier logger based on configuration
func NewLogger(config *Config) (*MultiLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	ml := &MultiLogger{
		config:     config,
		baseFields: map[string]interface{}{},
	}

	if config.Console.Enabled {
		console, err := NewConsoleLogger(config, os.Stdout)
		if err != nil {
			return nil, fmt.Errorf("failed to create console logger: %w", err)
		}
		ml.console = console
	}

	if config.File.Enabled {
		file, err := NewFileLogger(config)
		if err != nil {
			// file output is optional, keep running on the console
			fmt.Fprintf(os.Stderr, "Warning: Failed to create file logger: %v\n", err)
		} else {
			ml.file = file
		}
	}

	return ml, nil
}

func (ml *MultiLogger) Debug(msg string, args ...interface{}) {
	ml.DebugContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) Info(msg string, args ...interface{}) {
	ml.InfoContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) Warn(msg string, args ...interface{}) {
	ml.WarnContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) Error(msg string, args ...interface{}) {
	ml.ErrorContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) DebugContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelDebug, msg, args)
}

func (ml *MultiLogger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelInfo, msg, args)
}

func (ml *MultiLogger) WarnContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelWarn, msg, args)
}

func (ml *MultiLogger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelError, msg, args)
}

// WithFields returns a new logger with additional fields
func (ml *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(ml.baseFields)+len(fields))
	for k, v := range ml.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	child := ml.clone()
	child.baseFields = merged
	return child
}

// WithComponent returns a new logger tagged with a component
func (ml *MultiLogger) WithComponent(component Component) Logger {
	child := ml.clone()
	child.component = component
	return child
}

// WithSource returns a new logger tagged with a log source
func (ml *MultiLogger) WithSource(source LogSource) Logger {
	child := ml.clone()
	child.source = source
	return child
}

// clone shares destinations; baseFields is never mutated after creation
func (ml *MultiLogger) clone() *MultiLogger {
	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: ml.baseFields,
		component:  ml.component,
		source:     ml.source,
	}
}

// Close flushes and closes all log destinations
func (ml *MultiLogger) Close() error {
	var errs []string

	if ml.console != nil {
		if err := ml.console.Close(); err != nil {
			errs = append(errs, "console close: "+err.Error())
		}
	}

	if ml.file != nil {
		if err := ml.file.Close(); err != nil {
			errs = append(errs, "file close: "+err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing logger: %s", strings.Join(errs, "; "))
	}
	return nil
}

// enabled checks the level against the configured threshold
func (ml *MultiLogger) enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[ml.config.Level]
}

func (ml *MultiLogger) log(ctx context.Context, level LogLevel, msg string, args []interface{}) {
	if !ml.enabled(level) {
		return
	}

	fields := make(map[string]interface{}, len(ml.baseFields)+len(args)/2+2)
	for k, v := range ml.baseFields {
		fields[k] = v
	}

	// odd trailing values are dropped
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}

	if ctx != nil {
		if orderID, ok := ctx.Value(orderIDKey).(string); ok {
			fields["order_id"] = orderID
		}
		if jobID, ok := ctx.Value(jobIDKey).(string); ok {
			fields["job_id"] = jobID
		}
	}

	if ml.console != nil {
		ml.console.log(level, msg, ml.component, ml.source, fields)
	}
	if ml.file != nil {
		ml.file.log(level, msg, ml.component, ml.source, fields)
	}
}

// NoOpLogger discards everything, used by tests and before SetDefault
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{})                             {}
func (n *NoOpLogger) Info(msg string, args ...interface{})                              {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})                              {}
func (n *NoOpLogger) Error(msg string, args ...interface{})                             {}
func (n *NoOpLogger) DebugContext(ctx context.Context, msg string, args ...interface{}) {}
func (n *NoOpLogger) InfoContext(ctx context.Context, msg string, args ...interface{})  {}
func (n *NoOpLogger) WarnContext(ctx context.Context, msg string, args ...interface{})  {}
func (n *NoOpLogger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {}
func (n *NoOpLogger) WithFields(fields map[string]interface{}) Logger                   { return n }
func (n *NoOpLogger) WithComponent(component Component) Logger                          { return n }
func (n *NoOpLogger) WithSource(source LogSource) Logger                                { return n }
func (n *NoOpLogger) Close() error                                                      { return nil }

var _ Logger = (*NoOpLogger)(nil)
var _ Logger = (*MultiLogger)(nil)

var (
	defaultLogger Logger = &NoOpLogger{}
	loggerMu      sync.RWMutex
)

// SetDefault sets the process-wide logger
func SetDefault(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
}

// Default returns the process-wide logger
func Default() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// OrDefault returns l, or the process-wide logger when l is nil
func OrDefault(l Logger) Logger {
	if l != nil {
		return l
	}
	return Default()
}

// Writer adapts a Logger to io.Writer for libraries that only take a writer
type Writer struct {
	logger Logger
	level  LogLevel
}

// NewWriter returns a writer that logs each write as one message at level
func NewWriter(logger Logger, level LogLevel) io.Writer {
	return &Writer{logger: logger, level: level}
}

func (w *Writer) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case LevelDebug:
		w.logger.Debug(msg)
	case LevelWarn:
		w.logger.Warn(msg)
	case LevelError:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}

// Package-level helpers log through Default()

func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }
func Info(msg string, args ...interface{})  { Default().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { Default().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }
