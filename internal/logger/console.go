package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleLogger is the terminal tier: log/slog records rendered as JSON or
// colored text, written through an async buffered writer.
type ConsoleLogger struct {
	config  *Config
	handler slog.Handler
	writer  *bufferedWriter
}

// bufferedWriter queues writes on a channel and flushes them from one goroutine
type bufferedWriter struct {
	out     io.Writer
	outMu   sync.Mutex
	queue   chan []byte
	done    chan struct{}
	stopped chan struct{}

	mu     sync.Mutex
	closed bool
}

func newBufferedWriter(out io.Writer, bufferSize int, flushInterval time.Duration) *bufferedWriter {
	slots := bufferSize / 256 // rough bytes per line
	if slots < 16 {
		slots = 16
	}

	bw := &bufferedWriter{
		out:     out,
		queue:   make(chan []byte, slots),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go bw.run(flushInterval)
	return bw
}

func (bw *bufferedWriter) Write(p []byte) (int, error) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return 0, errors.New("writer is closed")
	}

	line := make([]byte, len(p))
	copy(line, p)

	select {
	case bw.queue <- line:
		return len(p), nil
	default:
		// queue full, write through
		return bw.writeOut(p)
	}
}

func (bw *bufferedWriter) writeOut(p []byte) (int, error) {
	bw.outMu.Lock()
	defer bw.outMu.Unlock()
	return bw.out.Write(p)
}

func (bw *bufferedWriter) run(flushInterval time.Duration) {
	defer close(bw.stopped)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case line := <-bw.queue:
			_, _ = bw.writeOut(line)
		case <-ticker.C:
			bw.drain()
		case <-bw.done:
			bw.drain()
			return
		}
	}
}

func (bw *bufferedWriter) drain() {
	for {
		select {
		case line := <-bw.queue:
			_, _ = bw.writeOut(line)
		default:
			return
		}
	}
}

// Close stops accepting writes and flushes what is queued
func (bw *bufferedWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.mu.Unlock()

	close(bw.done)
	<-bw.stopped
	return nil
}

// NewConsoleLogger creates a console logger writing to out
func NewConsoleLogger(config *Config, out io.Writer) (*ConsoleLogger, error) {
	if out == nil {
		return nil, fmt.Errorf("console output is nil")
	}

	cl := &ConsoleLogger{
		config: config,
		writer: newBufferedWriter(out, config.Console.BufferSize, config.Console.FlushInterval),
	}

	opts := &slog.HandlerOptions{Level: slogLevel(config.Level)}
	switch {
	case config.Format == FormatJSON:
		cl.handler = slog.NewJSONHandler(cl.writer, opts)
	case config.Console.Color:
		cl.handler = newColorTextHandler(cl.writer, opts)
	default:
		cl.handler = slog.NewTextHandler(cl.writer, opts)
	}

	return cl, nil
}

func (cl *ConsoleLogger) log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) {
	record := slog.NewRecord(time.Now(), slogLevel(level), msg, 0)

	if component != "" {
		record.AddAttrs(slog.String("component", string(component)))
	}
	if source != "" {
		record.AddAttrs(slog.String("log_source", string(source)))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		record.AddAttrs(slog.Any(k, fields[k]))
	}

	_ = cl.handler.Handle(context.Background(), record)
}

// Close flushes and closes the console logger
func (cl *ConsoleLogger) Close() error {
	return cl.writer.Close()
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorTextHandler renders "time LEVEL [component] msg key=value ..."
type colorTextHandler struct {
	w     io.Writer
	opts  *slog.HandlerOptions
	mu    sync.Mutex
	attrs []slog.Attr

	levels map[slog.Level]string
	dim    *color.Color
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{
		w:    w,
		opts: opts,
		levels: map[slog.Level]string{
			slog.LevelDebug: color.New(color.FgCyan).Sprint("DEBUG"),
			slog.LevelInfo:  color.New(color.FgGreen).Sprint("INFO "),
			slog.LevelWarn:  color.New(color.FgYellow).Sprint("WARN "),
			slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERROR"),
		},
		dim: color.New(color.Faint),
	}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts != nil && h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	buf.WriteString(h.dim.Sprint(r.Time.UTC().Format(time.RFC3339)))
	buf.WriteByte(' ')
	buf.WriteString(h.levels[r.Level])
	buf.WriteByte(' ')

	var rest []slog.Attr
	collect := func(a slog.Attr) bool {
		if a.Key == "component" {
			fmt.Fprintf(&buf, "[%s] ", a.Value.String())
			return true
		}
		rest = append(rest, a)
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	buf.WriteString(r.Message)
	for _, a := range rest {
		if a.Key == "log_source" {
			continue
		}
		fmt.Fprintf(&buf, " %s=%v", h.dim.Sprint(a.Key), a.Value.Any())
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &colorTextHandler{w: h.w, opts: h.opts, attrs: merged, levels: h.levels, dim: h.dim}
}

// WithGroup is not used by this package; groups are flattened
func (h *colorTextHandler) WithGroup(string) slog.Handler {
	return h
}
