package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger is the file tier. Entries are queued, encoded in batches and
// written to a rotating JSON-lines file. When an order log path is set,
// order lifecycle entries are also written to that file so fills and
// failures can be audited without the scheduler noise.
type FileLogger struct {
	main   *lumberjack.Logger
	orders *lumberjack.Logger

	queue     chan *LogEntry
	batchSize int
	interval  time.Duration

	// batch is owned by the writer goroutine
	batch []*LogEntry

	unencodable atomic.Int64
	stop        chan struct{}
	stopOnce    sync.Once
	done        sync.WaitGroup
}

func rotating(path string, fc FileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}
}

// NewFileLogger starts the batching writer
func NewFileLogger(config *Config) (*FileLogger, error) {
	fc := config.File
	if !fc.Enabled {
		return nil, fmt.Errorf("file logging is not enabled")
	}

	fl := &FileLogger{
		main:      rotating(fc.Path, fc),
		queue:     make(chan *LogEntry, fc.BufferSize),
		batchSize: fc.BatchSize,
		interval:  fc.BatchInterval,
		batch:     make([]*LogEntry, 0, fc.BatchSize),
		stop:      make(chan struct{}),
	}
	if fc.OrderPath != "" {
		fl.orders = rotating(fc.OrderPath, fc)
	}

	fl.done.Add(1)
	go fl.run()
	return fl, nil
}

func newEntry(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) *LogEntry {
	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: component,
		Source:    source,
	}

	// the ids people grep for become top-level keys
	rest := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		switch {
		case k == "order_id" && isString:
			entry.OrderID = s
		case k == "job_id" && isString:
			entry.JobID = s
		case k == "transaction_id" && isString:
			entry.TransactionID = s
		case k == "error":
			entry.Error = fmt.Sprint(v)
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		entry.Fields = rest
	}
	return entry
}

func (fl *FileLogger) log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{}) {
	entry := newEntry(level, msg, component, source, fields)

	select {
	case fl.queue <- entry:
	default:
		// queue full: write inline, lumberjack serialises writers
		fl.writeBatch([]*LogEntry{entry})
	}
}

func (fl *FileLogger) run() {
	defer fl.done.Done()

	ticker := time.NewTicker(fl.interval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-fl.queue:
			fl.batch = append(fl.batch, entry)
			if len(fl.batch) >= fl.batchSize {
				fl.flush()
			}
		case <-ticker.C:
			fl.flush()
		case <-fl.stop:
			for {
				select {
				case entry := <-fl.queue:
					fl.batch = append(fl.batch, entry)
				default:
					fl.flush()
					return
				}
			}
		}
	}
}

func (fl *FileLogger) flush() {
	if len(fl.batch) == 0 {
		return
	}
	fl.writeBatch(fl.batch)
	clear(fl.batch)
	fl.batch = fl.batch[:0]
}

// writeBatch encodes entries into one buffer per file and writes each buffer once
func (fl *FileLogger) writeBatch(entries []*LogEntry) {
	var all, orders bytes.Buffer
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			fl.unencodable.Add(1)
			continue
		}
		all.Write(line)
		all.WriteByte('\n')
		if fl.orders != nil && entry.Source == LogSourceOrder {
			orders.Write(line)
			orders.WriteByte('\n')
		}
	}
	if all.Len() > 0 {
		_, _ = fl.main.Write(all.Bytes())
	}
	if orders.Len() > 0 {
		_, _ = fl.orders.Write(orders.Bytes())
	}
}

// Unencodable counts entries dropped because a field could not be marshalled
func (fl *FileLogger) Unencodable() int64 {
	return fl.unencodable.Load()
}

// Close drains the queue and closes the files
func (fl *FileLogger) Close() error {
	fl.stopOnce.Do(func() { close(fl.stop) })
	fl.done.Wait()

	err := fl.main.Close()
	if fl.orders != nil {
		if oerr := fl.orders.Close(); err == nil {
			err = oerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close file logger: %w", err)
	}
	return nil
}

// Rotate starts new files now
func (fl *FileLogger) Rotate() error {
	if err := fl.main.Rotate(); err != nil {
		return err
	}
	if fl.orders != nil {
		return fl.orders.Rotate()
	}
	return nil
}
