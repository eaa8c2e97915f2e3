package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination for the process logger.
type Config struct {
	Level      string // debug, info, warn, error, fatal, panic
	Format     string // json or console
	Output     string // stdout, stderr, or a file path
	TimeFormat string // timestamp layout, RFC3339Nano when empty
}

// Logger wraps zerolog with typed fields and an optional collector that
// batches warn/error entries for shipping off the box.
type Logger struct {
	zl        zerolog.Logger
	collector atomic.Pointer[LogCollector]
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{zl: zl}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		return file, nil
	}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	event := l.zl.Debug()
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)
}

func (l *Logger) Info(msg string, fields ...Field) {
	event := l.zl.Info()
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)
}

// Warn feeds the collector too: per-date session skips (DST conflicts) are the
// highest-volume warning in this service and are worth deduplicating.
func (l *Logger) Warn(msg string, fields ...Field) {
	event := l.zl.Warn()
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)

	l.collect("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	event := l.zl.Error()
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)

	l.collect("error", msg, fields)
}

// AddCollector starts shipping warn/error entries, replacing any
// collector installed earlier.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if old := l.collector.Swap(NewLogCollector(config)); old != nil {
		old.Close()
	}
}

// RemoveCollector detaches and flushes the collector. Safe to call with
// none installed.
func (l *Logger) RemoveCollector() {
	if old := l.collector.Swap(nil); old != nil {
		old.Close()
	}
}

func (l *Logger) collect(level, msg string, fields []Field) {
	c := l.collector.Load()
	if c == nil {
		return
	}

	// Two frames up: collect -> Warn/Error -> call site.
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		if _, after, found := strings.Cut(file, "SessionScope"); found {
			file = after
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	fieldMap := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		fieldMap[f.key] = f.value
	}
	c.AddLog(level, msg, fieldMap, caller)
}

// Field is one typed key/value pair. It carries the zerolog encoding and
// a plain value for the collector side by side.
type Field struct {
	key   string
	value interface{}
	apply func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{key: key, value: value, apply: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ", "))
}

func Int(key string, value int) Field {
	return Field{key: key, value: value, apply: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{key: key, value: value, apply: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Uint64(key string, value uint64) Field {
	return Int64(key, int64(value))
}

func Float64(key string, value float64) Field {
	return Field{key: key, value: value, apply: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{key: key, value: value, apply: func(e *zerolog.Event) { e.Bool(key, value) }}
}

// Duration renders as whole milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int(key, int(value/time.Millisecond))
}

func Time(key string, value time.Time) Field {
	return timeField(key, value, time.RFC3339)
}

// Date renders a time as yyyy-mm-dd; used for calendar-date fields where the
// clock portion is noise.
func Date(key string, value time.Time) Field {
	return timeField(key, value, "2006-01-02")
}

func timeField(key string, value time.Time, layout string) Field {
	s := value.Format(layout)
	return Field{key: key, value: s, apply: func(e *zerolog.Event) { e.Str(key, s) }}
}

func Error(err error) Field {
	var value interface{}
	if err != nil {
		value = err.Error()
	}
	return Field{key: "error", value: value, apply: func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{key: key, value: value, apply: func(e *zerolog.Event) { e.Interface(key, value) }}
}
