package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Logger is a deliberately small, framework-agnostic logging interface.
// Keep implementations outside the domain packages so any logger can be
// swapped in.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning.
	Warn(msg string, fields ...Field)

	// Error logs an error.
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value interface{}
}

// JSONLogger is a small structured logger that prints JSON lines to a
// writer. It implements Logger and is the default logger for the service.
type JSONLogger struct {
	component string
	out       io.Writer
	persist   []Field
}

// NewJSONLogger creates a JSONLogger writing to stdout. component is
// optional and is included on every entry.
func NewJSONLogger(component string) *JSONLogger {
	return &JSONLogger{component: component, out: os.Stdout}
}

// NewJSONLoggerTo creates a JSONLogger writing to the given writer.
// Useful in tests to capture output.
func NewJSONLoggerTo(component string, out io.Writer) *JSONLogger {
	return &JSONLogger{component: component, out: out}
}

func (l *JSONLogger) log(level string, msg string, fields ...Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any)
	for _, f := range l.persist {
		m[f.Key] = f.Value
	}
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: l.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		// Fallback plain formatting if marshalling fails
		fmt.Fprintf(l.out, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(l.out, string(enc))
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log("debug", msg, fields...) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.log("info", msg, fields...) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.log("warn", msg, fields...) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log("error", msg, fields...) }

// With returns a child logger carrying the given persistent fields. A
// "component" field overrides the component name instead of being added
// to the field map.
func (l *JSONLogger) With(fields ...Field) Logger {
	child := &JSONLogger{component: l.component, out: l.out}
	child.persist = append(child.persist, l.persist...)
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
				continue
			}
		}
		child.persist = append(child.persist, f)
	}
	return child
}

// levelRank orders the known level names. Unknown names rank as debug.
func levelRank(level string) int {
	switch level {
	case "error":
		return 3
	case "warn":
		return 2
	case "info":
		return 1
	default:
		return 0
	}
}

// Leveled wraps a Logger and drops entries below minLevel ("debug",
// "info", "warn" or "error").
func Leveled(l Logger, minLevel string) Logger {
	return &leveled{inner: l, min: levelRank(minLevel)}
}

type leveled struct {
	inner Logger
	min   int
}

func (l *leveled) Debug(msg string, fields ...Field) {
	if l.min <= levelRank("debug") {
		l.inner.Debug(msg, fields...)
	}
}

func (l *leveled) Info(msg string, fields ...Field) {
	if l.min <= levelRank("info") {
		l.inner.Info(msg, fields...)
	}
}

func (l *leveled) Warn(msg string, fields ...Field) {
	if l.min <= levelRank("warn") {
		l.inner.Warn(msg, fields...)
	}
}

func (l *leveled) Error(msg string, fields ...Field) {
	l.inner.Error(msg, fields...)
}

func (l *leveled) With(fields ...Field) Logger {
	return &leveled{inner: l.inner.With(fields...), min: l.min}
}

// Nop is a Logger that discards everything. Handy as a default in tests.
type Nop struct{}

func (Nop) Debug(string, ...Field) {}
func (Nop) Info(string, ...Field)  {}
func (Nop) Warn(string, ...Field)  {}
func (Nop) Error(string, ...Field) {}
func (Nop) With(...Field) Logger   { return Nop{} }
