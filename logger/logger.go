// Package logger provides the secure logger of Witness Runtime. Every payload
// is redacted before it is buffered, printed or forwarded, recent entries are
// kept in a fixed-size ring buffer for diagnostics, and output depends on
// whether the process runs as a development or a production build.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arturoeanton/witness-runtime/security/sanitizer"
	"github.com/google/uuid"
)

// DefaultCapacity is the number of entries kept by the ring buffer.
const DefaultCapacity = 100

// timestampFormat is ISO-8601 in UTC with millisecond precision.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// LogEntry is one buffered log record. Data is always redacted.
type LogEntry struct {
	ID        string          `json:"id"`
	Level     Level           `json:"level"`
	Timestamp string          `json:"timestamp"`
	Message   string          `json:"message"`
	Data      sanitizer.Value `json:"data,omitempty"`
	Stack     string          `json:"stack,omitempty"`
}

// Options configures a Logger.
type Options struct {
	Prefix      string              // Shown in console lines (default: "witness")
	Capacity    int                 // Ring buffer size (default: 100)
	Development bool                // Console output for every level; no forwarding
	MinLevel    Level               // Lowest level printed to the console
	Redactor    *sanitizer.Redactor // Applied to Data and error messages (default: NewRedactor(nil))
	Forwarder   Forwarder           // Receives error entries in production
	Stdout      io.Writer           // debug and info channel (default: os.Stdout)
	Stderr      io.Writer           // warn and error channel (default: os.Stderr)
	Now         func() time.Time
}

// Logger is safe for concurrent use. It never panics, whatever the payload.
type Logger struct {
	prefix      string
	development bool
	redactor    *sanitizer.Redactor
	forwarder   Forwarder
	now         func() time.Time
	stdout      *log.Logger
	stderr      *log.Logger

	minLevel atomic.Int32

	mu     sync.Mutex
	buffer *ringBuffer

	forwarded       atomic.Uint64
	forwardFailures atomic.Uint64
}

// Stats reports buffer and forwarding counters.
type Stats struct {
	Buffered        int    `json:"buffered"`
	Capacity        int    `json:"capacity"`
	Evicted         uint64 `json:"evicted"`
	Forwarded       uint64 `json:"forwarded"`
	ForwardFailures uint64 `json:"forward_failures"`
}

var (
	// Default is the logger used by the package-level helpers
	Default *Logger
	once    sync.Once
)

// Initialize sets up the default logger. verbose lowers the console
// threshold to debug; development enables console output for all levels.
func Initialize(verbose, development bool) {
	once.Do(func() {
		level := LevelInfo
		if verbose {
			level = LevelDebug
		}
		Default = New(Options{Development: development, MinLevel: level})
	})
}

// SetDefault replaces the default logger, typically with the instance built
// by the composition root.
func SetDefault(l *Logger) {
	once.Do(func() {})
	Default = l
}

// New creates a logger.
func New(opts Options) *Logger {
	if opts.Prefix == "" {
		opts.Prefix = "witness"
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Redactor == nil {
		opts.Redactor = sanitizer.MustNewRedactor(nil)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Logger{
		prefix:      opts.Prefix,
		development: opts.Development,
		redactor:    opts.Redactor,
		forwarder:   opts.Forwarder,
		now:         opts.Now,
		stdout:      log.New(opts.Stdout, "", 0),
		stderr:      log.New(opts.Stderr, "", 0),
		buffer:      newRingBuffer(opts.Capacity),
	}
	l.minLevel.Store(int32(opts.MinLevel))
	return l
}

// SetLevel changes the console threshold
func (l *Logger) SetLevel(level Level) {
	l.minLevel.Store(int32(level))
}

// GetLevel returns the console threshold
func (l *Logger) GetLevel() Level {
	return Level(l.minLevel.Load())
}

// IsDevelopment reports the build flag read at construction.
func (l *Logger) IsDevelopment() bool {
	return l.development
}

// Log records an entry. data is redacted; err contributes a stack.
func (l *Logger) Log(level Level, message string, data any, err error) {
	l.log(1, level, message, data, err)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, data any) {
	l.log(1, LevelDebug, message, data, nil)
}

// Info logs an informational message
func (l *Logger) Info(message string, data any) {
	l.log(1, LevelInfo, message, data, nil)
}

// Warn logs a warning
func (l *Logger) Warn(message string, data any) {
	l.log(1, LevelWarn, message, data, nil)
}

// Error logs an error with an optional cause
func (l *Logger) Error(message string, data any, err error) {
	l.log(1, LevelError, message, data, err)
}

// Debugf logs a formatted debug message. A message that matches a redaction
// pattern is sanitized as a whole, so sensitive values still belong in data.
func (l *Logger) Debugf(format string, args ...any) {
	l.log(1, LevelDebug, l.format(format, args), nil, nil)
}

// Infof logs a formatted informational message
func (l *Logger) Infof(format string, args ...any) {
	l.log(1, LevelInfo, l.format(format, args), nil, nil)
}

// Warnf logs a formatted warning
func (l *Logger) Warnf(format string, args ...any) {
	l.log(1, LevelWarn, l.format(format, args), nil, nil)
}

// Errorf logs a formatted error
func (l *Logger) Errorf(format string, args ...any) {
	l.log(1, LevelError, l.format(format, args), nil, nil)
}

func (l *Logger) format(format string, args []any) string {
	message := fmt.Sprintf(format, args...)
	if l.redactor.ContainsSensitiveData(message) {
		return l.redactor.SanitizeString(message)
	}
	return message
}

// log is the internal logging function. skip is the number of frames
// between log and the caller to report.
func (l *Logger) log(skip int, level Level, message string, data any, err error) {
	defer func() {
		_ = recover()
	}()

	entry := LogEntry{
		ID:        uuid.NewString(),
		Level:     level,
		Timestamp: l.now().UTC().Format(timestampFormat),
		Message:   message,
	}
	if data != nil {
		entry.Data = l.redactor.SanitizeAny(data)
	}
	if err != nil {
		entry.Stack = l.redactor.SanitizeString(err.Error()) + "\n" + string(debug.Stack())
	}

	l.mu.Lock()
	l.buffer.push(entry)
	l.mu.Unlock()

	if l.development {
		l.emit(entry, getCaller(skip))
		return
	}
	if level == LevelError {
		l.forward(entry)
	}
}

// emit writes the entry to the console channel matching its level
func (l *Logger) emit(entry LogEntry, caller string) {
	if entry.Level < l.GetLevel() {
		return
	}

	line := fmt.Sprintf("[%s] [%s] [%s] %s: %s", entry.Timestamp, l.prefix, entry.Level.Label(), caller, entry.Message)
	if entry.Data != nil {
		if data, err := json.Marshal(entry.Data); err == nil {
			line += " " + string(data)
		}
	}

	switch entry.Level {
	case LevelWarn:
		l.stderr.Print(line)
	case LevelError:
		if entry.Stack != "" {
			line += "\n" + entry.Stack
		}
		l.stderr.Print(line)
	default:
		l.stdout.Print(line)
	}
}

// forward hands the entry to the remote hook. Failures are counted and
// swallowed so that logging never breaks the caller.
func (l *Logger) forward(entry LogEntry) {
	if l.forwarder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.forwardFailures.Add(1)
		}
	}()
	if err := l.forwarder.Forward(entry); err != nil {
		l.forwardFailures.Add(1)
		return
	}
	l.forwarded.Add(1)
}

// GetLogs returns a copy of the buffered entries, oldest first
func (l *Logger) GetLogs() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.snapshot()
}

// ClearLogs empties the buffer
func (l *Logger) ClearLogs() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.clear()
}

// ExportLogs serializes the buffer as indented JSON for diagnostics
func (l *Logger) ExportLogs() ([]byte, error) {
	return json.MarshalIndent(l.GetLogs(), "", "  ")
}

// Stats returns buffer and forwarding counters
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	buffered, capacity, evicted := l.buffer.size, len(l.buffer.entries), l.buffer.evicted
	l.mu.Unlock()

	return Stats{
		Buffered:        buffered,
		Capacity:        capacity,
		Evicted:         evicted,
		Forwarded:       l.forwarded.Load(),
		ForwardFailures: l.forwardFailures.Load(),
	}
}

// getCaller returns the file and line skip frames above log
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 2)
	if !ok {
		return "unknown:0"
	}

	parts := strings.Split(file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, line)
}
