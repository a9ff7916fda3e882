// Package log provides structured logging for kiln.
// Entries carry a level, a category and key=value fields, and are written to a
// file (or any writer) only when logging has been initialized via --debug or
// KILN_DEBUG. Every entry is also fanned out to pubsub listeners.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zjrosen/kiln/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Category groups related log messages.
type Category string

const (
	CatBootstrap Category = "bootstrap" // Construction, init and reinit
	CatPlugin    Category = "plugin"    // Discovery, fetch and removal
	CatManifest  Category = "manifest"  // Manifest composition
	CatComponent Category = "component" // Component resolution
	CatHook      Category = "hook"      // Hook aggregation and execution
	CatConfig    Category = "config"    // Configuration loading/saving
	CatWatcher   Category = "watcher"   // Plugin directory watcher events
	CatCache     Category = "cache"     // cache operations
	CatDB        Category = "db"        // sqlite cache backend
)

type sink struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	defaultSink *sink
	once        sync.Once
)

// Init initializes the global logger writing to the file at path.
// Returns a cleanup function to close the log file.
func Init(path string) (func(), error) {
	var initErr error
	once.Do(func() {
		defaultSink, initErr = newFileSink(path)
	})
	if initErr != nil {
		return nil, initErr
	}
	if defaultSink == nil {
		return nil, fmt.Errorf("logger initialization failed or already attempted")
	}
	return func() {
		if defaultSink != nil && defaultSink.file != nil {
			_ = defaultSink.file.Close()
		}
	}, nil
}

// InitWithWriter routes log output to w. Used by tests and by the CLI when
// --debug is combined with --log-stderr.
func InitWithWriter(w io.Writer) {
	defaultSink = &sink{
		writer:   w,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
	}
}

func newFileSink(path string) (*sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: path is user-controlled debug log path
	if err != nil {
		return nil, err
	}

	return &sink{
		file:     f,
		writer:   f,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
	}, nil
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if defaultSink != nil {
		defaultSink.mu.Lock()
		defaultSink.enabled = enabled
		defaultSink.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if defaultSink != nil {
		defaultSink.mu.Lock()
		defaultSink.minLevel = level
		defaultSink.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	write(LevelError, cat, msg, fields...)
}

func write(level Level, cat Category, msg string, fields ...any) {
	if defaultSink == nil || !defaultSink.enabled {
		return
	}
	if level < defaultSink.minLevel {
		return
	}

	defaultSink.mu.Lock()
	defer defaultSink.mu.Unlock()

	// Format: 2025-12-06T10:45:00 [ERROR] [plugin] message key=value key2=value2
	timestamp := time.Now().Format("2006-01-02T15:04:05")
	entry := fmt.Sprintf("%s [%s] [%s] %s", timestamp, level, cat, msg)

	for i := 0; i+1 < len(fields); i += 2 {
		entry += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		entry += fmt.Sprintf(" %v=<missing>", fields[len(fields)-1])
	}
	entry += "\n"

	if defaultSink.writer != nil {
		_, _ = defaultSink.writer.Write([]byte(entry))
	}

	if defaultSink.broker != nil {
		defaultSink.broker.Publish(pubsub.CreatedEvent, entry)
	}
}

// Logger is a category-bound logger value. It is handed to collaborators that
// take a logger argument (hook runners, handlers) instead of calling the
// package-level functions directly.
type Logger struct {
	cat Category
}

// For returns a Logger bound to cat.
func For(cat Category) Logger {
	return Logger{cat: cat}
}

// Category returns the category the logger writes under.
func (l Logger) Category() Category { return l.cat }

func (l Logger) Debug(msg string, fields ...any) { write(LevelDebug, l.cat, msg, fields...) }
func (l Logger) Info(msg string, fields ...any)  { write(LevelInfo, l.cat, msg, fields...) }
func (l Logger) Warn(msg string, fields ...any)  { write(LevelWarn, l.cat, msg, fields...) }
func (l Logger) Error(msg string, fields ...any) { write(LevelError, l.cat, msg, fields...) }

// LogEvent is a pubsub event containing a log entry.
type LogEvent = pubsub.Event[string]

// NewListener subscribes to log entries until ctx is cancelled.
// Returns nil when logging has not been initialized.
func NewListener(ctx context.Context) <-chan LogEvent {
	if defaultSink == nil || defaultSink.broker == nil {
		return nil
	}
	return defaultSink.broker.Subscribe(ctx)
}
