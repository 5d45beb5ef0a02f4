package internal

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// Logger is a leveled logger handed to each component explicitly.
// A nil *Logger discards everything. Loggers derived with With share
// the level of their root.
type Logger struct {
	l     *charmlog.Logger
	level *atomic.Int32
}

// NewLogger creates a logger writing to w at the given level
func NewLogger(w io.Writer, level LogLevel) *Logger {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		// filtering happens in enabled so derived loggers follow SetLevel
		Level: charmlog.DebugLevel,
	})
	lg := &Logger{l: l, level: new(atomic.Int32)}
	lg.level.Store(int32(level))
	return lg
}

// NewVerboseLogger creates a stderr logger, at debug level when verbose is set
func NewVerboseLogger(verbose bool) *Logger {
	if verbose {
		return NewLogger(os.Stderr, LogLevelDebug)
	}
	return NewLogger(os.Stderr, LogLevelInfo)
}

// Level returns the configured level
func (lg *Logger) Level() LogLevel {
	if lg == nil {
		return LogLevelError
	}
	return LogLevel(lg.level.Load())
}

// SetLevel changes the level shared by this logger and every logger
// derived from the same root
func (lg *Logger) SetLevel(level LogLevel) {
	if lg == nil {
		return
	}
	lg.level.Store(int32(level))
}

func (lg *Logger) enabled(level LogLevel) bool {
	return lg != nil && LogLevel(lg.level.Load()) >= level
}

// With returns a logger that prefixes every line with the component name
func (lg *Logger) With(prefix string) *Logger {
	if lg == nil {
		return nil
	}
	return &Logger{l: lg.l.WithPrefix(prefix), level: lg.level}
}

// Errorf logs an error message
func (lg *Logger) Errorf(format string, args ...interface{}) {
	if !lg.enabled(LogLevelError) {
		return
	}
	lg.l.Errorf(format, args...)
}

// Warnf logs a warning message
func (lg *Logger) Warnf(format string, args ...interface{}) {
	if !lg.enabled(LogLevelWarn) {
		return
	}
	lg.l.Warnf(format, args...)
}

// Infof logs an info message
func (lg *Logger) Infof(format string, args ...interface{}) {
	if !lg.enabled(LogLevelInfo) {
		return
	}
	lg.l.Infof(format, args...)
}

// Debugf logs a debug message
func (lg *Logger) Debugf(format string, args ...interface{}) {
	if !lg.enabled(LogLevelDebug) {
		return
	}
	lg.l.Debugf(format, args...)
}
