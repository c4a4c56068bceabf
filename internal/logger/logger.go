// Package logger provides the leveled logger threaded through conversions.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Level represents the logging level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	silentLevel
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the interface for logging operations
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	SetLevel(level Level)
	Enabled(level Level) bool
}

type standardLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	level  Level
}

// New writes "[LEVEL] message" lines to w. Timestamps are only added in
// debug mode, where ordering against pandoc runs matters.
func New(w io.Writer, level Level) Logger {
	flags := 0
	if level == DebugLevel {
		flags = log.Ltime | log.Lmicroseconds
	}
	return &standardLogger{
		logger: log.New(w, "", flags),
		level:  level,
	}
}

// NewNop discards everything (useful for tests).
func NewNop() Logger {
	return &standardLogger{
		logger: log.New(io.Discard, "", 0),
		level:  silentLevel,
	}
}

// ParseLevel converts a level name to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// LevelFor maps the CLI verbosity flags to a level. quiet wins.
func LevelFor(quiet, verbose bool) Level {
	switch {
	case quiet:
		return ErrorLevel
	case verbose:
		return DebugLevel
	default:
		return WarnLevel
	}
}

func (l *standardLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *standardLogger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level <= level
}

func (l *standardLogger) Debug(format string, v ...any) { l.log(DebugLevel, format, v...) }
func (l *standardLogger) Info(format string, v ...any)  { l.log(InfoLevel, format, v...) }
func (l *standardLogger) Warn(format string, v ...any)  { l.log(WarnLevel, format, v...) }
func (l *standardLogger) Error(format string, v ...any) { l.log(ErrorLevel, format, v...) }

func (l *standardLogger) log(level Level, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}
	l.logger.Printf("[%s] %s", level.String(), fmt.Sprintf(format, v...))
}
