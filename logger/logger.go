package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	mu              sync.RWMutex
	currentLogLevel LogLevel = INFO
	levelVar                 = new(slog.LevelVar)
	base                     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))

	logLevelNames = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}
)

// Options controls where and how log lines are written.
type Options struct {
	Level  string
	JSON   bool
	Writer io.Writer
}

// Init replaces the underlying handler. Writer defaults to stderr.
func Init(opt Options) error {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return err
	}
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	ho := &slog.HandlerOptions{Level: levelVar, AddSource: level == DEBUG}

	var h slog.Handler
	if opt.JSON {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}

	mu.Lock()
	base = slog.New(h)
	mu.Unlock()
	setLevel(level)
	return nil
}

// ParseLevel maps a level name to a LogLevel. An empty name means INFO.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// SetLogLevel sets the current logging level
func SetLogLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		Warn("Unknown log level '%s', defaulting to INFO", level)
	}
	setLevel(l)
}

func setLevel(l LogLevel) {
	mu.Lock()
	currentLogLevel = l
	mu.Unlock()
	levelVar.Set(toSlog(l))
}

func toSlog(l LogLevel) slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR, FATAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogLevel returns the current log level as a string
func GetLogLevel() string {
	mu.RLock()
	defer mu.RUnlock()
	return logLevelNames[currentLogLevel]
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func printf(l slog.Level, format string, v ...interface{}) {
	lg := current()
	if !lg.Enabled(context.Background(), l) {
		return
	}
	lg.Log(context.Background(), l, fmt.Sprintf(format, v...))
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) { printf(slog.LevelDebug, format, v...) }

// Info logs an info message
func Info(format string, v ...interface{}) { printf(slog.LevelInfo, format, v...) }

// Warn logs a warning message
func Warn(format string, v ...interface{}) { printf(slog.LevelWarn, format, v...) }

// Error logs an error message
func Error(format string, v ...interface{}) { printf(slog.LevelError, format, v...) }

// Fatal logs a fatal message and exits
func Fatal(format string, v ...interface{}) {
	printf(slog.LevelError, "FATAL: "+format, v...)
	os.Exit(1)
}

// Log writes a structured record, used by the request logger.
func Log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	current().Log(ctx, level, msg, attrs...)
}
