// Package log provides structured logging for go-gesture.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex

	// fileWriter is kept so Close can flush the rotating file.
	fileWriter *lumberjack.Logger
)

// Config controls logger construction.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to info.
	Level string

	// File is an optional path that receives a copy of every record.
	// The file is rotated at MaxSizeMB.
	File      string
	MaxSizeMB int

	// JSON forces the JSON handler. It is also used when GO_ENV=production.
	JSON bool
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger and sets it as the slog default.
// Calling Init again replaces the previous logger.
func Init(cfg Config) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var w io.Writer = os.Stdout
	mu.Lock()
	defer mu.Unlock()

	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
	if cfg.File != "" {
		size := cfg.MaxSizeMB
		if size <= 0 {
			size = 10
		}
		fileWriter = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    size, // megabytes
			MaxBackups: 3,
		}
		w = io.MultiWriter(os.Stdout, fileWriter)
	}

	// Use JSON in production, text in development
	if cfg.JSON || os.Getenv("GO_ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(w, opts))
	}

	slog.SetDefault(logger)
}

// Close releases the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Init(Config{Level: "info"})
		mu.RLock()
		l = logger
		mu.RUnlock()
	}
	return l
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
