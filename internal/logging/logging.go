// Package logging configures the process-wide JSON slog logger and hands out
// per-service child loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu               sync.RWMutex
	structuredLogger *slog.Logger
	levelVar         = new(slog.LevelVar)
)

// LevelTrace sits below debug and is enabled with log level "trace"
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// Init initializes the structured logger writing JSON to stderr.
// Stdout is left to the control loop's status output.
func Init() {
	SetOutput(os.Stderr)
}

// SetOutput redirects the structured logger to w, keeping the current level.
func SetOutput(w io.Writer) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceLevel,
	})

	mu.Lock()
	structuredLogger = slog.New(handler)
	mu.Unlock()

	slog.SetDefault(structuredLogger)
}

// SetLevel sets the minimum logging level. Safe to call while logging.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// ParseLevel maps a level name from configuration to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return structuredLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	base := Structured()
	if base == nil {
		return nil
	}
	return base.With("service", serviceName)
}

// RotationConfig holds the log file rotation limits.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// OpenRotatingFile opens a lumberjack writer for filePath, creating the
// directory if needed. Zero rotation fields take the defaults.
func OpenRotatingFile(filePath string, rotation RotationConfig) (io.WriteCloser, error) {
	// lumberjack doesn't create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	maxSizeMB := 100
	maxBackups := 3
	maxAge := 28
	if rotation.MaxSizeMB > 0 {
		maxSizeMB = rotation.MaxSizeMB
	}
	if rotation.MaxBackups > 0 {
		maxBackups = rotation.MaxBackups
	}
	if rotation.MaxAgeDays > 0 {
		maxAge = rotation.MaxAgeDays
	}

	return &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}, nil
}
