package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLogLevel converts a string log level to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level: %s, using 'info'\n", level)
		return slog.LevelInfo
	}
}

// LogOptions selects level and destination of the process logger.
type LogOptions struct {
	Level      string
	File       string // rotated log file, empty means stderr
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger creates a text slog.Logger. When opts.File is set, output goes
// to a size rotated file instead of stderr. The returned closer must be
// called at exit.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer) {
	var w io.WriteCloser = nopCloser{os.Stderr}
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(opts.Level)})
	return slog.New(h), w
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// discardLogger is used when no logger is injected.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
