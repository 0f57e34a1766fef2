// Package logger sets up the process-wide slog logger. Level and format come
// from config or the LOG_LEVEL and LOG_FORMAT environment variables.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Setup configures the default logger from the environment.
func Setup() *slog.Logger {
	return Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)
}

// Configure installs a logger writing to w. Unknown levels mean info and any
// format other than "json" means text.
func Configure(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return l
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L returns the default logger, configuring it from the environment on
// first use.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return Setup()
	}
	return l
}
