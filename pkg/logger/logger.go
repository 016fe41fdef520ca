package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Init configures the process-wide logger. Production always logs JSON; other
// environments use the text handler unless format says otherwise.
func Init(env, level, format string) {
	defaultLogger = New(os.Stdout, env, level, format)
	slog.SetDefault(defaultLogger)
}

func New(w io.Writer, env, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, env)}

	var handler slog.Handler
	if env == "production" || format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func ParseLevel(level, env string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development", "", "")
	}
	return defaultLogger
}
