/*
PURPOSE:
  Provides a structured logger for Forest Trainer.
  Wraps slog for consistent output.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Not spammy: one line per iteration.

  Implementation-discovered:
  - Needs text and JSON handlers (JSON for non-interactive runs).
  - Needs configurable levels.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

ERROR HANDLING:
  - Unknown levels fall back to info; config validation rejects them earlier.

IMPLEMENTATION RULES:
  - Use `log/slog` (Go 1.21+).

USAGE:
  output.Logger.Info("message", "key", "value")
  output.SetLogger(output.NewLogger(os.Stderr, "debug", "json"))

SELF-HEALING INSTRUCTIONS:
  - Ensure Go 1.21+ is used.

RELATED FILES:
  - internal/config/config.go

MAINTENANCE:
  - None.
*/

package output

import (
	"io"
	"log/slog"
	"os"
)

var Logger *slog.Logger

func init() {
	// Default generic logger, replaced by the CLI once config is loaded.
	Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// SetLogger allows overriding the default logger (e.g. for testing or config changes)
func SetLogger(l *slog.Logger) {
	Logger = l
}

// NewLogger builds a logger writing to w with the given level and format ("json" or "text").
func NewLogger(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
