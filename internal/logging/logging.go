// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ParseLevel maps debug, info, warn and error onto slog levels. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds a logger writing to w in the given format
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})), nil
	case FormatConsole:
		console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: w != os.Stdout && w != os.Stderr}
		logger := zerolog.New(console).Level(slogToZerologLevel(slogLevel)).With().Timestamp().Logger()
		return slog.New(NewZerologHandler(logger)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Setup installs the logger as the slog default
func Setup(w io.Writer, level, format string) error {
	logger, err := NewLogger(w, level, format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
