package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{FormatText, func(t *testing.T, out string) {
			if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "count=3") {
				t.Errorf("unexpected text output %q", out)
			}
		}},
		{FormatJSON, func(t *testing.T, out string) {
			var entry map[string]any
			if err := json.Unmarshal([]byte(out), &entry); err != nil {
				t.Fatalf("expected JSON output, got %q: %v", out, err)
			}
			if entry["msg"] != "hello" {
				t.Errorf("unexpected msg %v", entry["msg"])
			}
		}},
		{FormatConsole, func(t *testing.T, out string) {
			if !strings.Contains(out, "hello") || !strings.Contains(out, "count=3") {
				t.Errorf("unexpected console output %q", out)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(&buf, "info", tt.format)
			if err != nil {
				t.Fatalf("NewLogger error: %v", err)
			}
			logger.Debug("hidden")
			logger.Info("hello", "count", 3)
			if strings.Contains(buf.String(), "hidden") {
				t.Error("debug message should be filtered at info level")
			}
			tt.check(t, buf.String())
		})
	}
}

func TestNewLogger_InvalidInput(t *testing.T) {
	if _, err := NewLogger(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewLogger(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestZerologHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewZerologHandler(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	logger.With("run_id", "abc").WithGroup("fetch").Warn("failed",
		"url", "https://pbs.example/1.jpg",
		"error", errors.New("boom"),
		slog.Group("media", "bytes", 10))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}

	want := map[string]any{
		"level":             "warn",
		"message":           "failed",
		"run_id":            "abc",
		"fetch.url":         "https://pbs.example/1.jpg",
		"fetch.error":       "boom",
		"fetch.media.bytes": float64(10),
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("%s = %v, want %v", key, entry[key], value)
		}
	}
}

func TestZerologHandler_Enabled(t *testing.T) {
	handler := NewZerologHandler(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
