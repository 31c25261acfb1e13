package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hylla/reqtrack/internal/config"
)

// TestNewConsoleOnlyOutsideDevMode verifies the file sink stays off without dev mode.
func TestNewConsoleOnlyOutsideDevMode(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{
		AppName: "reqtrack",
		Config:  config.LoggingConfig{Level: "info", File: config.LoggingFileConfig{Enabled: true}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("blocker resolved", "request_id", "r1")
	logger.Debug("hidden")
	if logger.FilePath() != "" {
		t.Fatalf("FilePath() = %q, want empty", logger.FilePath())
	}
	out := buf.String()
	if !strings.Contains(out, "blocker resolved") || !strings.Contains(out, "request_id=r1") {
		t.Fatalf("console output missing event: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug event leaked at info level: %q", out)
	}
}

// TestNewDevModeWritesFile verifies dev mode adds a logfmt file sink.
func TestNewDevModeWritesFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(&buf, Options{
		AppName: "req track",
		DevMode: true,
		Config: config.LoggingConfig{
			Level: "debug",
			File:  config.LoggingFileConfig{Enabled: true, Dir: dir, MaxSizeMB: 1, MaxBackups: 1},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if want := filepath.Join(dir, "req-track.log"); logger.FilePath() != want {
		t.Fatalf("FilePath() = %q, want %q", logger.FilePath(), want)
	}
	logger.SetConsoleEnabled(false)
	logger.Warn("store slow", "op", "list_all")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("console sink should be muted, got %q", buf.String())
	}
	content, err := os.ReadFile(logger.FilePath())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "store slow") || !strings.Contains(string(content), "op=list_all") {
		t.Fatalf("file sink missing event: %q", content)
	}
}

// TestNewRejectsUnknownLevel verifies invalid levels fail construction.
func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(nil, Options{Config: config.LoggingConfig{Level: "loud"}}); err == nil {
		t.Fatal("New() error = nil, want non-nil")
	}
}

// TestNilLoggerIsSafe verifies nil receivers are no-ops.
func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

// TestSanitizeLogFileStem verifies file-name normalization.
func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"":             "reqtrack",
		"reqtrack-dev": "reqtrack-dev",
		"a/b:c":        "a-b-c",
		" / ":          "reqtrack",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}
