// Package logging builds the process runtime logger: a console sink plus an
// optional rotating file sink for dev runs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hylla/reqtrack/internal/config"
)

// Options configures one runtime logger.
type Options struct {
	AppName string
	DevMode bool
	// FallbackDir is used for the file sink when the config names no directory.
	FallbackDir string
	Config      config.LoggingConfig
}

// Logger fans log events to a console sink and an optional dev-file sink.
type Logger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	filePath       string
}

// New configures runtime log sinks from CLI/config state.
func New(stderr io.Writer, opts Options) (*Logger, error) {
	levelName := strings.TrimSpace(opts.Config.Level)
	if levelName == "" {
		levelName = "info"
	}
	level, err := charmLog.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", opts.Config.Level, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}
	appName := sanitizeLogFileStem(opts.AppName)

	consoleFormatter := charmLog.LogfmtFormatter
	if isTerminal(stderr) {
		consoleFormatter = charmLog.TextFormatter
	}
	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       consoleFormatter,
	})

	logger := &Logger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !opts.DevMode || !opts.Config.File.Enabled {
		return logger, nil
	}

	logPath, err := logFilePath(opts.Config.File.Dir, opts.FallbackDir, appName)
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    opts.Config.File.MaxSizeMB,
		MaxBackups: opts.Config.File.MaxBackups,
		Compress:   true,
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(rotator, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = rotator.Close
	logger.filePath = logPath
	return logger, nil
}

// FilePath returns the active dev log file path.
func (l *Logger) FilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Close closes the optional dev-file sink.
func (l *Logger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *Logger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

// shouldLogToSink reports whether one sink should receive runtime output.
func (l *Logger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	if sink == l.consoleSink && !l.consoleEnabled {
		return false
	}
	return true
}

// Debug logs a debug event to all configured sinks.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.fanOut(charmLog.DebugLevel, msg, keyvals)
}

// Info logs an informational event to all configured sinks.
func (l *Logger) Info(msg string, keyvals ...any) {
	l.fanOut(charmLog.InfoLevel, msg, keyvals)
}

// Warn logs a warning event to all configured sinks.
func (l *Logger) Warn(msg string, keyvals ...any) {
	l.fanOut(charmLog.WarnLevel, msg, keyvals)
}

// Error logs an error event to all configured sinks.
func (l *Logger) Error(msg string, keyvals ...any) {
	l.fanOut(charmLog.ErrorLevel, msg, keyvals)
}

// fanOut writes one event to every enabled sink.
func (l *Logger) fanOut(level charmLog.Level, msg string, keyvals []any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Log(level, msg, keyvals...)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// logFilePath resolves the dev log file path, anchoring relative dirs at the workspace root.
func logFilePath(configDir, fallbackDir, appName string) (string, error) {
	baseDir := strings.TrimSpace(configDir)
	if baseDir == "" {
		baseDir = strings.TrimSpace(fallbackDir)
	}
	if baseDir == "" {
		baseDir = ".reqtrack/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(workspaceRootFrom(cwd), baseDir)
	}
	return filepath.Join(filepath.Clean(baseDir), appName+".log"), nil
}

// workspaceRootFrom resolves the nearest ancestor workspace marker for stable local log placement.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// hasWorkspaceMarker reports whether a directory looks like a project workspace root.
func hasWorkspaceMarker(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return false
}

// sanitizeLogFileStem normalizes app names into safe file-name segments.
func sanitizeLogFileStem(appName string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem := strings.Trim(replacer.Replace(strings.TrimSpace(appName)), "-")
	if stem == "" {
		return "reqtrack"
	}
	return stem
}
