// Package plog provides the global, level-aware logger for the application.
// It dispatches records to stdout or stderr by severity and can additionally
// tee every record into a daily, human-readable log file so the retention
// sweeper has artifacts to manage.
package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Custom levels slotted between the standard slog levels.
// Order: DEBUG < NOTICE < INFO < SUCCESS < WARN < ERROR.
const (
	LevelNotice  = slog.Level(-2)
	LevelSuccess = slog.Level(2)
)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. WARNING and above go to stderr,
// everything else to stdout.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// teeHandler fans a record out to the console handler and, when a daily log
// file is attached, to the file handler as well. The console handler's error
// wins; a file write failure must never abort a backup.
type teeHandler struct {
	console slog.Handler
	file    slog.Handler // nil when no file is attached
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.console.Enabled(ctx, level) {
		return true
	}
	return h.file != nil && h.file.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.console.Enabled(ctx, r.Level) {
		err = h.console.Handle(ctx, r)
	}
	if h.file != nil && h.file.Enabled(ctx, r.Level) {
		_ = h.file.Handle(ctx, r.Clone())
	}
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &teeHandler{console: h.console.WithAttrs(attrs)}
	if h.file != nil {
		nh.file = h.file.WithAttrs(attrs)
	}
	return nh
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	nh := &teeHandler{console: h.console.WithGroup(name)}
	if h.file != nil {
		nh.file = h.file.WithGroup(name)
	}
	return nh
}

var (
	mu            sync.Mutex
	levelVar      = new(slog.LevelVar)
	tee           *teeHandler
	defaultLogger *slog.Logger
	logFile       *os.File
	logFilePath   string
)

// levelName maps a level to its display name, covering the custom levels.
func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= LevelSuccess:
		return "SUCCESS"
	case l >= slog.LevelInfo:
		return "INFO"
	case l >= LevelNotice:
		return "NOTICE"
	default:
		return "DEBUG"
	}
}

// replaceLevelAttr renders the custom NOTICE and SUCCESS levels with their
// proper names instead of slog's "INFO+2" style.
func replaceLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(level))
		}
	}
	return a
}

func newConsoleHandler(stdout, stderr io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: levelVar, ReplaceAttr: replaceLevelAttr}
	return &LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(stdout, opts),
		stderrHandler: slog.NewTextHandler(stderr, opts),
	}
}

func init() {
	levelVar.Set(slog.LevelInfo)
	tee = &teeHandler{console: newConsoleHandler(os.Stdout, os.Stderr)}
	defaultLogger = slog.New(tee)
}

// SetOutput redirects the console output, primarily for testing. Any attached
// log file is left untouched.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	tee = &teeHandler{console: newConsoleHandler(w, w), file: tee.file}
	defaultLogger = slog.New(tee)
}

// SetLevel sets the minimum level for the global logger.
func SetLevel(l slog.Level) {
	levelVar.Set(l)
}

// LevelFromString parses a level name, defaulting to INFO for unknown input.
func LevelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
	case "info":
		return slog.LevelInfo
	case "success":
		return LevelSuccess
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DailyFileName returns the log file name for the given day, one file per
// calendar day: backup_YYYY-MM-DD.log.
func DailyFileName(t time.Time) string {
	return "backup_" + t.Format("2006-01-02") + ".log"
}

// AttachDailyFile opens (or creates) today's log file in logDir and tees all
// records into it in a human-readable line format. Calling it again on a new
// day rolls over to the new file.
func AttachDailyFile(logDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	path := filepath.Join(logDir, DailyFileName(time.Now()))
	if logFile != nil {
		if path == logFilePath {
			return nil // Already attached to today's file.
		}
		logFile.Close()
		logFile = nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	logFilePath = path

	tee = &teeHandler{console: tee.console, file: newLineHandler(f)}
	defaultLogger = slog.New(tee)
	return nil
}

// DetachFile closes the attached daily log file, if any.
func DetachFile() {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	logFile.Close()
	logFile = nil
	logFilePath = ""
	tee = &teeHandler{console: tee.console}
	defaultLogger = slog.New(tee)
}

// CurrentFilePath returns the path of the attached daily log file, or "".
func CurrentFilePath() string {
	mu.Lock()
	defer mu.Unlock()
	return logFilePath
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Notice logs a per-item operational message (one line per file action).
func Notice(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Success logs a completion message.
func Success(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelSuccess, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Log(context.Background(), slog.LevelError, msg, args...)
}
