// Package logging provides category-tagged file logging for aichat. Logs go
// to <config dir>/logs/aichat.log and are only written when debug mode is
// enabled; with debug off every helper is a no-op so the hot path stays
// allocation free.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log categories.
const (
	CategorySession = "session" // session persistence, compression
	CategoryRepl    = "repl"    // line dispatch, abort handling
	CategoryAPI     = "api"     // exchange requests and streaming
	CategoryConfig  = "config"  // config and roles file handling
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
)

// Initialize opens the log file under dir and installs the logger. With
// debug false it leaves logging disabled and returns nil.
func Initialize(dir string, debug bool) error {
	if !debug {
		return nil
	}
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", logsDir, err)
	}
	file, err := os.OpenFile(filepath.Join(logsDir, "aichat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(file),
		zapcore.DebugLevel,
	)

	mu.Lock()
	sugar = zap.New(core).Sugar()
	mu.Unlock()
	return nil
}

// Sync flushes buffered log entries. Safe to call when logging is disabled.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return sugar != nil
}

func logf(level zapcore.Level, category, format string, args ...any) {
	mu.RLock()
	logger := sugar
	mu.RUnlock()
	if logger == nil {
		return
	}
	tagged := logger.With("category", category)
	switch level {
	case zapcore.DebugLevel:
		tagged.Debugf(format, args...)
	case zapcore.WarnLevel:
		tagged.Warnf(format, args...)
	case zapcore.ErrorLevel:
		tagged.Errorf(format, args...)
	default:
		tagged.Infof(format, args...)
	}
}

// Session logging helpers.

func SessionDebug(format string, args ...any) { logf(zapcore.DebugLevel, CategorySession, format, args...) }
func SessionInfo(format string, args ...any)  { logf(zapcore.InfoLevel, CategorySession, format, args...) }
func SessionError(format string, args ...any) { logf(zapcore.ErrorLevel, CategorySession, format, args...) }

// REPL logging helpers.

func ReplDebug(format string, args ...any) { logf(zapcore.DebugLevel, CategoryRepl, format, args...) }
func ReplInfo(format string, args ...any)  { logf(zapcore.InfoLevel, CategoryRepl, format, args...) }
func ReplError(format string, args ...any) { logf(zapcore.ErrorLevel, CategoryRepl, format, args...) }

// Exchange/API logging helpers.

func APIDebug(format string, args ...any) { logf(zapcore.DebugLevel, CategoryAPI, format, args...) }
func APIInfo(format string, args ...any)  { logf(zapcore.InfoLevel, CategoryAPI, format, args...) }
func APIWarn(format string, args ...any)  { logf(zapcore.WarnLevel, CategoryAPI, format, args...) }
func APIError(format string, args ...any) { logf(zapcore.ErrorLevel, CategoryAPI, format, args...) }

// Config logging helpers.

func ConfigDebug(format string, args ...any) { logf(zapcore.DebugLevel, CategoryConfig, format, args...) }
func ConfigWarn(format string, args ...any)  { logf(zapcore.WarnLevel, CategoryConfig, format, args...) }
