// Package logging builds the leveled loggers used by the stk command and
// long-running batch jobs. A logger writes human-readable console output to
// stderr and can mirror the same stream into a file so batch stations keep a
// greppable record per run.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zapcore"

	"github.com/openadas/stk/internal/monitoring"
)

// Parse maps a level name to a zap level. Accepted names are debug, info,
// warning (or warn) and error, case-insensitive. The empty string selects
// info.
func Parse(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warning", "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", name)
	}
}

// New builds a named console logger at the given level. When file is
// non-empty the stream is duplicated into it, creating parent directories on
// demand. The caller owns Sync on shutdown.
func New(name string, level zapcore.Level, file string) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}
	if file != "" {
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(f), level))
	}

	return zap.New(zapcore.NewTee(cores...)).Named(name), nil
}

// Route points the monitoring indirection at the given logger so library
// packages emit through it. Passing nil mutes both streams.
func Route(logger *zap.Logger) {
	if logger == nil {
		monitoring.SetLogger(nil)
		monitoring.SetDebugLogger(nil)
		return
	}
	s := logger.Sugar()
	monitoring.SetLogger(func(format string, v ...interface{}) { s.Infof(format, v...) })
	monitoring.SetDebugLogger(func(format string, v ...interface{}) { s.Debugf(format, v...) })
}
