package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level        = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	debugEnabled atomic.Bool
	current      atomic.Pointer[zap.SugaredLogger]
)

func init() {
	current.Store(newConsoleLogger())
}

func newConsoleLogger() *zap.SugaredLogger {
	return newLogger(zapcore.Lock(os.Stderr))
}

func newLogger(out zapcore.WriteSyncer) *zap.SugaredLogger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		out,
		level,
	)
	return zap.New(core).Named("kvc-indicator").Sugar()
}

// EnableDebug turns on verbose debug logging for the application lifecycle.
func EnableDebug() {
	debugEnabled.Store(true)
	level.SetLevel(zapcore.DebugLevel)
	Debugf("debug logging enabled")
}

// DebugEnabled reports whether debug logging is active.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Logger returns the process-wide logger.
func Logger() *zap.SugaredLogger {
	return current.Load()
}

// SetLogger replaces the process-wide logger and returns a function restoring
// the previous one. Tests use it with zaptest loggers.
func SetLogger(l *zap.Logger) (restore func()) {
	previous := current.Swap(l.Sugar())
	return func() { current.Store(previous) }
}

// ToFile sends all further log output to the file at path, appending to it.
// The returned function flushes and closes the file and restores the
// previous logger.
func ToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	previous := current.Swap(newLogger(zapcore.Lock(f)))
	return func() {
		_ = Logger().Sync()
		current.Store(previous)
		_ = f.Close()
	}, nil
}

// Debugf emits a formatted debug log message when debugging is enabled.
func Debugf(format string, args ...interface{}) {
	if !DebugEnabled() {
		return
	}
	Logger().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Logger().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger().Errorf(format, args...)
}

// Sync flushes buffered log entries. Errors from syncing a terminal are ignored.
func Sync() {
	_ = Logger().Sync()
}
