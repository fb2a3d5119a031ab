// Package logging contains the zap based logger used throughout the rig.
package logging

import (
	"os"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalMu     sync.RWMutex
	globalLogger = NewDebugLogger("startup")
)

// ReplaceGlobal replaces the global loggers.
func ReplaceGlobal(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// Global returns the global logger.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NewEncoderConfig returns the console encoder config shared by all loggers. Stacktraces are
// disabled and levels are colored.
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewLogger returns a new logger that outputs Info+ logs to stdout.
func NewLogger(name string) Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return newImpl(name, level, stdoutCore(level))
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout.
func NewDebugLogger(name string) Logger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return newImpl(name, level, stdoutCore(level))
}

// NewFileLogger returns a logger writing Info+ logs to stdout and to a size rotated file at path.
func NewFileLogger(name, path string) Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	fileEncoder := NewEncoderConfig()
	fileEncoder.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileEncoder),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    64, // megabytes
			MaxBackups: 4,
		}),
		level,
	)
	return newImpl(name, level, zapcore.NewTee(stdoutCore(level), fileCore))
}

// NewBlankLogger returns a logger that discards everything. Useful as a default for optional
// logger arguments.
func NewBlankLogger(name string) Logger {
	return newImpl(name, zap.NewAtomicLevelAt(zapcore.DebugLevel), zapcore.NewNopCore())
}

// NewTestLogger returns a new logger that outputs Debug+ logs through the test object.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	testCore := zaptest.NewLogger(tb, zaptest.Level(level)).Core()
	observerCore, observedLogs := observer.New(level)
	return newImpl("", level, zapcore.NewTee(testCore, observerCore)), observedLogs
}

func stdoutCore(level zap.AtomicLevel) zapcore.Core {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(NewEncoderConfig()), zapcore.Lock(os.Stdout), level)
}
