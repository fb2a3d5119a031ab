package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface passed to every worker and engine.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" sharing the outputs and level of its parent.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	Desugar() *zap.Logger
	Sync() error
}

type impl struct {
	*zap.SugaredLogger
	name  string
	level zap.AtomicLevel
	core  zapcore.Core
}

func newImpl(name string, level zap.AtomicLevel, core zapcore.Core) *impl {
	return &impl{
		SugaredLogger: zap.New(core, zap.AddCaller()).Sugar().Named(name),
		name:          name,
		level:         level,
		core:          core,
	}
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = imp.name + "." + subname
	}
	return newImpl(newName, imp.level, imp.core)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	switch imp.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ERROR
	case zapcore.InfoLevel, zapcore.InvalidLevel:
	}
	return INFO
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.SugaredLogger.Desugar()
}
