package xlog

import (
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FxXLogger adapts the XLogger to the fx event logger.
// Only the wiring and the lifecycle events are logged, the dependency
// graph details (provide, decorate, replace) are reported on failures.
type FxXLogger struct {
	logger XLogger
}

// fxEntry is the log line of an fx event.
type fxEntry struct {
	lvl    zapcore.Level
	msg    string
	err    error
	fields []zap.Field
}

func hookFields(function, caller string) []zap.Field {
	return []zap.Field{
		zap.String("hook", function),
		zap.String("caller", caller),
	}
}

func fxEntryOf(event fxevent.Event) (fxEntry, bool) {
	switch e := event.(type) {
	case *fxevent.LoggerInitialized:
		return fxEntry{zapcore.DebugLevel, "lifecycle logger ready", e.Err,
			[]zap.Field{zap.String("constructor", e.ConstructorName)}}, true
	case *fxevent.Supplied:
		return fxEntry{zapcore.DebugLevel, "config supplied", e.Err,
			[]zap.Field{zap.String("type", e.TypeName)}}, true
	case *fxevent.Provided:
		return fxEntry{zapcore.DebugLevel, "component provided", e.Err, []zap.Field{
			zap.String("constructor", e.ConstructorName),
			zap.Strings("types", e.OutputTypeNames),
		}}, true
	case *fxevent.Decorated:
		return fxEntry{zapcore.DebugLevel, "component decorated", e.Err,
			[]zap.Field{zap.String("decorator", e.DecoratorName)}}, e.Err != nil
	case *fxevent.Replaced:
		return fxEntry{zapcore.DebugLevel, "component replaced", e.Err,
			[]zap.Field{zap.Strings("types", e.OutputTypeNames)}}, e.Err != nil
	case *fxevent.Invoked:
		return fxEntry{zapcore.DebugLevel, "runner wired", e.Err, []zap.Field{
			zap.String("function", e.FunctionName),
			zap.String("trace", e.Trace),
		}}, true
	case *fxevent.OnStartExecuted:
		return fxEntry{zapcore.DebugLevel, "start hook done", e.Err,
			append(hookFields(e.FunctionName, e.CallerName), zap.Duration("runtime", e.Runtime))}, true
	case *fxevent.OnStopExecuted:
		return fxEntry{zapcore.DebugLevel, "stop hook done", e.Err,
			append(hookFields(e.FunctionName, e.CallerName), zap.Duration("runtime", e.Runtime))}, true
	case *fxevent.Started:
		return fxEntry{zapcore.InfoLevel, "stress components started", e.Err, nil}, true
	case *fxevent.Stopping:
		return fxEntry{zapcore.InfoLevel, "stress components stopping", nil,
			[]zap.Field{zap.String("signal", e.Signal.String())}}, true
	case *fxevent.Stopped:
		return fxEntry{zapcore.InfoLevel, "stress components stopped", e.Err, nil}, true
	case *fxevent.RollingBack:
		return fxEntry{zapcore.WarnLevel, "start failed, rolling back", nil,
			[]zap.Field{zap.NamedError("cause", e.StartErr)}}, true
	case *fxevent.RolledBack:
		return fxEntry{zapcore.WarnLevel, "rolled back", e.Err, nil}, true
	default:
	}
	return fxEntry{}, false
}

func (l *FxXLogger) LogEvent(event fxevent.Event) {
	if l == nil || l.logger == nil {
		return
	}
	entry, ok := fxEntryOf(event)
	switch {
	case !ok:
	case entry.err != nil:
		l.logger.Error(entry.err, entry.msg+" failed", entry.fields...)
	case entry.lvl == zapcore.DebugLevel:
		l.logger.Debug(entry.msg, entry.fields...)
	case entry.lvl == zapcore.InfoLevel:
		l.logger.Info(entry.msg, entry.fields...)
	default:
		l.logger.Warn(entry.msg, entry.fields...)
	}
}

func NewFxXLogger(logger XLogger) *FxXLogger {
	if logger == nil {
		return nil
	}
	l := &xLogger{}
	l.logger.Store(logger.
		zap().
		Named("Fx").
		WithOptions(zap.WrapCore(wrapComponentCore)),
	)
	return &FxXLogger{logger: l}
}
