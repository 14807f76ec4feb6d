package log

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"log/slog"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	zl    zerolog.Logger
	level Level
}

// ZerologProvider is a LoggerProvider backed by rs/zerolog. It is the
// default provider for library components such as Pipeline and GridSearchCV.
type ZerologProvider struct {
	mu    sync.RWMutex
	base  zerolog.Logger
	level Level
}

// NewZerologProvider creates a provider emitting JSON log lines to stderr at
// the given minimum level.
func NewZerologProvider(level slog.Level) *ZerologProvider {
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return &ZerologProvider{
		base:  zl,
		level: Level(level),
	}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	zl := p.base.With().Str(ComponentKey, name).Logger()
	return &zerologLogger{zl: zl, level: p.level}
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields ...any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// Debug implements Logger.Debug.
func (l *zerologLogger) Debug(msg string, fields ...any) {
	if l.level <= LevelDebug {
		l.emit(l.zl.Debug(), msg, fields...)
	}
}

// Info implements Logger.Info.
func (l *zerologLogger) Info(msg string, fields ...any) {
	if l.level <= LevelInfo {
		l.emit(l.zl.Info(), msg, fields...)
	}
}

// Warn implements Logger.Warn.
func (l *zerologLogger) Warn(msg string, fields ...any) {
	if l.level <= LevelWarn {
		l.emit(l.zl.Warn(), msg, fields...)
	}
}

// Error implements Logger.Error.
func (l *zerologLogger) Error(msg string, fields ...any) {
	if l.level <= LevelError {
		l.emit(l.zl.Error(), msg, fields...)
	}
}

// With implements Logger.With.
func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger(), level: l.level}
}

// Enabled implements Logger.Enabled.
func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return l.level <= level
}
