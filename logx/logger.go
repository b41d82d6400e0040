package logx

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the logging interface used across the module.
type Logger interface {
	Debug(ctx context.Context, tag string, msg any, kv ...any)
	Info(ctx context.Context, tag string, msg any, kv ...any)
	Warn(ctx context.Context, tag string, msg any, kv ...any)
	Error(ctx context.Context, tag string, msg any, kv ...any)
}

// Closer is a Logger backed by a file that must be flushed on shutdown.
type Closer interface {
	Logger
	// Close writes out every queued record and closes the file.
	Close() error
}

type loggerImpl struct {
	slog *slog.Logger
	h    *fileHandler
}

func (l *loggerImpl) Close() error {
	if l == nil || l.h == nil {
		return nil
	}
	return l.h.Close()
}

func (l *loggerImpl) Debug(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelDebug, tag, msg, kv...)
}

func (l *loggerImpl) Info(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelInfo, tag, msg, kv...)
}

func (l *loggerImpl) Warn(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelWarn, tag, msg, kv...)
}

func (l *loggerImpl) Error(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, slog.LevelError, tag, msg, kv...)
}

func (l *loggerImpl) log(ctx context.Context, level slog.Level, tag string, msg any, kv ...any) {
	if l == nil || l.slog == nil {
		return
	}
	if !l.slog.Enabled(ctx, level) {
		return
	}

	attrs := encodeLog(ctx, tag, msg, kv...)
	rec := slog.NewRecord(time.Now(), level, "", 0)
	rec.AddAttrs(attrs...)

	// straight to the handler, which queues and rotates
	_ = l.slog.Handler().Handle(ctx, rec)
}

// -------------------- default logger --------------------

var defaultLogger *loggerImpl

// Init installs the default logger; call it once from main and defer Close.
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// Close flushes and closes the default logger. It is a no-op before Init.
func Close() error {
	return defaultLogger.Close()
}

// New builds an independent Logger; the caller owns Close.
func New(cfg Config) (Closer, error) {
	return newLogger(cfg)
}

func newLogger(cfg Config) (*loggerImpl, error) {
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{slog: slog.New(h), h: h}, nil
}

// L returns the default logger, nil before Init.
func L() Logger {
	if defaultLogger == nil {
		return nil
	}
	return defaultLogger
}

// shortcuts on the default logger

func Debug(ctx context.Context, tag string, msg any, kv ...any) {
	if L() != nil {
		L().Debug(ctx, tag, msg, kv...)
	}
}

func Info(ctx context.Context, tag string, msg any, kv ...any) {
	if L() != nil {
		L().Info(ctx, tag, msg, kv...)
	}
}

func Warn(ctx context.Context, tag string, msg any, kv ...any) {
	if L() != nil {
		L().Warn(ctx, tag, msg, kv...)
	}
}

func Error(ctx context.Context, tag string, msg any, kv ...any) {
	if L() != nil {
		L().Error(ctx, tag, msg, kv...)
	}
}

// -------------------- nop --------------------

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, any, ...any) {}
func (nopLogger) Info(context.Context, string, any, ...any)  {}
func (nopLogger) Warn(context.Context, string, any, ...any)  {}
func (nopLogger) Error(context.Context, string, any, ...any) {}

// Nop discards everything.
func Nop() Logger { return nopLogger{} }

// OrDefault returns l, else the default logger, else Nop.
func OrDefault(l Logger) Logger {
	if l != nil {
		return l
	}
	if d := L(); d != nil {
		return d
	}
	return Nop()
}
