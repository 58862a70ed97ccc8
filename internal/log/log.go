// Package log is a small context-aware facade over zap, matching the call
// shape used throughout this repository: log.Debug(ctx, msg, log.Any(...)).
package log

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	hooks  []Hook
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}

	logger = l
}

// SetLogger replaces the package-level zap logger, e.g. with a
// zap.NewDevelopment() logger during local runs or a test observer in tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	logger = l
}

// AddHook registers a Hook whose fields are appended to every subsequent
// log call that carries a context.
func AddHook(h Hook) {
	mu.Lock()
	defer mu.Unlock()

	hooks = append(hooks, h)
}

func current() (*zap.Logger, []Hook) {
	mu.RLock()
	defer mu.RUnlock()

	return logger, hooks
}

func withHookFields(ctx context.Context, msg string, fields []zap.Field) []zap.Field {
	_, hs := current()
	for _, h := range hs {
		fields = append(fields, h.Apply(ctx, msg)...)
	}

	return fields
}

// Debug logs at debug level, enriched with any registered context hooks.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l, _ := current()
	l.Debug(msg, withHookFields(ctx, msg, fields)...)
}

// Info logs at info level.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	l, _ := current()
	l.Info(msg, withHookFields(ctx, msg, fields)...)
}

// Warn logs at warn level.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l, _ := current()
	l.Warn(msg, withHookFields(ctx, msg, fields)...)
}

// Error logs at error level.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	l, _ := current()
	l.Error(msg, withHookFields(ctx, msg, fields)...)
}

// Any wraps zap.Any.
func Any(key string, value any) zap.Field { return zap.Any(key, value) }

// Cause wraps zap.Error under the conventional "error" key.
func Cause(err error) zap.Field { return zap.Error(err) }

// Int wraps zap.Int.
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Int64 wraps zap.Int64.
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

// String wraps zap.String.
func String(key, value string) zap.Field { return zap.String(key, value) }

// Bool wraps zap.Bool.
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }
