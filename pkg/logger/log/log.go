// Package log provides context-aware logging helpers. Fields attached to the
// context with WithFields are appended to every entry.
package log

import (
	"context"

	"github.com/nguyentranbao-ct/field-booking-admin/pkg/ctxval"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
)

var defaultLogger = logger.MustNamed("app")

// WithFields stores key/value pairs on a context previously wrapped by
// ctxval.Wrap. Unwrapped contexts are left untouched.
func WithFields(ctx context.Context, kv ...any) {
	ctxval.AddFields(ctx, kv...)
}

// Fields returns the key/value pairs stored on the context.
func Fields(ctx context.Context) []any {
	return ctxval.Fields(ctx)
}

func with(ctx context.Context, kv []any) []any {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv)+len(fields))
	out = append(out, kv...)
	return append(out, fields...)
}

func Debugw(ctx context.Context, msg string, kv ...any) {
	defaultLogger.Debugw(msg, with(ctx, kv)...)
}

func Infow(ctx context.Context, msg string, kv ...any) {
	defaultLogger.Infow(msg, with(ctx, kv)...)
}

func Warnw(ctx context.Context, msg string, kv ...any) {
	defaultLogger.Warnw(msg, with(ctx, kv)...)
}

func Errorw(ctx context.Context, msg string, kv ...any) {
	defaultLogger.Errorw(msg, with(ctx, kv)...)
}
